package transform

import (
	"math"
	"strconv"
	"strings"
)

// MapOp names the optional first pipeline stage.
type MapOp string

const (
	MapLog  MapOp = "log"
	MapSqrt MapOp = "sqrt"
	MapPow  MapOp = "pow"
)

// MapSpec configures the map stage. Base and Add apply to log (defaults 10
// and 0), Exponent to pow.
type MapSpec struct {
	Op       MapOp
	Base     float64
	Add      float64
	Exponent float64
}

// Spec is the ordered numeric pipeline a generator may declare:
//
//	map -> abs -> scale -> offset -> min -> max -> clamp -> round
//
// Every stage is optional. The order is a contract: scale then offset means
// "a*x + b", never "a*(x + b)". When Clamp is present it supersedes Min and
// Max entirely.
type Spec struct {
	Map    *MapSpec
	Abs    bool
	Scale  *float64
	Offset *float64
	Min    *float64
	Max    *float64
	Clamp  *[2]float64
	Round  *int

	// Default is substituted when the input (or a map stage result) is not
	// a finite number.
	Default any
}

// Empty reports whether the spec declares no pipeline stages at all.
// A bare Default does not count as a stage.
func (s *Spec) Empty() bool {
	if s == nil {
		return true
	}
	return s.Map == nil && !s.Abs && s.Scale == nil && s.Offset == nil &&
		s.Min == nil && s.Max == nil && s.Clamp == nil && s.Round == nil
}

// Apply numerically coerces value and runs the pipeline. A non-finite input
// short-circuits to Default when set, otherwise the original value is handed
// back untouched. A map stage producing a non-finite result falls back to
// Default or zero so NaN can never leak into a rendered series.
func (s *Spec) Apply(value any) any {
	n := ToNumber(value)
	if !isFinite(n) {
		if s != nil && s.Default != nil {
			return s.Default
		}
		return value
	}
	if s == nil {
		return n
	}

	if s.Map != nil {
		n = s.Map.apply(n)
		if !isFinite(n) {
			if s.Default != nil {
				return s.Default
			}
			return float64(0)
		}
	}
	if s.Abs {
		n = math.Abs(n)
	}
	if s.Scale != nil {
		n *= *s.Scale
	}
	if s.Offset != nil {
		n += *s.Offset
	}
	if s.Clamp != nil {
		n = math.Min(math.Max(n, s.Clamp[0]), s.Clamp[1])
	} else {
		if s.Min != nil && n < *s.Min {
			n = *s.Min
		}
		if s.Max != nil && n > *s.Max {
			n = *s.Max
		}
	}
	if s.Round != nil {
		n = RoundTo(n, *s.Round)
	}
	return n
}

func (m *MapSpec) apply(n float64) float64 {
	switch m.Op {
	case MapLog:
		base := m.Base
		if base == 0 {
			base = 10
		}
		return math.Log(n+m.Add) / math.Log(base)
	case MapSqrt:
		return math.Sqrt(n)
	case MapPow:
		return math.Pow(n, m.Exponent)
	default:
		return n
	}
}

// ApplyCoerced coerces value with mode first, then runs the pipeline when one
// is declared. With an empty spec the coerced value passes through unchanged,
// so a bool stays a bool instead of degrading to 0/1.
func ApplyCoerced(value any, mode CoerceMode, spec *Spec) any {
	coerced := Coerce(value, mode)
	if spec.Empty() {
		return coerced
	}
	return spec.Apply(coerced)
}

// PointNumber is the history-series variant of ApplyCoerced: the final value
// must come out a finite number or the point is dropped. The reported ok=false
// means "discard this point", never "inject NaN".
func PointNumber(value any, mode CoerceMode, spec *Spec) (float64, bool) {
	if mode == "" {
		mode = CoerceNumber
	}
	out := ApplyCoerced(value, mode, spec)
	n := ToNumber(out)
	if !isFinite(n) {
		return 0, false
	}
	return n, true
}

// RoundTo rounds v to the given number of decimal places, halves away from
// zero.
func RoundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}

// Fingerprint renders the spec as a stable string for cache keys. Two specs
// with the same effect produce the same fingerprint; a nil spec renders
// empty.
func (s *Spec) Fingerprint() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	if s.Map != nil {
		b.WriteString("map=")
		b.WriteString(string(s.Map.Op))
		b.WriteByte('(')
		b.WriteString(formatFloat(s.Map.Base))
		b.WriteByte(',')
		b.WriteString(formatFloat(s.Map.Add))
		b.WriteByte(',')
		b.WriteString(formatFloat(s.Map.Exponent))
		b.WriteByte(')')
	}
	if s.Abs {
		b.WriteString("|abs")
	}
	writeStage := func(name string, v *float64) {
		if v != nil {
			b.WriteByte('|')
			b.WriteString(name)
			b.WriteByte('=')
			b.WriteString(formatFloat(*v))
		}
	}
	writeStage("scale", s.Scale)
	writeStage("offset", s.Offset)
	writeStage("min", s.Min)
	writeStage("max", s.Max)
	if s.Clamp != nil {
		b.WriteString("|clamp=[")
		b.WriteString(formatFloat(s.Clamp[0]))
		b.WriteByte(',')
		b.WriteString(formatFloat(s.Clamp[1]))
		b.WriteByte(']')
	}
	if s.Round != nil {
		b.WriteString("|round=")
		b.WriteString(strconv.Itoa(*s.Round))
	}
	if s.Default != nil {
		b.WriteString("|default=")
		b.WriteString(Stringify(s.Default))
	}
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
