// Package transform converts raw entity values into typed values and applies
// the fixed numeric transform pipeline panels declare on their generators.
package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CoerceMode selects how a raw store value is converted before use.
type CoerceMode string

const (
	CoerceAuto   CoerceMode = "auto"
	CoerceNumber CoerceMode = "number"
	CoerceString CoerceMode = "string"
	CoerceBool   CoerceMode = "bool"
)

// ParseCoerceMode normalizes a user-supplied mode string, returning fallback
// for anything it does not recognize.
func ParseCoerceMode(s string, fallback CoerceMode) CoerceMode {
	switch CoerceMode(strings.ToLower(strings.TrimSpace(s))) {
	case CoerceAuto:
		return CoerceAuto
	case CoerceNumber:
		return CoerceNumber
	case CoerceString:
		return CoerceString
	case CoerceBool:
		return CoerceBool
	default:
		return fallback
	}
}

// Fixed truthy/falsy vocabularies for bool coercion. These deliberately cover
// the state strings home-automation stores emit for binary-ish entities.
var truthyStrings = map[string]struct{}{
	"on": {}, "true": {}, "1": {}, "yes": {}, "home": {}, "open": {},
}

var falsyStrings = map[string]struct{}{
	"off": {}, "false": {}, "0": {}, "no": {}, "not_home": {}, "closed": {},
}

// Coerce converts raw into the type requested by mode.
//
// auto keeps numbers and bools as-is and tries a numeric parse on non-empty
// strings, falling back to the original string when the parse is not finite.
func Coerce(raw any, mode CoerceMode) any {
	switch mode {
	case CoerceString:
		return Stringify(raw)
	case CoerceBool:
		return Truthy(raw)
	case CoerceNumber:
		return ToNumber(raw)
	case CoerceAuto:
		fallthrough
	default:
		switch v := raw.(type) {
		case string:
			if v == "" {
				return v
			}
			n := ToNumber(v)
			if isFinite(n) {
				return n
			}
			return v
		default:
			return raw
		}
	}
}

// ToNumber coerces raw to a float64, returning NaN when no sensible numeric
// reading exists. Callers must handle NaN.
func ToNumber(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return math.NaN()
		}
		return n
	default:
		return math.NaN()
	}
}

// Truthy implements bool coercion: real bools pass through, numbers are
// nonzero-truthy, strings consult the fixed vocabularies with unmatched
// non-empty strings counting as true.
func Truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if _, ok := truthyStrings[s]; ok {
			return true
		}
		if _, ok := falsyStrings[s]; ok {
			return false
		}
		return s != ""
	case nil:
		return false
	default:
		return true
	}
}

// Stringify renders raw as a display string. Nil becomes the empty string.
func Stringify(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
