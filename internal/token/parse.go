package token

import (
	"fmt"
	"math"
	"strings"

	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/transform"
)

// IsGenerator reports whether the node is a generator, without parsing its
// payload.
func IsGenerator(n document.Node) bool {
	obj, ok := n.(document.ObjectNode)
	if !ok {
		return false
	}
	_, ok = reservedKeyOf(obj)
	return ok
}

// reservedKeyOf returns the winning reserved key under the fixed precedence.
func reservedKeyOf(obj document.ObjectNode) (string, bool) {
	for _, key := range reservedOrder {
		if _, ok := obj[key]; ok {
			return key, true
		}
	}
	return "", false
}

// Classify inspects a node and parses its generator payload. Plain nodes
// return (nil, nil); a generator with a malformed payload returns an error
// the caller is expected to recover from per-node.
func Classify(n document.Node) (*Token, error) {
	obj, ok := n.(document.ObjectNode)
	if !ok {
		return nil, nil
	}
	key, ok := reservedKeyOf(obj)
	if !ok {
		return nil, nil
	}
	payload := obj[key]
	if payload == nil || payload.Kind() == document.KindNull {
		return nil, fmt.Errorf("%s payload is missing", key)
	}

	switch key {
	case KeyEntity:
		e, err := parseEntity(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &Token{Kind: KindEntity, Entity: e}, nil
	case KeyData:
		d, err := parseData(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &Token{Kind: KindData, Data: d}, nil
	case KeyHistory:
		h, err := parseHistory(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &Token{Kind: KindHistory, History: h}, nil
	case KeyStatistics:
		s, err := parseStatistics(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &Token{Kind: KindStatistics, Statistics: s}, nil
	}
	return nil, nil
}

func parseEntity(payload document.Node) (*Entity, error) {
	switch x := payload.(type) {
	case document.StringNode:
		if x == "" {
			return nil, fmt.Errorf("entity id is empty")
		}
		return &Entity{ID: string(x), Coerce: transform.CoerceAuto}, nil
	case document.ObjectNode:
		id, _ := strField(x, "id", "entity")
		if id == "" {
			return nil, fmt.Errorf("payload needs an id")
		}
		attr, _ := strField(x, "attr")
		coerce, _ := strField(x, "coerce")
		dflt := anyField(x, "default")
		return &Entity{
			ID:        id,
			Attr:      attr,
			Coerce:    transform.ParseCoerceMode(coerce, transform.CoerceAuto),
			Default:   dflt,
			Transform: parseTransform(x, dflt),
		}, nil
	default:
		return nil, fmt.Errorf("payload must be a string or object")
	}
}

func parseData(payload document.Node) (*Data, error) {
	obj, ok := payload.(document.ObjectNode)
	if !ok {
		return nil, fmt.Errorf("payload must be an object")
	}
	entities, err := parseEntities(obj)
	if err != nil {
		return nil, err
	}

	attr, _ := strField(obj, "attr")
	coerce, _ := strField(obj, "coerce")
	dflt := anyField(obj, "default")

	exclude := true
	if b, ok := boolField(obj, "exclude_unavailable"); ok {
		exclude = b
	}
	// Legacy flag: include_unavailable ORs into the include decision.
	if b, ok := boolField(obj, "include_unavailable"); ok && b {
		exclude = false
	}

	excludeZero := false
	if b, ok := boolField(obj, "exclude_zero"); ok {
		excludeZero = b
	}

	limit := 0
	if v, ok := numField(obj, "limit"); ok && v > 0 {
		limit = int(v)
	}

	return &Data{
		Entities:           entities,
		Mode:               parseDataMode(obj, DataPairs),
		Sort:               parseSortOrder(obj),
		Limit:              limit,
		Attr:               attr,
		Coerce:             transform.ParseCoerceMode(coerce, transform.CoerceAuto),
		Default:            dflt,
		ExcludeUnavailable: exclude,
		ExcludeZero:        excludeZero,
		Transform:          parseTransform(obj, dflt),
	}, nil
}

func parseHistory(payload document.Node) (*History, error) {
	obj, ok := payload.(document.ObjectNode)
	if !ok {
		return nil, fmt.Errorf("payload must be an object")
	}
	entities, err := parseEntities(obj)
	if err != nil {
		return nil, err
	}

	hours := 24.0
	if v, ok := numField(obj, "hours"); ok && v > 0 {
		hours = v
	}
	points := 0
	if v, ok := numField(obj, "points"); ok && v > 0 {
		points = int(v)
	}
	cacheSeconds := DefaultHistoryCacheSeconds
	if v, ok := numField(obj, "cache_seconds"); ok && v > 0 {
		cacheSeconds = v
	}
	seriesType := "line"
	if s, ok := strField(obj, "series_type"); ok && s != "" {
		seriesType = s
	}
	attr, _ := strField(obj, "attr")
	coerce, _ := strField(obj, "coerce")
	minimal, _ := boolField(obj, "minimal_response")

	return &History{
		Entities:        entities,
		Hours:           hours,
		Start:           timeField(obj, "start"),
		End:             timeField(obj, "end"),
		Attr:            attr,
		Coerce:          transform.ParseCoerceMode(coerce, transform.CoerceNumber),
		Mode:            parseSeriesMode(obj, ModeValues, ModeValues, ModeSeries),
		Points:          points,
		Sample:          parseSample(obj),
		CacheSeconds:    cacheSeconds,
		SeriesType:      seriesType,
		Overrides:       parseOverrides(obj),
		MinimalResponse: minimal,
		Transform:       parseTransform(obj, nil),
	}, nil
}

func parseStatistics(payload document.Node) (*Statistics, error) {
	obj, ok := payload.(document.ObjectNode)
	if !ok {
		return nil, fmt.Errorf("payload must be an object")
	}
	entities, err := parseEntities(obj)
	if err != nil {
		return nil, err
	}

	days := 1.0
	if v, ok := numField(obj, "days"); ok && v > 0 {
		days = v
	}
	cacheSeconds := DefaultStatisticsCacheSeconds
	if v, ok := numField(obj, "cache_seconds"); ok && v > 0 {
		cacheSeconds = v
	}
	seriesType := "line"
	if s, ok := strField(obj, "series_type"); ok && s != "" {
		seriesType = s
	}

	return &Statistics{
		Entities:     entities,
		Period:       parsePeriod(obj),
		StatType:     parseStatType(obj),
		Days:         days,
		Start:        timeField(obj, "start"),
		End:          timeField(obj, "end"),
		Mode:         parseSeriesMode(obj, ModeValues, ModeValues, ModeSeries, ModePairs),
		CacheSeconds: cacheSeconds,
		SeriesType:   seriesType,
		Overrides:    parseOverrides(obj),
	}, nil
}

func parseEntities(obj document.ObjectNode) ([]EntitySpec, error) {
	v, ok := obj["entities"]
	if !ok {
		return nil, fmt.Errorf("entities list is required")
	}
	switch x := v.(type) {
	case document.StringNode:
		spec, err := parseEntitySpec(x)
		if err != nil {
			return nil, err
		}
		return []EntitySpec{spec}, nil
	case document.ArrayNode:
		if len(x) == 0 {
			return nil, fmt.Errorf("entities list is empty")
		}
		specs := make([]EntitySpec, 0, len(x))
		for i, item := range x {
			spec, err := parseEntitySpec(item)
			if err != nil {
				return nil, fmt.Errorf("entities[%d]: %w", i, err)
			}
			specs = append(specs, spec)
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("entities must be a list")
	}
}

func parseEntitySpec(n document.Node) (EntitySpec, error) {
	switch x := n.(type) {
	case document.StringNode:
		if x == "" {
			return EntitySpec{}, fmt.Errorf("entity id is empty")
		}
		return EntitySpec{ID: string(x)}, nil
	case document.ObjectNode:
		id, _ := strField(x, "id", "entity")
		if id == "" {
			return EntitySpec{}, fmt.Errorf("entity object needs an id")
		}
		name, _ := strField(x, "name")
		return EntitySpec{ID: id, Name: name}, nil
	default:
		return EntitySpec{}, fmt.Errorf("entity must be a string or object")
	}
}

// parseTransform reads the flat transform fields off a payload. It returns
// nil when no stage is declared so that untransformed values keep their
// coerced type.
func parseTransform(obj document.ObjectNode, dflt any) *transform.Spec {
	spec := &transform.Spec{Map: parseMapStage(obj)}
	if b, ok := boolField(obj, "abs"); ok && b {
		spec.Abs = true
	}
	if v, ok := numField(obj, "scale"); ok {
		spec.Scale = &v
	}
	if v, ok := numField(obj, "offset"); ok {
		spec.Offset = &v
	}
	if v, ok := numField(obj, "min"); ok {
		spec.Min = &v
	}
	if v, ok := numField(obj, "max"); ok {
		spec.Max = &v
	}
	if arr, ok := obj["clamp"].(document.ArrayNode); ok && len(arr) == 2 {
		lo, okLo := nodeNumber(arr[0])
		hi, okHi := nodeNumber(arr[1])
		if okLo && okHi {
			spec.Clamp = &[2]float64{lo, hi}
		}
	}
	if v, ok := numField(obj, "round"); ok {
		d := int(v)
		spec.Round = &d
	}
	if spec.Empty() {
		return nil
	}
	spec.Default = dflt
	return spec
}

// parseMapStage picks the map operation, first of log, sqrt, pow to appear.
func parseMapStage(obj document.ObjectNode) *transform.MapSpec {
	if v, ok := obj["log"]; ok {
		switch x := v.(type) {
		case document.BoolNode:
			if bool(x) {
				return &transform.MapSpec{Op: transform.MapLog}
			}
		case document.NumberNode:
			return &transform.MapSpec{Op: transform.MapLog, Base: float64(x)}
		case document.ObjectNode:
			m := &transform.MapSpec{Op: transform.MapLog}
			if b, ok := numField(x, "base"); ok {
				m.Base = b
			}
			if a, ok := numField(x, "add"); ok {
				m.Add = a
			}
			return m
		}
	}
	if b, ok := boolField(obj, "sqrt"); ok && b {
		return &transform.MapSpec{Op: transform.MapSqrt}
	}
	if e, ok := numField(obj, "pow"); ok {
		return &transform.MapSpec{Op: transform.MapPow, Exponent: e}
	}
	return nil
}

func parseDataMode(obj document.ObjectNode, dflt DataMode) DataMode {
	s, ok := strField(obj, "mode")
	if !ok {
		return dflt
	}
	switch m := DataMode(strings.ToLower(strings.TrimSpace(s))); m {
	case DataPairs, DataNames, DataValues:
		return m
	default:
		return dflt
	}
}

func parseSeriesMode(obj document.ObjectNode, dflt SeriesMode, allowed ...SeriesMode) SeriesMode {
	s, ok := strField(obj, "mode")
	if !ok {
		return dflt
	}
	m := SeriesMode(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range allowed {
		if m == a {
			return m
		}
	}
	return dflt
}

func parseSortOrder(obj document.ObjectNode) SortOrder {
	s, ok := strField(obj, "sort")
	if !ok {
		return SortNone
	}
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortAsc, SortDesc:
		return o
	default:
		return SortNone
	}
}

func parseSample(obj document.ObjectNode) SampleMethod {
	s, ok := strField(obj, "sample")
	if !ok {
		return SampleMean
	}
	switch m := SampleMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case SampleMean, SampleLast:
		return m
	default:
		return SampleMean
	}
}

func parsePeriod(obj document.ObjectNode) StatsPeriod {
	s, ok := strField(obj, "period")
	if !ok {
		return PeriodHour
	}
	switch p := StatsPeriod(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodFiveMinute, PeriodHour, PeriodDay, PeriodWeek, PeriodMonth:
		return p
	default:
		return PeriodHour
	}
}

func parseStatType(obj document.ObjectNode) StatType {
	s, ok := strField(obj, "stat_type")
	if !ok {
		return StatMean
	}
	switch t := StatType(strings.ToLower(strings.TrimSpace(s))); t {
	case StatMean, StatMin, StatMax, StatSum, StatChange, StatState:
		return t
	default:
		return StatMean
	}
}

func parseOverrides(obj document.ObjectNode) map[string]document.ObjectNode {
	raw, ok := obj["overrides"].(document.ObjectNode)
	if !ok {
		return nil
	}
	out := make(map[string]document.ObjectNode, len(raw))
	for name, v := range raw {
		if m, ok := v.(document.ObjectNode); ok {
			out[name] = m
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// strField reads the first present key holding a string node.
func strField(obj document.ObjectNode, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(document.StringNode); ok {
				return string(s), true
			}
		}
	}
	return "", false
}

// numField reads a numeric field, accepting numeric strings the way
// hand-authored documents tend to carry them.
func numField(obj document.ObjectNode, key string) (float64, bool) {
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	return nodeNumber(v)
}

func nodeNumber(n document.Node) (float64, bool) {
	switch x := n.(type) {
	case document.NumberNode:
		return float64(x), true
	case document.StringNode:
		f := transform.ToNumber(string(x))
		if !math.IsNaN(f) {
			return f, true
		}
	}
	return 0, false
}

// boolField reads a field under generic truthiness, reporting presence.
// Null fields count as absent.
func boolField(obj document.ObjectNode, key string) (bool, bool) {
	v, ok := obj[key]
	if !ok || v == nil || v.Kind() == document.KindNull {
		return false, false
	}
	return transform.Truthy(document.ToGo(v)), true
}

// anyField reads a field as a plain Go value, nil when absent or null.
func anyField(obj document.ObjectNode, key string) any {
	v, ok := obj[key]
	if !ok || v == nil || v.Kind() == document.KindNull {
		return nil
	}
	return document.ToGo(v)
}

// timeField reads a start/end endpoint: ISO string or epoch number, kept raw
// for the range parser.
func timeField(obj document.ObjectNode, key string) any {
	switch x := obj[key].(type) {
	case document.StringNode:
		return string(x)
	case document.NumberNode:
		return float64(x)
	default:
		return nil
	}
}
