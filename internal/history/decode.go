package history

import (
	"github.com/vk/chartgridgo/internal/transform"
)

// Snapshot field aliases, full names first, then the minimal-response short
// forms.
var (
	idAliases        = []string{"entity_id", "id"}
	stateAliases     = []string{"state", "s"}
	attrAliases      = []string{"attributes", "a"}
	timestampAliases = []string{"last_updated", "last_changed", "lu", "lc"}
)

// rawSample is one decoded snapshot before coercion.
type rawSample struct {
	t     int64
	value any
}

// decodeResponse scans the per-entity snapshot arrays of a history response.
// The upstream compresses responses: only the first element of an array may
// carry the entity id and attributes, so the scan tracks a current id and
// the last seen attribute map and applies them to the elements that omit
// them. Snapshots with no resolvable timestamp are dropped.
func decodeResponse(resp [][]map[string]any, attr string) map[string][]rawSample {
	out := make(map[string][]rawSample)
	for _, series := range resp {
		currentID := ""
		var lastAttrs map[string]any
		for _, row := range series {
			if row == nil {
				continue
			}
			if id := firstStringField(row, idAliases); id != "" {
				currentID = id
			}
			if attrs := firstMapField(row, attrAliases); attrs != nil {
				lastAttrs = attrs
			}
			if currentID == "" {
				continue
			}
			ts, ok := extractTimestamp(row)
			if !ok {
				continue
			}

			var value any
			if attr != "" {
				if lastAttrs != nil {
					value = lastAttrs[attr]
				}
			} else {
				value = firstField(row, stateAliases)
			}
			out[currentID] = append(out[currentID], rawSample{t: ts, value: value})
		}
	}
	return out
}

// extractTimestamp tries the alias list in order, accepting ISO strings and
// epoch numbers (seconds-scale values scale x1000).
func extractTimestamp(row map[string]any) (int64, bool) {
	for _, key := range timestampAliases {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		if ms, ok := parseTimeInput(v); ok {
			return ms, true
		}
	}
	return 0, false
}

// coercePoints turns raw samples into sorted numeric points, discarding
// samples whose value does not survive coercion and the transform pipeline
// as a finite number. Partial data beats no data.
func coercePoints(samples []rawSample, mode transform.CoerceMode, spec *transform.Spec) []Point {
	points := make([]Point, 0, len(samples))
	for _, s := range samples {
		v, ok := transform.PointNumber(s.value, mode, spec)
		if !ok {
			continue
		}
		points = append(points, Point{T: s.t, V: v})
	}
	sortPoints(points)
	return points
}

// decodeStatRows reads the loosely-typed row list of one entity from a
// statistics response.
func decodeStatRows(v any) []StatRow {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	rows := make([]StatRow, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rows = append(rows, StatRow{
			Start:  m["start"],
			End:    m["end"],
			Mean:   numberPtrField(m, "mean"),
			Min:    numberPtrField(m, "min"),
			Max:    numberPtrField(m, "max"),
			Sum:    numberPtrField(m, "sum"),
			Change: numberPtrField(m, "change"),
			State:  numberPtrField(m, "state"),
		})
	}
	return rows
}

func firstField(row map[string]any, keys []string) any {
	for _, key := range keys {
		if v, ok := row[key]; ok {
			return v
		}
	}
	return nil
}

func firstStringField(row map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := row[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstMapField(row map[string]any, keys []string) map[string]any {
	for _, key := range keys {
		if m, ok := row[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func numberPtrField(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	default:
		return nil
	}
}
