package history

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/vk/chartgridgo/internal/token"
)

// epochMsThreshold separates seconds-scale epochs from millisecond-scale
// ones: anything below it is treated as seconds and scaled up.
const epochMsThreshold = 1e12

// RangeError reports a time range whose endpoints could not be parsed. It is
// recoverable per-generator: the caller downgrades to a warning and
// substitutes an empty result instead of aborting the whole resolution.
type RangeError struct {
	Start any
	End   any
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid time range (start=%v, end=%v)", e.Start, e.End)
}

// Range is a resolved [start, end] window in epoch milliseconds.
type Range struct {
	StartMs int64
	EndMs   int64
}

func (r Range) StartISO() string { return isoMs(r.StartMs) }
func (r Range) EndISO() string   { return isoMs(r.EndMs) }

func isoMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// parseTimeInput reads a raw time endpoint: ISO-8601 string, epoch number,
// or numeric string. Epochs below 1e12 are seconds and scale x1000.
func parseTimeInput(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return epochToMs(x)
	case int:
		return epochToMs(float64(x))
	case int64:
		return epochToMs(float64(x))
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return t.UnixMilli(), true
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return epochToMs(f)
		}
		return 0, false
	default:
		return 0, false
	}
}

func epochToMs(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < epochMsThreshold {
		f *= 1000
	}
	return int64(f), true
}

// bucketTimestamp rounds ms down to a multiple of the cache window so
// repeated calls inside one window derive an identical endpoint. This is
// what keeps the cache key stable without an explicit end.
func bucketTimestamp(ms int64, cacheSeconds float64) int64 {
	window := int64(cacheSeconds * 1000)
	if window <= 0 {
		return ms
	}
	return ms - ms%window
}

// historyRange derives the query window for a history generator: explicit
// endpoints win, a missing end is "now" bucketed by cache_seconds, a missing
// start is end minus the hours window.
func historyRange(spec *token.History, now time.Time) (Range, error) {
	var r Range
	if spec.End != nil {
		ms, ok := parseTimeInput(spec.End)
		if !ok {
			return Range{}, &RangeError{Start: spec.Start, End: spec.End}
		}
		r.EndMs = ms
	} else {
		r.EndMs = bucketTimestamp(now.UnixMilli(), spec.CacheSeconds)
	}

	if spec.Start != nil {
		ms, ok := parseTimeInput(spec.Start)
		if !ok {
			return Range{}, &RangeError{Start: spec.Start, End: spec.End}
		}
		r.StartMs = ms
	} else {
		hours := spec.Hours
		if hours <= 0 {
			hours = 24
		}
		r.StartMs = r.EndMs - int64(hours*3600000)
	}
	return r, nil
}

// statisticsRange mirrors historyRange for pre-aggregated queries, with a
// days window instead of hours.
func statisticsRange(spec *token.Statistics, now time.Time) (Range, error) {
	var r Range
	if spec.End != nil {
		ms, ok := parseTimeInput(spec.End)
		if !ok {
			return Range{}, &RangeError{Start: spec.Start, End: spec.End}
		}
		r.EndMs = ms
	} else {
		r.EndMs = bucketTimestamp(now.UnixMilli(), spec.CacheSeconds)
	}

	if spec.Start != nil {
		ms, ok := parseTimeInput(spec.Start)
		if !ok {
			return Range{}, &RangeError{Start: spec.Start, End: spec.End}
		}
		r.StartMs = ms
	} else {
		days := spec.Days
		if days <= 0 {
			days = 1
		}
		r.StartMs = r.EndMs - int64(days*86400000)
	}
	return r, nil
}
