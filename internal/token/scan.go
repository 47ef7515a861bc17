package token

import (
	"math"

	"github.com/vk/chartgridgo/internal/document"
)

// Default TTLs for the two time-series variants. Statistics change far less
// often than raw history.
const (
	DefaultHistoryCacheSeconds    = 30.0
	DefaultStatisticsCacheSeconds = 300.0
)

// ContainsTimeSeries reports whether any reachable node, through arrays and
// object values, is a history or statistics generator. This is the cheap
// pre-check deciding whether the throttle policy applies to a tree; no
// payload parsing happens.
func ContainsTimeSeries(n document.Node) bool {
	switch x := n.(type) {
	case document.ObjectNode:
		if key, ok := reservedKeyOf(x); ok && isTimeSeriesKey(key) {
			return true
		}
		for _, v := range x {
			if ContainsTimeSeries(v) {
				return true
			}
		}
	case document.ArrayNode:
		for _, v := range x {
			if ContainsTimeSeries(v) {
				return true
			}
		}
	}
	return false
}

// MinCacheSeconds scans the whole tree and returns the smallest
// cache_seconds across its time-series generators, falling back when the
// tree carries none. The throttle applies this as the minimum re-fetch
// interval.
func MinCacheSeconds(n document.Node, fallback float64) float64 {
	min := minCacheScan(n, math.Inf(1))
	if math.IsInf(min, 1) {
		return fallback
	}
	return min
}

func minCacheScan(n document.Node, min float64) float64 {
	switch x := n.(type) {
	case document.ObjectNode:
		if key, ok := reservedKeyOf(x); ok && isTimeSeriesKey(key) {
			cs := DefaultHistoryCacheSeconds
			if key == KeyStatistics {
				cs = DefaultStatisticsCacheSeconds
			}
			if payload, ok := x[key].(document.ObjectNode); ok {
				if v, ok := numField(payload, "cache_seconds"); ok && v > 0 {
					cs = v
				}
			}
			if cs < min {
				min = cs
			}
		}
		for _, v := range x {
			min = minCacheScan(v, min)
		}
	case document.ArrayNode:
		for _, v := range x {
			min = minCacheScan(v, min)
		}
	}
	return min
}

func isTimeSeriesKey(key string) bool {
	return key == KeyHistory || key == KeyStatistics
}
