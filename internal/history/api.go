// Package history implements the time-series fetch and downsample engine:
// stable time-range derivation, transport queries, compressed response
// decoding, per-entity alignment, point-budget downsampling, and TTL caching
// keyed by a semantic fingerprint.
package history

import (
	"context"

	"github.com/vk/chartgridgo/internal/token"
)

// Filter narrows a history query. The transport must coalesce the entity
// ids into a single comma-joined filter argument; the upstream API does not
// reliably honor repeated filter parameters.
type Filter struct {
	EntityIDs       []string
	MinimalResponse bool
}

// API is the raw history transport: one time-range query returning
// per-entity arrays of loosely-typed state snapshots.
type API interface {
	QueryHistoryPeriod(ctx context.Context, startISO, endISO string, filter Filter) ([][]map[string]any, error)
}

// StatisticsRequest describes one pre-aggregated statistics query.
type StatisticsRequest struct {
	StartISO     string
	EndISO       string
	StatisticIDs []string
	Period       token.StatsPeriod
	Types        []string
}

// StatRow is one server-side aggregation bucket. Figures the server did not
// compute are nil. Start and End arrive as ISO strings or epoch numbers
// depending on the transport.
type StatRow struct {
	Start  any
	End    any
	Mean   *float64
	Min    *float64
	Max    *float64
	Sum    *float64
	Change *float64
	State  *float64
}

// Value returns the requested figure, nil when the server omitted it.
func (r StatRow) Value(t token.StatType) *float64 {
	switch t {
	case token.StatMean:
		return r.Mean
	case token.StatMin:
		return r.Min
	case token.StatMax:
		return r.Max
	case token.StatSum:
		return r.Sum
	case token.StatChange:
		return r.Change
	case token.StatState:
		return r.State
	default:
		return nil
	}
}

// StatisticsAPI is the pre-aggregated statistics transport, keyed by entity
// id in the response.
type StatisticsAPI interface {
	QueryStatistics(ctx context.Context, req StatisticsRequest) (map[string][]StatRow, error)
}
