package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Hub RPC event names. Each query carries a correlation id so concurrent
// requests on the shared socket cannot cross wires.
const (
	eventStatisticsQuery  = "statistics:query"
	eventStatisticsResult = "statistics:result:"
)

const defaultStatisticsTimeout = 15 * time.Second

// SocketProvider yields the live hub socket. The connection is owned by the
// state feed; this transport only borrows it per call.
type SocketProvider interface {
	Socket() *socket.Socket
	Connected() bool
}

// StatisticsClient issues aggregated-statistics queries over the hub socket.
type StatisticsClient struct {
	provider SocketProvider
	timeout  time.Duration
}

// NewStatisticsClient wraps a hub connection provider. A non-positive
// timeout falls back to the default.
func NewStatisticsClient(provider SocketProvider, timeout time.Duration) *StatisticsClient {
	if timeout <= 0 {
		timeout = defaultStatisticsTimeout
	}
	return &StatisticsClient{provider: provider, timeout: timeout}
}

// QueryStatistics emits one correlated query and waits for its reply.
func (c *StatisticsClient) QueryStatistics(ctx context.Context, req StatisticsRequest) (map[string][]StatRow, error) {
	io := c.provider.Socket()
	if io == nil || !c.provider.Connected() {
		return nil, fmt.Errorf("statistics query requires a live hub connection")
	}

	id := uuid.NewString()
	done := make(chan map[string][]StatRow, 1)
	io.Once(types.EventName(eventStatisticsResult+id), func(data ...any) {
		if len(data) == 0 {
			done <- nil
			return
		}
		done <- decodeStatisticsPayload(data[0])
	})

	io.Emit(eventStatisticsQuery, map[string]any{
		"id":            id,
		"start_time":    req.StartISO,
		"end_time":      req.EndISO,
		"statistic_ids": req.StatisticIDs,
		"period":        string(req.Period),
		"types":         req.Types,
	})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("statistics query %s timed out after %s", id, c.timeout)
	case result := <-done:
		if result == nil {
			return nil, fmt.Errorf("statistics query %s returned no payload", id)
		}
		return result, nil
	}
}

// decodeStatisticsPayload reads {statistic_id: [row, ...]}.
func decodeStatisticsPayload(v any) map[string][]StatRow {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]StatRow, len(m))
	for id, rows := range m {
		out[id] = decodeStatRows(rows)
	}
	return out
}
