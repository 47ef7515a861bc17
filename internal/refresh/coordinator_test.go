package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/resolver"
	"github.com/vk/chartgridgo/internal/statestore"
	"github.com/vk/chartgridgo/internal/token"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) Now() time.Time { return time.UnixMilli(c.ms) }

type funcHistory func(ctx context.Context, spec *token.History) (document.Node, error)

func (f funcHistory) FetchHistory(ctx context.Context, spec *token.History) (document.Node, error) {
	return f(ctx, spec)
}

func testCtx() context.Context {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.WithLogger(context.Background(), logger)
}

func entityPanel() *document.Panel {
	return &document.Panel{
		Name:   "gauge",
		Option: document.MustFromGo(map[string]any{"$entity": "sensor.a"}),
	}
}

func historyPanel() *document.Panel {
	return &document.Panel{
		Name: "chart",
		Option: document.MustFromGo(map[string]any{
			"$history": map[string]any{"entities": []any{"sensor.temp"}},
		}),
	}
}

func TestCoordinatorEntityPanel(t *testing.T) {
	store := statestore.NewMemory()
	store.Put(statestore.Entity{ID: "sensor.a", State: "1", LastUpdated: "m1"})

	clock := &fakeClock{ms: 1_700_000_000_000}
	coord := NewCoordinator(entityPanel(), CoordinatorOptions{
		Store: store,
		Now:   clock.Now,
	})
	assert.False(t, coord.TimeSeries())

	_, _, ok := coord.Document()
	assert.False(t, ok, "nothing committed before the first refresh")

	// notifications before the first resolution have no watched set to check
	coord.OnNotify(testCtx(), "sensor.a")
	assert.Equal(t, int64(0), coord.Generation())

	doc, err := coord.Refresh(testCtx())
	require.NoError(t, err)
	assert.Equal(t, document.Number(1), doc)
	assert.Equal(t, int64(1), coord.Generation())
	assert.True(t, coord.Watched().Has("sensor.a"))

	// unchanged entity: notification is a no-op
	coord.OnNotify(testCtx(), "sensor.a")
	assert.Equal(t, int64(1), coord.Generation())

	// unwatched entity: no-op even if the store changed
	store.Put(statestore.Entity{ID: "sensor.other", State: "9", LastUpdated: "m1"})
	coord.OnNotify(testCtx(), "sensor.other")
	assert.Equal(t, int64(1), coord.Generation())

	// watched change re-resolves and commits
	store.Put(statestore.Entity{ID: "sensor.a", State: "2", LastUpdated: "m2"})
	coord.OnNotify(testCtx(), "sensor.a")
	assert.Equal(t, int64(2), coord.Generation())
	doc, _, ok = coord.Document()
	require.True(t, ok)
	assert.Equal(t, document.Number(2), doc)

	// a second notification for the same change is absorbed
	coord.OnNotify(testCtx(), "sensor.a")
	assert.Equal(t, int64(2), coord.Generation())
}

func TestCoordinatorThrottlesTimeSeries(t *testing.T) {
	store := statestore.NewMemory()
	store.Put(statestore.Entity{ID: "sensor.temp", State: "20", LastUpdated: "m1"})

	calls := 0
	fetch := funcHistory(func(context.Context, *token.History) (document.Node, error) {
		calls++
		return document.ArrayNode{}, nil
	})

	clock := &fakeClock{ms: 1_700_000_000_000}
	coord := NewCoordinator(historyPanel(), CoordinatorOptions{
		Store:    store,
		Fetchers: resolver.Fetchers{History: fetch},
		Now:      clock.Now,
	})
	assert.True(t, coord.TimeSeries())

	_, err := coord.Refresh(testCtx())
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// a real change arrives inside the cache window: throttled
	store.Put(statestore.Entity{ID: "sensor.temp", State: "21", LastUpdated: "m2"})
	coord.OnNotify(testCtx(), "sensor.temp")
	assert.Equal(t, 1, calls)

	// window over: the same change now triggers
	clock.ms += 31_000
	coord.OnNotify(testCtx(), "sensor.temp")
	assert.Equal(t, 2, calls)

	// forced refresh ignores the window
	_, err = coord.Refresh(testCtx())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestCoordinatorStaleRunDropped(t *testing.T) {
	store := statestore.NewMemory()
	store.Put(statestore.Entity{ID: "sensor.temp", State: "20", LastUpdated: "m1"})

	var coord *Coordinator
	calls := 0
	fetch := funcHistory(func(ctx context.Context, _ *token.History) (document.Node, error) {
		calls++
		n := calls
		if n == 1 {
			// a newer run starts and finishes while this one is in flight
			_, err := coord.Refresh(ctx)
			require.NoError(t, err)
		}
		return document.Number(float64(n)), nil
	})

	coord = NewCoordinator(historyPanel(), CoordinatorOptions{
		Store:    store,
		Fetchers: resolver.Fetchers{History: fetch},
	})

	_, err := coord.Refresh(testCtx())
	assert.ErrorIs(t, err, ErrStale)

	doc, _, ok := coord.Document()
	require.True(t, ok)
	assert.Equal(t, document.Number(2), doc, "the newer run's document wins")
	assert.Equal(t, int64(2), coord.Generation())
}

func TestCoordinatorKeepsOldDocumentOnFailure(t *testing.T) {
	store := statestore.NewMemory()
	store.Put(statestore.Entity{ID: "sensor.temp", State: "20", LastUpdated: "m1"})

	fail := false
	calls := 0
	fetch := funcHistory(func(context.Context, *token.History) (document.Node, error) {
		calls++
		if fail {
			return nil, errors.New("hub down")
		}
		return document.Number(float64(calls)), nil
	})

	clock := &fakeClock{ms: 1_700_000_000_000}
	coord := NewCoordinator(historyPanel(), CoordinatorOptions{
		Store:    store,
		Fetchers: resolver.Fetchers{History: fetch},
		Now:      clock.Now,
	})

	_, err := coord.Refresh(testCtx())
	require.NoError(t, err)

	fail = true
	store.Put(statestore.Entity{ID: "sensor.temp", State: "21", LastUpdated: "m2"})
	clock.ms += 31_000
	coord.OnNotify(testCtx(), "sensor.temp")
	require.Equal(t, 2, calls)

	doc, _, ok := coord.Document()
	require.True(t, ok)
	assert.Equal(t, document.Number(1), doc, "failed runs never clobber the document")

	// fingerprints were not snapshotted on failure, so the change retries
	fail = false
	clock.ms += 31_000
	coord.OnNotify(testCtx(), "sensor.temp")
	require.Equal(t, 3, calls)
	doc, _, ok = coord.Document()
	require.True(t, ok)
	assert.Equal(t, document.Number(3), doc)
}
