package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/resolver"
	"github.com/vk/chartgridgo/internal/statestore"
	"github.com/vk/chartgridgo/internal/token"
)

// ErrStale marks a resolution that finished after a newer one had already
// been committed. Its result was discarded; the committed document is the
// newer run's.
var ErrStale = errors.New("resolution superseded by a newer run")

// CoordinatorOptions configures a per-panel Coordinator.
type CoordinatorOptions struct {
	Store    statestore.Store
	Fetchers resolver.Fetchers
	// ThrottleFallbackSeconds bounds time-series refreshes when no generator
	// in the tree names a cache window. Defaults to the history cache window.
	ThrottleFallbackSeconds float64
	// Now is injectable for tests.
	Now func() time.Time
}

// Coordinator owns one panel's refresh lifecycle: it re-resolves on entity
// changes, throttles time-series trees to their minimum cache window, and
// guarantees a later-started resolution is never overwritten by an earlier
// one finishing late.
type Coordinator struct {
	panel    *document.Panel
	store    statestore.Store
	fetchers resolver.Fetchers
	now      func() time.Time

	timeSeries      bool
	minCacheSeconds float64

	generation atomic.Int64

	mu            sync.Mutex
	watched       resolver.Watched
	fingerprints  Fingerprints
	current       document.Node
	resolvedAt    time.Time
	nextAllowedMs int64
}

// NewCoordinator builds a coordinator for panel. The panel tree is scanned
// once up front for time-series generators and their minimum cache window.
func NewCoordinator(panel *document.Panel, opts CoordinatorOptions) *Coordinator {
	fallback := opts.ThrottleFallbackSeconds
	if fallback <= 0 {
		fallback = token.DefaultHistoryCacheSeconds
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		panel:           panel,
		store:           opts.Store,
		fetchers:        opts.Fetchers,
		now:             now,
		timeSeries:      token.ContainsTimeSeries(panel.Option),
		minCacheSeconds: token.MinCacheSeconds(panel.Option, fallback),
	}
}

// Panel returns the panel this coordinator drives.
func (c *Coordinator) Panel() *document.Panel { return c.panel }

// TimeSeries reports whether the panel tree contains history or statistics
// generators.
func (c *Coordinator) TimeSeries() bool { return c.timeSeries }

// Generation returns the current resolution generation.
func (c *Coordinator) Generation() int64 { return c.generation.Load() }

// Document returns the latest committed resolution, its commit time, and
// whether one exists yet.
func (c *Coordinator) Document() (document.Node, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.resolvedAt, c.current != nil
}

// Watched returns the entity ids the latest committed resolution touched.
func (c *Coordinator) Watched() resolver.Watched {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watched
}

// Refresh forces a re-resolution, bypassing change detection and the
// throttle. Startup, file reloads, and the HTTP refresh endpoint use this.
func (c *Coordinator) Refresh(ctx context.Context) (document.Node, error) {
	return c.run(ctx)
}

// OnNotify handles one store-change notification. entityID is the changed
// entity, or empty after a full dump. Skips cheaply when the entity is not
// watched, nothing actually changed, or the throttle window is still open.
func (c *Coordinator) OnNotify(ctx context.Context, entityID string) {
	logger := ctxlog.FromContext(ctx).With("panel", c.panel.Name)

	c.mu.Lock()
	watched := c.watched
	fps := c.fingerprints
	nextAllowed := c.nextAllowedMs
	c.mu.Unlock()

	if len(watched) == 0 {
		return
	}
	if entityID != "" && !watched.Has(entityID) {
		return
	}
	if !ShouldUpdate(c.store, watched, fps) {
		return
	}
	if c.timeSeries && c.now().UnixMilli() < nextAllowed {
		logger.Debug("Refresh throttled", "next_allowed_ms", nextAllowed)
		return
	}

	if _, err := c.run(ctx); err != nil && !errors.Is(err, ErrStale) {
		logger.Error("Panel refresh failed", "error", err)
	}
}

// run performs one resolution attempt. The throttle window opens before the
// fetch so notifications arriving mid-fetch cannot start an overlapping run;
// the generation check before commit drops results a newer run has outpaced.
func (c *Coordinator) run(ctx context.Context) (document.Node, error) {
	gen := c.generation.Add(1)
	ctx = ctxlog.With(ctx, "panel", c.panel.Name, "run_id", uuid.NewString())

	if c.timeSeries {
		c.mu.Lock()
		c.nextAllowedMs = c.now().UnixMilli() + int64(c.minCacheSeconds*1000)
		c.mu.Unlock()
	}

	watched := resolver.NewWatched()
	node, err := resolver.Resolve(ctx, c.panel.Option, c.store, watched, c.fetchers)
	if err != nil {
		// previous document and fingerprints stay; the next notification
		// retries
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation.Load() {
		return nil, ErrStale
	}
	c.current = node
	c.resolvedAt = c.now()
	c.watched = watched
	c.fingerprints = Snapshot(c.store, watched)
	return node, nil
}
