package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/refresh"
	"github.com/vk/chartgridgo/internal/watcher"
)

const (
	snapshotTimeout = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Run starts the daemon: hub feed, initial resolution, panel-file watcher,
// and HTTP server. It blocks until the context is canceled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.live.Store(true)
	a.startFeed(ctx)
	if a.feed != nil {
		defer a.feed.Close()
	}
	if a.client != nil {
		defer a.client.Close()
	}

	a.refreshAll(ctx)

	w := watcher.New(watcher.Options{
		Path:       a.config.PanelsPath,
		Extensions: panelExtensions,
		Reload:     a.reloadFile,
		Remove:     a.removeFile,
	})
	if err := w.Start(ctx); err != nil {
		a.logger.Warn("Panel watcher unavailable, hot reload disabled", "error", err)
	} else {
		a.watcher = w
		defer w.Close()
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- a.server.Start() }()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Stop(shutdownCtx)
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}
}

// RunOnce resolves every panel a single time and writes a JSON object of
// panel name to resolved option on w. The hub is still consulted for entity
// state and time series when configured, but nothing keeps running
// afterwards.
func (a *App) RunOnce(ctx context.Context, w io.Writer) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	a.startFeed(ctx)
	if a.feed != nil {
		defer a.feed.Close()
	}
	if a.client != nil {
		defer a.client.Close()
	}

	out := make(map[string]any, a.registry.Len())
	var errs []error
	for _, c := range a.registry.All() {
		node, err := c.Refresh(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("panel %q: %w", c.Panel().Name, err))
			continue
		}
		out[c.Panel().Name] = document.ToGo(node)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))

	return errors.Join(errs...)
}

// startFeed connects the hub feed and waits briefly for the first state
// dump. Failures degrade to warnings; the daemon still serves with whatever
// state it has.
func (a *App) startFeed(ctx context.Context) {
	if a.feed == nil {
		return
	}
	if err := a.feed.Start(ctx); err != nil {
		a.logger.Warn("Hub connection failed, continuing without live entity state", "error", err)
		return
	}

	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if err := a.feed.WaitSnapshot(snapCtx); err != nil {
		a.logger.Warn("No entity snapshot from hub yet", "error", err)
	}
}

// refreshAll resolves every panel once, concurrently. Failures are logged;
// the affected panel keeps serving 503 until a later refresh succeeds.
func (a *App) refreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range a.registry.All() {
		wg.Add(1)
		go func(c *refresh.Coordinator) {
			defer wg.Done()
			if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, refresh.ErrStale) {
				a.logger.Warn("Initial panel resolution failed", "panel", c.Panel().Name, "error", err)
			}
		}(c)
	}
	wg.Wait()
}
