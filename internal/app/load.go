package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/fsutil"
	"github.com/vk/chartgridgo/internal/refresh"
)

// panelExtensions are the file suffixes treated as panel sources.
var panelExtensions = []string{".yaml", ".yml", ".json", ".hcl"}

func (a *App) loaderFor(path string) document.Loader {
	if strings.HasSuffix(path, ".hcl") {
		return a.hclLoader
	}
	return a.yamlLoader
}

// loadAllPanels discovers and loads every panel file under the configured
// path. Any load failure aborts startup.
func (a *App) loadAllPanels(ctx context.Context) error {
	files, err := fsutil.FindFilesByExtensions(a.config.PanelsPath, panelExtensions...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no panel files found under %s", a.config.PanelsPath)
	}

	for _, file := range files {
		if _, err := a.loadFile(ctx, file); err != nil {
			return err
		}
	}
	return nil
}

// loadFile loads one source file and swaps its panels into the registry,
// returning the new coordinators.
func (a *App) loadFile(ctx context.Context, path string) ([]*refresh.Coordinator, error) {
	panels, err := a.loaderFor(path).Load(ctx, path)
	if err != nil {
		return nil, err
	}

	coords := make([]*refresh.Coordinator, 0, len(panels))
	for _, panel := range panels {
		if prev, ok := a.registry.Get(panel.Name); ok && prev.Panel().Source != path {
			a.logger.Warn("Panel name collision, replacing previous definition",
				"panel", panel.Name, "previous", prev.Panel().Source, "source", path)
		}
		coords = append(coords, refresh.NewCoordinator(panel, refresh.CoordinatorOptions{
			Store:                   a.store,
			Fetchers:                a.fetchers,
			ThrottleFallbackSeconds: float64(a.config.CacheFallbackSeconds),
		}))
	}

	a.registry.ReplaceSource(path, coords)
	return coords, nil
}

// reloadFile is the watcher callback for created or rewritten panel files.
// Load errors keep the previous panels serving.
func (a *App) reloadFile(ctx context.Context, path string) {
	logger := ctxlog.FromContext(ctx)

	coords, err := a.loadFile(ctx, path)
	if err != nil {
		logger.Warn("Panel reload failed, keeping previous definitions", "path", path, "error", err)
		return
	}
	logger.Info("Panel file reloaded", "path", path, "panels", len(coords))

	for _, c := range coords {
		if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, refresh.ErrStale) {
			logger.Warn("Panel refresh failed after reload", "panel", c.Panel().Name, "error", err)
		}
	}
}

// removeFile is the watcher callback for deleted panel files.
func (a *App) removeFile(ctx context.Context, path string) {
	logger := ctxlog.FromContext(ctx)
	removed := a.registry.ReplaceSource(path, nil)
	if len(removed) > 0 {
		logger.Info("Panels removed with their source file", "path", path, "panels", removed)
	}
}
