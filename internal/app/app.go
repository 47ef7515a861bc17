package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/vk/chartgridgo/internal/ctxlog"
	"github.com/vk/chartgridgo/internal/dochcl"
	"github.com/vk/chartgridgo/internal/document"
	"github.com/vk/chartgridgo/internal/docyaml"
	"github.com/vk/chartgridgo/internal/history"
	"github.com/vk/chartgridgo/internal/refresh"
	"github.com/vk/chartgridgo/internal/resolver"
	"github.com/vk/chartgridgo/internal/server"
	"github.com/vk/chartgridgo/internal/statestore"
	"github.com/vk/chartgridgo/internal/watcher"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	ctx    context.Context
	config *Config

	yamlLoader document.Loader
	hclLoader  document.Loader

	// live gates entity-change notifications: only the daemon loop acts on
	// them, a one-shot pass resolves each panel itself.
	live atomic.Bool

	store    *statestore.Memory
	feed     *statestore.Feed
	client   *history.Client
	engine   *history.Engine
	fetchers resolver.Fetchers
	registry *refresh.Registry
	server   *server.Server
	watcher  *watcher.Watcher
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its panels loaded and its own isolated
// logger. A failure to load panels is a fatal startup error.
func NewApp(outW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:       outW,
		logger:     logger,
		ctx:        ctx,
		config:     cfg,
		yamlLoader: docyaml.NewLoader(),
		hclLoader:  dochcl.NewLoader(),
		store:      statestore.NewMemory(),
		registry:   refresh.NewRegistry(),
	}

	if cfg.HubURL != "" {
		a.feed = statestore.NewFeed(a.store, statestore.FeedOptions{
			URL:       cfg.HubURL,
			Namespace: cfg.HubNamespace,
			OnEvent: func(entityID string) {
				if !a.live.Load() {
					return
				}
				a.registry.Notify(a.ctx, entityID)
			},
		})
	}

	if cfg.APIBaseURL != "" {
		client, err := history.NewClient(history.ClientOptions{
			BaseURL: cfg.APIBaseURL,
			Token:   cfg.APIToken,
		})
		if err != nil {
			panic(fmt.Errorf("failed to build history client: %w", err))
		}
		a.client = client

		engineOpts := history.Options{API: client}
		if a.feed != nil {
			engineOpts.Statistics = history.NewStatisticsClient(a.feed, 0)
		}
		engine, err := history.NewEngine(engineOpts)
		if err != nil {
			panic(fmt.Errorf("failed to build history engine: %w", err))
		}
		a.engine = engine
		a.fetchers = resolver.Fetchers{History: engine, Statistics: engine}
	}

	if err := a.loadAllPanels(ctx); err != nil {
		panic(fmt.Errorf("failed to load panels: %w", err))
	}
	logger.Debug("Panels loaded.", "count", a.registry.Len())

	serverOpts := server.Options{
		Addr:     cfg.ServerAddr,
		APIToken: cfg.ServerToken,
		Logger:   logger,
		Registry: a.registry,
		Entities: a.store,
	}
	if a.feed != nil {
		serverOpts.Hub = a.feed
	}
	a.server = server.New(serverOpts)

	return a
}

// Registry returns the application's panel registry. Primarily for testing.
func (a *App) Registry() *refresh.Registry {
	return a.registry
}

// Store returns the entity mirror. Primarily for testing.
func (a *App) Store() *statestore.Memory {
	return a.store
}
