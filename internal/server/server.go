// Package server exposes the resolved panel set over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vk/chartgridgo/internal/refresh"
	"github.com/vk/chartgridgo/internal/statestore"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// EntityView is the server's read view of the entity mirror.
type EntityView interface {
	Lookup(id string) (statestore.Entity, bool)
	Len() int
}

// HubStatus reports whether the hub feed is currently connected.
type HubStatus interface {
	Connected() bool
}

// Options configures the HTTP server.
type Options struct {
	Addr     string
	APIToken string
	Logger   *slog.Logger
	Registry *refresh.Registry
	Entities EntityView

	// Hub may be nil when no feed is running; health then reports the hub
	// as disconnected.
	Hub HubStatus
}

// Server serves panel documents, entity lookups, and health over HTTP.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	registry   *refresh.Registry
	entities   EntityView
	hub        HubStatus
	token      string
}

// New creates the server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	s := &Server{
		engine:   engine,
		logger:   logger,
		registry: opts.Registry,
		entities: opts.Entities,
		hub:      opts.Hub,
		token:    opts.APIToken,
	}
	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")

	// Health stays unauthenticated so probes work without credentials.
	v1.GET("/health", s.health)

	protected := v1.Group("")
	protected.Use(bearerAuth(s.token))
	{
		protected.GET("/panels", s.listPanels)
		protected.GET("/panels/:name", s.getPanel)
		protected.POST("/panels/:name/refresh", s.refreshPanel)
		protected.GET("/entities/:id", s.getEntity)
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
