// Package server provides the HTTP server setup and routing configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stwalsh4118/marquee/internal/api"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/middleware"
	"github.com/stwalsh4118/marquee/internal/notify"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/resume"
)

// Server represents the HTTP server
type Server struct {
	config   *config.Config
	manager  *player.Manager
	store    *resume.Store
	bridge   notify.Bridge
	gatherer prometheus.Gatherer
	router   *gin.Engine
	server   *http.Server
}

// New creates a new server instance. bridge and gatherer may be nil.
func New(cfg *config.Config, manager *player.Manager, store *resume.Store, bridge notify.Bridge, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		config:   cfg,
		manager:  manager,
		store:    store,
		bridge:   bridge,
		gatherer: gatherer,
	}
	s.setupRouter()
	s.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	return s
}

// setupRouter initializes the Gin router with middleware and routes
func (s *Server) setupRouter() {
	if s.config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(gin.Recovery())
	s.router.Use(cors.Default())

	apiGroup := s.router.Group("/api")

	var bridge interface{ IsConnected() bool }
	if s.bridge != nil {
		bridge = s.bridge
	}
	api.SetupHealthRoutes(apiGroup, api.NewHealthHandler(s.store, bridge, s.manager.Len))
	api.SetupPlayerRoutes(apiGroup, s.manager)
	if s.gatherer != nil {
		api.SetupMetricsRoutes(s.router, s.gatherer)
	}
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns nil once Shutdown stops it.
func (s *Server) Start() error {
	logger.Log.Info().
		Str("host", s.config.Server.Host).
		Int("port", s.config.Server.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and closes every player
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Log.Info().Msg("Shutting down server gracefully")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if s.manager != nil {
		s.manager.Stop()
	}

	logger.Log.Info().Msg("Server stopped")
	return nil
}
