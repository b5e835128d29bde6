package api

import (
	"context"
	"net/http"
	"time"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/api/handlers"
	"github.com/CzarCx/qr-brain/internal/api/middleware"
	"github.com/CzarCx/qr-brain/internal/feed"
	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Dependencies are what the router serves. Hub, Snapshot and Health are optional.
type Dependencies struct {
	Service  handlers.ScanService
	Hub      *feed.Hub
	Snapshot handlers.Snapshotter
	Health   []handlers.HealthCheck
	Metrics  *metrics.Metrics
	Tracer   tracing.Tracer
}

// Server represents the HTTP server
type Server struct {
	config     config.ServerConfig
	router     *gin.Engine
	httpServer *http.Server
	deps       Dependencies
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}

	server := &Server{
		config: cfg,
		deps:   deps,
	}
	server.router = server.setupRouter()

	server.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           server.router,
		ReadTimeout:       cfg.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Router exposes the configured engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	if s.config.CorsEnabled {
		router.Use(middleware.CORS(s.config.CorsOrigins))
	}
	if app := s.deps.Tracer.Application(); app != nil {
		router.Use(middleware.NewRelicMiddleware(app))
	}

	v1 := router.Group("/api/v1")
	handlers.NewSessionHandler(s.deps.Service).RegisterRoutes(v1)
	handlers.NewLabelHandler(s.deps.Service).RegisterRoutes(v1)
	handlers.NewProgrammedHandler(s.deps.Service).RegisterRoutes(v1)
	handlers.NewPersonnelHandler(s.deps.Service).RegisterRoutes(v1)

	handlers.NewMetricsHandler(s.deps.Metrics, s.deps.Tracer, s.deps.Health...).RegisterRoutes(router)

	if s.deps.Hub != nil {
		handlers.NewFeedHandler(s.deps.Hub, s.deps.Snapshot).RegisterRoutes(router)
	}

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
