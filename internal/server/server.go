package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskward/taskward/internal/app/bulk"
	"github.com/taskward/taskward/internal/app/search"
	"github.com/taskward/taskward/internal/log"
)

// Config is the configuration for the HTTP server.
type Config struct {
	ListenAddress string
	BulkService   *bulk.Service
	SearchService *search.Service
	// HealthCheck is an optional round-trip check of the server's
	// dependencies, reported by the healthz endpoint.
	HealthCheck func(ctx context.Context) error
	Debug       bool
	Logger      log.Logger
}

func (c *Config) defaults() error {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.BulkService == nil {
		return fmt.Errorf("bulk service is required")
	}
	if c.SearchService == nil {
		return fmt.Errorf("search service is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "server.HTTP"})
	return nil
}

// Server is the HTTP API server.
type Server struct {
	server *http.Server
	logger log.Logger
}

// New creates the HTTP server with all routes mounted.
func New(cfg Config) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(cfg.Logger))

	engine.GET("/healthz", func(c *gin.Context) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(c.Request.Context()); err != nil {
				cfg.Logger.Warningf("Health check failed: %v", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.Use(identity())
	NewBulkHandler(cfg.BulkService, cfg.Logger).EnrichRoutes(api)
	NewSearchHandler(cfg.SearchService, cfg.Logger).EnrichRoutes(api)

	return &Server{
		server: &http.Server{
			Addr:              cfg.ListenAddress,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: cfg.Logger,
	}, nil
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Infof("Listening on %s", s.server.Addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infof("Draining connections")
	return s.server.Shutdown(ctx)
}
