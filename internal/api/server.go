// Package api exposes the admin RPC surface: source control (run now,
// probe, simulate, pause/resume, delete/restore), job moderation, the
// observability queries, health, and Prometheus metrics. Handlers take
// small interfaces so tests run against hand-rolled mocks; auth
// middleware is the deployment's concern and mounts in front.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// Params collects the server's collaborators. Handlers degrade when an
// optional collaborator is nil: probe endpoints 503 without a Prober,
// cancel 503s without a RunController, health skips absent backends.
type Params struct {
	Config *config.ServerConfig
	Log    logger.Interface

	Sources  SourceAdmin
	Jobs     JobAdmin
	Index    JobIndex
	Logs     RunLogReader
	Failures FailureReader
	Prober   Prober
	Runs     RunController

	DB     DBPinger
	Search SearchHealth

	// Metrics serves GET /metrics; usually promhttp.Handler().
	Metrics http.Handler
}

// Server hosts the admin API over gin.
type Server struct {
	cfg    *config.ServerConfig
	log    logger.Interface
	router *gin.Engine
	http   *http.Server
}

// New builds the server and its route table.
func New(p Params) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(p.Log))

	srcHandler := &SourcesHandler{
		sources: p.Sources,
		prober:  p.Prober,
		runs:    p.Runs,
		logs:    p.Logs,
		log:     p.Log,
	}
	jobHandler := &JobsHandler{jobs: p.Jobs, index: p.Index, log: p.Log}
	obsHandler := &ObservabilityHandler{logs: p.Logs, failures: p.Failures}
	healthHandler := &HealthHandler{db: p.DB, search: p.Search}

	router.GET("/health", healthHandler.Health)
	if p.Metrics != nil {
		router.GET("/metrics", gin.WrapH(p.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/sources", srcHandler.List)
		v1.POST("/sources", srcHandler.Upsert)
		v1.GET("/sources/:id", srcHandler.Get)
		v1.POST("/sources/:id/run", srcHandler.Run)
		v1.POST("/sources/:id/test", srcHandler.Test)
		v1.POST("/sources/:id/simulate-extract", srcHandler.SimulateExtract)
		v1.GET("/sources/:id/logs", srcHandler.Logs)
		v1.POST("/sources/:id/pause", srcHandler.Pause)
		v1.POST("/sources/:id/resume", srcHandler.Resume)
		v1.DELETE("/sources/:id", srcHandler.Delete)
		v1.POST("/sources/:id/restore", srcHandler.Restore)
		v1.DELETE("/sources/:id/cancel", srcHandler.Cancel)

		v1.GET("/observability/coverage", obsHandler.Coverage)
		v1.GET("/observability/validation-errors", obsHandler.ValidationErrors)

		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/:id", jobHandler.Get)
		v1.DELETE("/jobs/:id", jobHandler.Delete)
		v1.POST("/jobs/:id/restore", jobHandler.Restore)
	}

	return &Server{
		cfg:    p.Config,
		log:    p.Log,
		router: router,
	}
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.GetAddress(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.log.Info("Admin API listening", "address", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}
