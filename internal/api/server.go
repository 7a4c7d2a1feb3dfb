// Package api serves the directory, request and document endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"foiahub/internal/core"
	"foiahub/internal/logging"
	"foiahub/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// Server holds the state for the REST API server.
type Server struct {
	svc      *core.Service
	router   *gin.Engine
	logger   *zap.Logger
	metrics  *metrics.HTTP
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithMetrics records request metrics on m and serves g on /metrics.
func WithMetrics(m *metrics.HTTP, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// NewServer creates a new Server instance.
func NewServer(svc *core.Service, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		router: gin.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router.Use(gin.Recovery(), s.observe)
	s.setupRoutes()
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	api.GET("/agency/", s.handleAgencies)
	api.GET("/agency/:slug/", s.handleAgency)
	api.GET("/office/:slug/", s.handleOffice)
	api.GET("/request/", s.handleRequests)
	api.POST("/request/", s.handleCreateRequest)
	api.GET("/documents/", s.handleDocuments)
	api.GET("/documents/:id/", s.handleDocument)
	api.GET("/documents/:id/file", s.handleDocumentFile)
}

// observe logs and measures every request by its route template.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	elapsed := time.Since(start)
	code := c.Writer.Status()
	s.metrics.Observe(c.Request.Method, route, strconv.Itoa(code), elapsed)
	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("route", route),
		zap.Int("status", code),
		zap.Duration("elapsed", elapsed))
}

func (s *Server) healthCheck(c *gin.Context) {
	if err := s.svc.Store().View(c.Request.Context(), func(core.TransactionView) error { return nil }); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
