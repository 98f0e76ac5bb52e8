// Package web exposes the daemon's HTTP surface: the live warning stream,
// historical summaries, health, and metrics.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/sentinel/internal/analyze"
	"github.com/crimson-sun/sentinel/internal/model"
	"github.com/crimson-sun/sentinel/internal/queue"
)

const defaultStreamTick = 500 * time.Millisecond

// WarningStore is the slice of the warnings store the handlers depend on.
type WarningStore interface {
	Query(ctx context.Context, since time.Time) ([]model.Warning, error)
	UpdateAnalysis(ctx context.Context, warningID int64, a model.Analysis) error
}

// Option configures Server behavior.
type Option func(*Server)

// WithStreamTick sets the fan-out polling granularity. The tick bounds both
// the keep-alive cadence and how quickly a disconnect is noticed.
func WithStreamTick(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithAllowOrigins sets the CORS allow-list. Empty means "*".
func WithAllowOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server serves the HTTP API. Each stream client gets its own goroutine
// tailing the shared event log; clients never block each other.
type Server struct {
	router   *gin.Engine
	log      *queue.Log
	store    WarningStore
	analyzer analyze.Analyzer
	tick     time.Duration
	origins  []string
	logger   *slog.Logger
}

// NewServer creates the server over its injected collaborators.
func NewServer(log *queue.Log, store WarningStore, analyzer analyze.Analyzer, opts ...Option) *Server {
	s := &Server{
		log:      log,
		store:    store,
		analyzer: analyzer,
		tick:     defaultStreamTick,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())

	router.GET("/stream", s.handleStream)
	router.GET("/summary", s.handleSummary)
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router = router
	return s
}

// Handler returns the root http.Handler, for embedding in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// corsMiddleware allows the configured origins (default any) for GETs.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	allowed := "*"
	allowList := make(map[string]bool, len(s.origins))
	for _, o := range s.origins {
		allowList[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowList) == 0:
			c.Header("Access-Control-Allow-Origin", allowed)
		case allowList[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET")
		c.Next()
	}
}
