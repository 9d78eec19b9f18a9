// Package api exposes the coordination substrate over HTTP: request
// submission and results, open conflicts, consensus sessions, and the
// metric surfaces.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consilium-ai/consilium/pkg/blackboard"
	"github.com/consilium-ai/consilium/pkg/consensus"
	"github.com/consilium-ai/consilium/pkg/coordinator"
	"github.com/consilium-ai/consilium/pkg/models"
	"github.com/consilium-ai/consilium/pkg/monitor"
)

// Board is the read surface of the blackboard the API serves.
type Board interface {
	GetOpenConflicts(ctx context.Context, limit int) ([]*models.ConflictItem, error)
	GetMetrics(ctx context.Context) (*blackboard.Metrics, error)
}

// RequestService accepts governance requests and serves their results.
type RequestService interface {
	SubmitRequest(ctx context.Context, req models.GovernanceRequest) (*coordinator.Submission, error)
	GetResult(ctx context.Context, requestID string) (map[string]any, error)
}

// SessionService exposes consensus sessions for inspection and voting.
type SessionService interface {
	GetSession(sessionID string) (*models.ConsensusSession, error)
	CastVote(ctx context.Context, sessionID string, vote models.Vote) (bool, error)
	GetConsensusMetrics() consensus.Metrics
}

// PerformanceSource serves the monitor's point-in-time view.
type PerformanceSource interface {
	GetSnapshot() monitor.Snapshot
}

// Server is the HTTP front of the substrate.
type Server struct {
	db       *sql.DB
	board    Board
	requests RequestService
	sessions SessionService
	perf     PerformanceSource
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer wires the API against its backing services. db may be nil
// in tests; the health endpoint then reports only process liveness.
// gatherer may be nil to disable the Prometheus endpoint.
func NewServer(db *sql.DB, board Board, requests RequestService, sessions SessionService, perf PerformanceSource, gatherer prometheus.Gatherer) *Server {
	return &Server{
		db:       db,
		board:    board,
		requests: requests,
		sessions: sessions,
		perf:     perf,
		gatherer: gatherer,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.healthHandler)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/requests", s.submitRequestHandler)
		v1.GET("/requests/:id/result", s.getResultHandler)
		v1.GET("/conflicts", s.listConflictsHandler)
		v1.GET("/sessions/:id", s.getSessionHandler)
		v1.POST("/sessions/:id/votes", s.castVoteHandler)
		v1.GET("/metrics", s.metricsHandler)
		v1.GET("/performance", s.performanceHandler)
	}
	return router
}

// Start runs the HTTP server. Blocks until Shutdown or a listen error.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's budget.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs one line per request at debug, errors at warn.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("Request failed", attrs...)
		} else {
			s.logger.Debug("Request served", attrs...)
		}
	}
}
