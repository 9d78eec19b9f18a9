package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/consilium-ai/consilium/pkg/database"
	"github.com/consilium-ai/consilium/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only the substrate's own database
// is checked; downstream agents and the validator service are excluded
// so an external outage does not restart the coordinator.
func (s *Server) healthHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  healthStatusHealthy,
			"version": version.GitCommit,
		})
		return
	}

	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.db)
	status := healthStatusHealthy
	httpStatus := http.StatusOK
	if err != nil {
		status = healthStatusUnhealthy
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":   status,
		"version":  version.GitCommit,
		"database": dbHealth,
	})
}

// metricsHandler handles GET /api/v1/metrics: the blackboard census
// plus the consensus aggregate.
func (s *Server) metricsHandler(c *gin.Context) {
	boardMetrics, err := s.board.GetMetrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blackboard": boardMetrics,
		"consensus":  s.sessions.GetConsensusMetrics(),
	})
}

// performanceHandler handles GET /api/v1/performance.
func (s *Server) performanceHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.perf.GetSnapshot())
}
