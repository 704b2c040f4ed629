package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"

	healthProbeTimeout = 5 * time.Second
)

// healthHandler handles GET /health. Only owned components are probed:
// the record store and the job runner. External backends (LLM, vector
// index) are excluded so an orchestrator does not restart this process
// when a dependency is unhealthy.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(reqCtx); err != nil {
			status = healthStatusUnhealthy
			checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
		} else {
			checks["database"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.deps.Jobs != nil {
		snapshot := s.deps.Jobs.Snapshot()
		if snapshot.Workers == 0 {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			checks["job_runner"] = HealthCheck{Status: healthStatusDegraded, Message: "no runner workers"}
		} else {
			checks["job_runner"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	if s.deps.Logs != nil {
		checks["log_store"] = HealthCheck{Status: healthStatusHealthy, Message: s.deps.Logs.Backend()}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   version.GitCommit,
		Checks:    checks,
	})
}
