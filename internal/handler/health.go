package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Agent     string `json:"agent"`
}

// HandleHealth returns the health status of the service
// Used for Cloud Run liveness checks
func (h *Handler) HandleHealth(c *gin.Context) {
	status, agent := "healthy", "ready"
	if !h.ready.Load() {
		status, agent = "degraded", "unavailable"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Agent:     agent,
	})
}

// HandleReadiness returns whether the service is ready to accept traffic
// Used for Cloud Run startup checks, stricter than health
func (h *Handler) HandleReadiness(c *gin.Context) {
	if !h.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "agent_not_initialized",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
