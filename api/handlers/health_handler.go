package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhdinh03/Download-Video/internal/app"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const healthProbeTimeout = 3 * time.Second

// StatusProvider reports orchestration health
type StatusProvider interface {
	Stats() app.PoolStats
	Accepting() bool
	ToolStatus(ctx context.Context) map[string]bool
}

// BackgroundTask is a periodic job such as the reclaimer
type BackgroundTask interface {
	IsRunning() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	status    StatusProvider
	reclaimer BackgroundTask
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(status StatusProvider, reclaimer BackgroundTask) *HealthHandler {
	return &HealthHandler{
		status:    status,
		reclaimer: reclaimer,
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Pool      app.PoolStats   `json:"pool"`
	Tools     map[string]bool `json:"tools"`
	Reclaimer struct {
		Running bool `json:"running"`
	} `json:"reclaimer"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Pool:    h.status.Stats(),
		Tools:   h.status.ToolStatus(ctx),
	}
	response.Reclaimer.Running = h.reclaimer.IsRunning()
	if !h.status.Accepting() {
		response.Status = "draining"
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.status.Accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "shutting down",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()
	if !h.status.ToolStatus(ctx)["extractor"] {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "extractor unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
