package handlers

import (
	"net/http"
	"time"

	"audioembed/services"
	"audioembed/websocket"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	pipeline *services.Pipeline
	runner   services.ModelRunner
	hub      websocket.Hub
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(p *services.Pipeline, runner services.ModelRunner, hub websocket.Hub) *HealthHandler {
	return &HealthHandler{pipeline: p, runner: runner, hub: hub}
}

// HealthCheck returns the health status of the service
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "audioembed",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
	})
}

// APIStatus reports how the pipeline is configured and whether scratch space is clean
func (h *HealthHandler) APIStatus(c *gin.Context) {
	scratch := h.pipeline.Scratch()
	files, err := scratch.Files()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scratch directory unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "audioembed API is running",
		"scratch_dir":       scratch.Dir(),
		"scratch_files":     len(files),
		"workers":           h.pipeline.Dispatcher().Workers(),
		"model_concurrency": h.runner.Discipline(),
		"policy":            h.pipeline.Aggregator().Policy(),
		"ws_clients":        h.hub.ClientCount(),
	})
}
