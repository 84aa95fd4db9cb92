package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/graphmem/pkg/driver"
	"github.com/soundprediction/graphmem/pkg/worker"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	graph  driver.GraphDriver
	worker *worker.Worker
}

// NewHealthHandler creates a health handler. Both dependencies may be
// nil.
func NewHealthHandler(graph driver.GraphDriver, w *worker.Worker) *HealthHandler {
	return &HealthHandler{graph: graph, worker: w}
}

// HealthCheck handles GET /healthcheck.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "graphmem"})
}

// ReadinessCheck handles GET /ready: verifies the graph store answers.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if h.graph != nil {
		if _, _, _, err := h.graph.ExecuteQuery("RETURN 1 AS ok", nil); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "service": "graphmem"})
}

// WorkerMetrics handles GET /metrics/worker.
func (h *HealthHandler) WorkerMetrics(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "worker not running"})
		return
	}
	c.JSON(http.StatusOK, h.worker.Metrics())
}
