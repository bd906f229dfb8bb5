package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/internal/service"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type snapshotStatus interface {
	Info() (models.SnapshotInfo, bool)
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics   *service.MetricsService
	snapshots snapshotStatus
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, snapshots snapshotStatus) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, snapshots: snapshots}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports ready once a snapshot has been loaded. A stale snapshot still
// serves reads, so it is reported but does not fail the probe.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	info, ok := h.snapshots.Info()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "snapshotVersion": info.Version, "stale": info.Stale})
}

// Summary godoc
// @Summary Lightweight metrics summary
// @Tags Observability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/summary [get]
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
