package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-tic/projector-loan-api/internal/service"
)

// MetricsHandler serves the Prometheus scrape endpoint and the health
// probe used by deployment checks.
type MetricsHandler struct {
	metrics *service.MetricsService
}

func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus exposes the metrics registry in the Prometheus text format.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health reports liveness. It deliberately avoids touching the
// database so a degraded dependency does not flap the probe.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
