package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the operational endpoints.
type Handler struct {
	startedAt time.Time
	metrics   http.Handler
}

// NewHandler creates a new handler instance exposing metrics gathered from g.
func NewHandler(g prometheus.Gatherer) *Handler {
	return &Handler{
		startedAt: time.Now(),
		metrics:   promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
	}
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	h.metrics.ServeHTTP(c.Writer, c.Request)
}
