package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) HealthCheck(c *gin.Context) {
	JSON(c, http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}
