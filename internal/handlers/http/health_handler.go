package http

import (
	"net/http"

	"vinyl/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker *monitoring.HealthChecker
	metrics http.Handler
}

// NewHealthHandler serves liveness and readiness. metrics may be nil when
// prometheus export is disabled.
func NewHealthHandler(checker *monitoring.HealthChecker, metrics http.Handler) *HealthHandler {
	return &HealthHandler{checker: checker, metrics: metrics}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Health reports liveness with the latest background check results. It never
// fails while the process can answer.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Cached())
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
