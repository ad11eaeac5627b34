package router

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/fitness-api/internal/handler"
	"github.com/jwalitptl/fitness-api/internal/middleware"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	DefaultThrottle middleware.ThrottlePolicy
	AuthThrottle    middleware.ThrottlePolicy
	MetricsEnabled  bool
	MetricsPath     string
}

type Router struct {
	engine    *gin.Engine
	h         *handler.Handler
	passwordH Handler
	metrics   *metrics.Metrics
	config    RouterConfig
}

func NewRouter(h *handler.Handler, passwordH Handler, m *metrics.Metrics, config RouterConfig) *Router {
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Metrics(m),
		middleware.ErrorHandler(),
	)

	return &Router{
		engine:    engine,
		h:         h,
		passwordH: passwordH,
		metrics:   m,
		config:    config,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/health", r.h.HealthCheck)
	if r.config.MetricsEnabled {
		r.engine.GET(r.config.MetricsPath, r.h.MetricsHandler)
	}

	api := r.engine.Group("/api/v1")
	api.Use(
		func(c *gin.Context) {
			c.Header("X-API-Version", "1.0")
			c.Next()
		},
		middleware.NewRateLimiter(r.config.DefaultThrottle, r.metrics).RateLimit(),
	)

	auth := api.Group("/auth")
	auth.Use(middleware.NewRateLimiter(r.config.AuthThrottle, r.metrics).RateLimit())
	r.passwordH.RegisterRoutes(auth)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
