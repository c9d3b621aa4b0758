package api

import (
	"github.com/gin-gonic/gin"

	"instalytics/internal/handler"
	"instalytics/internal/logger"
	"instalytics/internal/middleware"
)

// NewRouter builds the gin engine.
//
//	GET  /health
//	GET  /metrics
//	POST /api/analyze        (auth, rate limited)
//	POST /api/jobs           (auth, rate limited)
//	GET  /api/jobs/:id       (auth)
//	GET  /api/history        (auth)
func NewRouter(cfg Config, deps Deps, log logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS())

	router.GET("/health", handler.Health(cfg.Version, deps.Health))
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	api := router.Group("/api")
	if !cfg.AuthDisabled {
		api.Use(middleware.Auth(cfg.JWTSecret))
	}

	var limit gin.HandlersChain
	if !cfg.RateLimitDisabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, log)
		limit = gin.HandlersChain{limiter.Middleware()}
	}
	limited := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(limit[:len(limit):len(limit)], fn)
	}

	h := deps.Handler
	api.POST("/analyze", limited(h.Analyze)...)
	api.POST("/jobs", limited(h.StartJob)...)
	api.GET("/jobs/:id", h.GetJob)
	api.GET("/history", h.History)

	return router
}
