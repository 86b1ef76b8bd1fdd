package api

import (
	"github.com/gin-gonic/gin"

	"Minerva_2.0/pkg/ratelimiter"
)

// RegisterRoutes registers all routes of the supervisor.
// limiter may be nil when rate limiting is disabled.
func RegisterRoutes(router *gin.Engine, a *API, limiter ratelimiter.RateLimiter) {
	router.Use(RequestLogging(a.logger))
	router.GET("/health", a.HealthHandler)

	v1 := router.Group("/api/v1")
	if limiter != nil {
		v1.Use(RateLimit(limiter))
	}
	{
		v1.POST("/chat", a.ChatHandler)
		v1.GET("/agents", a.AgentsHandler)
		v1.GET("/conversations/:id/history", a.ConversationHistoryHandler)
		v1.POST("/conversations/:id/reset", a.ResetConversationHandler)
		v1.GET("/memory/stats", a.MemoryStatsHandler)
	}
}
