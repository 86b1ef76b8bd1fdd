package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"Minerva_2.0/internal/models"
	"Minerva_2.0/pkg/logger"
	"Minerva_2.0/pkg/ratelimiter"
)

// RequestLogging writes one structured line per request with the request
// context, response status and latency.
func RequestLogging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithRequest(models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		}).WithPayload(map[string]interface{}{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	}
}

// RateLimit rejects requests with 429 once the limiter runs dry.
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": gin.H{"code": "RATE_LIMITED", "message": "Too Many Requests"}})
			return
		}
		c.Next()
	}
}
