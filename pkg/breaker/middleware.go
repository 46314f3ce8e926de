package breaker

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware rejects requests outright while the circuit is open, so routes
// that depend on the protected backend fail fast instead of attempting the
// call per request.
func (cb *CircuitBreaker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		retryAfter := cb.RetryAfter()
		if retryAfter > 0 {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success":             false,
				"message":             "Service temporarily unavailable. Please try again later.",
				"retry_after_seconds": int(retryAfter.Seconds()),
			})
			return
		}
		c.Next()
	}
}
