package middleware

import (
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics counts requests per route template so path parameters do not explode label cardinality
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status())
	}
}
