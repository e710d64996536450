package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware instruments API requests with count and duration.
// Routes are labelled by template path so cardinality stays bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(c.Writer.Status())

		RecordAPIRequest(c.Request.Method, route, status, duration)
	}
}
