package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/timetable-api/internal/service"
)

// Metrics records one observation per request. The route template is used as
// the path label so path parameters do not explode cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			// unmatched route, typically a 404
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
