package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/darkpool-labs/relaygate/internal/pkg/metrics"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		metrics.LatencyBucket.WithLabelValues(c.FullPath()).
			Observe(time.Since(start).Seconds())
	}
}
