package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pulseboard/pulseboard/internal/logging"
)

// unmatchedEndpoint labels requests that hit no route, keeping label cardinality bounded.
const unmatchedEndpoint = "unmatched"

// Middleware records HTTP metrics for each request.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		defer m.DecHTTPRequestsInFlight()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = unmatchedEndpoint
		}

		m.RecordRequestLatency(endpoint, c.Request.Method, status, duration)
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if len(c.Errors) > 0 {
			m.RecordError("http", endpoint)
			logger.ErrorWithContext(c.Request.Context(), "request error", "endpoint", endpoint, "error", c.Errors.String())
		}
	}
}
