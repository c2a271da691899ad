package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader carries the request correlation ID on the wire. Callers
// may supply their own; the gateway mints one otherwise and always echoes it
// back on the response.
const CorrelationIDHeader = "X-Correlation-ID"

const correlationContextKey = "correlation_id"

// Correlation IDs longer than this are treated as garbage and replaced.
const maxCorrelationIDLength = 128

// CorrelationID attaches a correlation ID to every request. The ID threads
// through request logs, the settlement task, and the outbox event, so one
// value follows a transaction from HTTP intake to terminal notification.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(CorrelationIDHeader))
		if id == "" || len(id) > maxCorrelationIDLength {
			id = uuid.New().String()
		}

		c.Set(correlationContextKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation ID, or "" when the
// middleware did not run.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(correlationContextKey)
}
