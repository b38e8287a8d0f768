package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-router/internal/logging"
)

const (
	HeaderRequestID = "X-Request-ID"
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"
)

// RequestLogger reads or generates a request id, puts a request-scoped logger on the
// request context and logs the completed request.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		child := logger.With().
			Str(logging.FieldRequestID, reqID).
			Str(logging.FieldMethod, c.Request.Method).
			Str(logging.FieldPath, c.Request.URL.Path).
			Str(logging.FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(HeaderRequestID, reqID)
		c.Set(RequestIDKey, reqID)
		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(logging.WithLogger(ctx, child))

		c.Next()

		evt := child.Info().
			Int(logging.FieldStatus, c.Writer.Status()).
			Float64(logging.FieldLatency, float64(time.Since(start).Milliseconds()))
		if username := c.GetString(UsernameKey); username != "" {
			evt = evt.Str(logging.FieldUsername, username)
		}
		evt.Msg("request completed")
	}
}
