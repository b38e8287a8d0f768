package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-router/internal/logging"
	"chat-router/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	if id := logging.RequestID(c.Request.Context()); id != "" {
		return id
	}

	requestID := c.GetHeader(middleware.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func usernameFromContext(c *gin.Context) string {
	return c.GetString(middleware.UsernameKey)
}
