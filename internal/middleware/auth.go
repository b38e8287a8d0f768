package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-router/internal/logging"
)

// UsernameKey is the gin context key holding the authenticated username.
const UsernameKey = "username"

// TokenValidator returns the username a bearer token was issued to.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// AuthMiddleware validates the Authorization bearer token.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		username, err := validator.Validate(token)
		if err != nil {
			logger := logging.Ctx(c.Request.Context())
			logger.Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UsernameKey, username)
		logger := logging.Ctx(c.Request.Context()).With().Str(logging.FieldUsername, username).Logger()
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
