package ws

import (
	"net/http"

	"github.com/google/uuid"

	"chat-router/internal/middleware"
)

func newConnID() string {
	return uuid.NewString()
}

// tokenFromRequest reads a bearer token from the Authorization header or the token query parameter.
func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ := middleware.BearerToken(header)
		return token
	}
	return r.URL.Query().Get("token")
}
