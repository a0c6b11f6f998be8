// ABOUTME: HTTP middleware that authenticates requests and stores the UserContext
// ABOUTME: Rejections are written as JSON errors before any handler runs

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/dexi-gateway/internal/apperr"
	"github.com/2389/dexi-gateway/internal/identity"
)

const (
	errMissingHeader = "missing authorization header"
	errBadFormat     = "invalid authorization header format"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadFormat
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errBadFormat
	}
	return token, ""
}

// Middleware authenticates every request and attaches the caller with identity.WithUser.
func Middleware(a *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := a.AuthenticateRequest(r)
			if err != nil {
				logger.Warn("authentication failed",
					"path", r.URL.Path,
					"code", apperr.CodeOf(err),
					"error", err,
				)
				apperr.WriteJSON(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
		})
	}
}
