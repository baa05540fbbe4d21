package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"rentchat/internal/httpjson"
	"rentchat/internal/user"
)

// Authenticator turns a bearer token into a live identity.
// Implemented by user.TokenService.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (user.Identity, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *slog.Logger
}

func NewAuthMiddleware(a Authenticator, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{auth: a, logger: logger}
}

// TokenFromRequest reads the bearer token from the Authorization header, falling back
// to the token query parameter (browsers cannot set headers on a WebSocket handshake).
func TokenFromRequest(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Handle guards REST routes.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := am.auth.Authenticate(r.Context(), TokenFromRequest(r))
		if err != nil {
			switch {
			case errors.Is(err, user.ErrMissingToken):
				httpjson.Error(w, http.StatusUnauthorized, "No authentication token, access denied")
			case errors.Is(err, user.ErrInvalidToken), errors.Is(err, user.ErrUserNotFound):
				httpjson.Error(w, http.StatusUnauthorized, "Token is not valid")
			default:
				am.logger.Error("auth.lookup_failed", "path", r.URL.Path, "err", err)
				httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		next.ServeHTTP(w, r.WithContext(user.WithIdentity(r.Context(), id)))
	})
}

// HandleHandshake guards the WebSocket endpoint. Every failure is reported the same
// way so the client gets no hint beyond re-authenticating.
func (am *AuthMiddleware) HandleHandshake(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := am.auth.Authenticate(r.Context(), TokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, user.ErrMissingToken) && !errors.Is(err, user.ErrInvalidToken) && !errors.Is(err, user.ErrUserNotFound) {
				am.logger.Error("ws.handshake.lookup_failed", "remote", r.RemoteAddr, "err", err)
			}
			httpjson.Error(w, http.StatusUnauthorized, "Authentication error")
			return
		}

		next.ServeHTTP(w, r.WithContext(user.WithIdentity(r.Context(), id)))
	})
}
