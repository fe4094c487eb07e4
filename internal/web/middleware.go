package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"edbox/internal/session"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext returns the authenticated caller placed there by
// the auth middleware.
func PrincipalFromContext(ctx context.Context) (session.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(session.Principal)
	return principal, ok
}

// SessionResolver authenticates a bearer token.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (session.Principal, error)
}

// AuthenticatedMiddleware resolves the Authorization bearer token and
// stores the principal in the request context.
func AuthenticatedMiddleware(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing Authorization header")
				return
			}
			if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
				ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid Authorization header")
				return
			}

			principal, err := sessions.Resolve(r.Context(), authHeader[7:])
			if err != nil {
				if errors.Is(err, session.ErrSessionNotFound) {
					ErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
					return
				}
				ErrorResponse(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Temporary failure, retry")
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerMiddleware logs one line per request.
func LoggerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("url", r.URL.Path),
				slog.String("ip", r.RemoteAddr),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
