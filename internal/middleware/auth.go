package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/metrics"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
)

const unauthenticatedMessage = "Could not validate credentials"

type Authenticator interface {
	Resolve(ctx context.Context, bearer string) (*model.User, error)
	ResolveOptional(ctx context.Context, bearer string) auth.Identity
}

// BearerToken returns the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// queryOrBearerToken also accepts ?token=, for WebSocket upgrades where
// browsers cannot set headers.
func queryOrBearerToken(r *http.Request) string {
	if t := BearerToken(r); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

// RequireAuth resolves the bearer token to a user and stores it in the
// request context. Every credential problem gets the same 401.
func RequireAuth(a Authenticator, m *metrics.Collector, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireAuth(a, m, logger, BearerToken)
}

// RequireStreamAuth is RequireAuth that also takes the token from the
// "token" query parameter.
func RequireStreamAuth(a Authenticator, m *metrics.Collector, logger *slog.Logger) func(http.Handler) http.Handler {
	return requireAuth(a, m, logger, queryOrBearerToken)
}

func requireAuth(a Authenticator, m *metrics.Collector, logger *slog.Logger, token func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := token(r)
			if bearer == "" {
				m.AuthFailure("missing_token")
				unauthorized(w)
				return
			}

			u, err := a.Resolve(r.Context(), bearer)
			switch {
			case errors.Is(err, auth.ErrUnauthenticated):
				m.AuthFailure("invalid_token")
				unauthorized(w)
				return
			case errors.Is(err, store.ErrUnavailable):
				logger.Error("resolve identity", "error", err)
				writeError(w, http.StatusServiceUnavailable, "Database connection unavailable")
				return
			case err != nil:
				logger.Error("resolve identity", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

// OptionalAuth stores the caller's identity, anonymous when unresolvable,
// and never rejects the request.
func OptionalAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := a.ResolveOptional(r.Context(), BearerToken(r))
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
}
