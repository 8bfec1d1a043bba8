package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"passgate/internal/identity"
)

// TokenVerifier validates a bearer token and returns the embedded actor.
type TokenVerifier interface {
	Verify(tokenString string) (identity.Actor, error)
}

type contextKeyActor struct{}

// ContextKeyActor is exported for use in handlers and tests.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context.
func GetActor(ctx context.Context) (identity.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(identity.Actor)
	return actor, ok
}

// WithActor returns a context carrying the actor. Used by tests to simulate
// an authenticated request without going through the middleware.
func WithActor(ctx context.Context, actor identity.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

func writeAuthError(w http.ResponseWriter, status int, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + errCodeFor(status) + `","error_description":"` + desc + `"}`))
}

func errCodeFor(status int) string {
	if status == http.StatusForbidden {
		return "forbidden"
	}
	return "unauthorized"
}

// RequireAuth validates the bearer token and stores the actor in the request
// context. Resource-level department scoping is NOT enforced here: it depends
// on the resource being touched, so each write operation resolves it via
// identity.Authorize.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			after, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(r.Context(), "unauthorized access - missing token",
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
				return
			}

			actor, err := verifier.Verify(after)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole is the coarse role-membership gate. It only checks
// actor.Role against the allowed set; department scoping stays per-resource.
func RequireRole(logger *slog.Logger, allowed ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActor(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Missing authenticated actor")
				return
			}
			for _, role := range allowed {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(r.Context(), "forbidden - role not allowed",
				"role", actor.Role,
				"request_id", GetRequestID(r.Context()),
			)
			writeAuthError(w, http.StatusForbidden, "Role not permitted for this operation")
		})
	}
}
