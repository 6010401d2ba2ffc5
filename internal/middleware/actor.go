package middleware

import (
	"context"
	"net/http"

	"github.com/dukerupert/vanir/internal/domain"
)

const (
	// ActorRoleHeader and ActorIDHeader carry the authenticated principal.
	// Authentication happens upstream (API gateway); the pipeline trusts
	// these headers and only enforces authorization.
	ActorRoleHeader = "X-Actor-Role"
	ActorIDHeader   = "X-Actor-Id"

	// ActorContextKey is the context key for the request actor
	ActorContextKey contextKey = "actor"
)

// WithActor resolves the acting principal from the request headers and
// stores it in the context. Requests without a role header are rejected;
// customer and supplier actors must carry an ID.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := domain.Role(r.Header.Get(ActorRoleHeader))
		id := r.Header.Get(ActorIDHeader)

		switch role {
		case domain.RoleCustomer, domain.RoleSupplier:
			if id == "" {
				respondUnauthorized(w, "actor ID is required")
				return
			}
		case domain.RoleAdmin, domain.RoleSystem:
			// no ID required
		default:
			respondUnauthorized(w, "unknown or missing actor role")
			return
		}

		ctx := context.WithValue(r.Context(), ActorContextKey, domain.Actor{Role: role, ID: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActor retrieves the acting principal from the context.
func GetActor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(domain.Actor)
	return actor, ok
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + message + `"}}`)) //nolint:errcheck
}
