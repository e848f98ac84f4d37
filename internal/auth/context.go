package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Authentication methods.
const (
	MethodAPIKey = "apikey"
	MethodDev    = "dev"
)

// Roles. Admin may change configuration, credentials, and entitlements;
// agent may use the conversation and send surfaces.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// IsValidRole reports whether the role is one of the known roles.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleAgent
}

// Identity describes the authenticated caller.
type Identity struct {
	Subject    string
	Role       string
	TenantSlug string
	TenantID   uuid.UUID
	APIKeyID   *uuid.UUID
	Method     string
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil when the
// request was not authenticated.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}

// RequireAuth rejects requests that carry no identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose identity lacks the given role.
// Admin satisfies every role check.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil || (id.Role != role && id.Role != RoleAdmin) {
				respondErr(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
