package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
)

// Middleware authenticates the caller and stores the resulting Identity in
// the request context.
//
// Authentication precedence:
//  1. X-API-Key: <raw-key>      →  API key hash lookup
//  2. X-Tenant-Slug: <slug>     →  dev-mode fallback (no real auth)
//
// If neither succeeds, the request is rejected with 401.
func Middleware(pool db.DBTX, devMode bool, logger *slog.Logger) func(http.Handler) http.Handler {
	apikeyAuth := &APIKeyAuthenticator{DB: pool}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var identity *Identity

			if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
				result, err := apikeyAuth.Authenticate(r.Context(), rawKey)
				if err != nil {
					logger.Warn("API key authentication failed", "error", err)
					respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
					return
				}

				t, err := db.New(pool).GetTenant(r.Context(), result.TenantID)
				if err != nil {
					logger.Error("tenant lookup for API key failed", "tenant_id", result.TenantID, "error", err)
					respondErr(w, http.StatusUnauthorized, "unauthorized", "tenant not found")
					return
				}

				identity = &Identity{
					Subject:    fmt.Sprintf("apikey:%s", result.KeyPrefix),
					Role:       result.Role,
					TenantSlug: t.Slug,
					TenantID:   t.ID,
					APIKeyID:   &result.APIKeyID,
					Method:     MethodAPIKey,
				}
			}

			if identity == nil && devMode {
				if slug := r.Header.Get("X-Tenant-Slug"); slug != "" {
					identity = &Identity{
						Subject:    "dev:anonymous",
						Role:       RoleAdmin,
						TenantSlug: slug,
						TenantID:   uuid.Nil,
						Method:     MethodDev,
					}
					logger.Debug("dev-mode authentication", "tenant_slug", slug)
				}
			}

			if identity == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "no valid authentication provided")
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), identity)))
		})
	}
}

// respondErr writes a JSON error envelope without importing httpserver.
func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
