// Package db defines the minimal database access surface shared across
// packages: the DBTX interface satisfied by pgxpool pools, connections, and
// transactions, plus typed queries against the public (cross-tenant) schema.
// Tenant-schema queries live with their owning package's Store.
package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx operations stores depend on.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries provides typed access to public-schema tables.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given connection.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Tenant is a row of public.tenants.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Config    json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

const tenantColumns = `id, name, slug, config, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Config, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// GetTenant returns a tenant by ID.
func (q *Queries) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM public.tenants WHERE id = $1`, id)
	return scanTenant(row)
}

// GetTenantBySlug returns a tenant by slug.
func (q *Queries) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM public.tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

// CreateTenant inserts a tenant row and returns it.
func (q *Queries) CreateTenant(ctx context.Context, name, slug string, config json.RawMessage) (Tenant, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO public.tenants (name, slug, config) VALUES ($1, $2, $3)
		RETURNING `+tenantColumns, name, slug, config)
	return scanTenant(row)
}

// APIKey is a row of public.api_keys.
type APIKey struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	KeyHash   string
	KeyPrefix string
	Role      string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (q *Queries) GetAPIKeyByHash(ctx context.Context, hash string) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRow(ctx,
		`SELECT id, tenant_id, key_hash, key_prefix, role, expires_at, created_at
		FROM public.api_keys WHERE key_hash = $1`, hash).
		Scan(&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.ExpiresAt, &k.CreatedAt)
	return k, err
}

// CreateAPIKey inserts an API key row.
func (q *Queries) CreateAPIKey(ctx context.Context, tenantID uuid.UUID, hash, prefix, role string) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRow(ctx,
		`INSERT INTO public.api_keys (tenant_id, key_hash, key_prefix, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, tenant_id, key_hash, key_prefix, role, expires_at, created_at`,
		tenantID, hash, prefix, role).
		Scan(&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.ExpiresAt, &k.CreatedAt)
	return k, err
}

// UpdateAPIKeyLastUsed stamps the last_used_at column.
func (q *Queries) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE public.api_keys SET last_used_at = now() WHERE id = $1`, id)
	return err
}
