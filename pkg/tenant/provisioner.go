package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/platform"
)

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,62}$`)

// Provisioner creates new tenants: a row in public.tenants plus a dedicated
// schema populated by the tenant migration set.
type Provisioner struct {
	DB            *pgxpool.Pool
	DatabaseURL   string
	MigrationsDir string
	Logger        *slog.Logger
}

// Provision creates the tenant row and its schema. It is not atomic across
// the two steps; re-running for an existing slug fails on the unique slug.
func (p *Provisioner) Provision(ctx context.Context, name, slug string, config json.RawMessage) (*Info, error) {
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid tenant slug %q", slug)
	}
	if config == nil {
		config = json.RawMessage(`{}`)
	}

	t, err := db.New(p.DB).CreateTenant(ctx, name, slug, config)
	if err != nil {
		return nil, fmt.Errorf("creating tenant row: %w", err)
	}

	schema := SchemaName(slug)
	if _, err := p.DB.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return nil, fmt.Errorf("creating tenant schema: %w", err)
	}

	migrateURL, err := schemaScopedURL(p.DatabaseURL, schema)
	if err != nil {
		return nil, err
	}
	if err := platform.RunTenantMigrations(migrateURL, p.MigrationsDir); err != nil {
		return nil, fmt.Errorf("migrating tenant schema %s: %w", schema, err)
	}

	p.Logger.Info("provisioned tenant", "tenant_id", t.ID, "slug", slug, "schema", schema)

	return &Info{ID: t.ID, Name: t.Name, Slug: slug, Schema: schema}, nil
}

// schemaScopedURL returns the database URL with search_path pinned to the
// tenant schema so the migrator's version table lands there too.
func schemaScopedURL(databaseURL, schema string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	q.Set("x-migrations-table", "schema_migrations")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
