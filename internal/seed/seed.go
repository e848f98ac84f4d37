// Package seed provisions a demo tenant with enough data to exercise every
// surface: package catalog, active addon and subscription, an approved
// template with a trigger, and a sample conversation.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuspos/chatgate/internal/auth"
	"github.com/nimbuspos/chatgate/internal/config"
	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/pkg/entitlement"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

const (
	demoSlug = "demo"
	demoName = "Demo Bistro"
)

// Run seeds the database. Re-running against an already seeded database is
// a no-op.
func Run(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) error {
	queries := db.New(pool)

	if _, err := queries.GetTenantBySlug(ctx, demoSlug); err == nil {
		logger.Info("demo tenant already exists, nothing to do", "slug", demoSlug)
		return nil
	}

	if err := seedPackages(ctx, pool); err != nil {
		return err
	}

	provisioner := &tenant.Provisioner{
		DB:            pool,
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsTenantDir,
		Logger:        logger,
	}
	ti, err := provisioner.Provision(ctx, demoName, demoSlug, json.RawMessage(`{}`))
	if err != nil {
		return fmt.Errorf("provisioning demo tenant: %w", err)
	}

	if _, err := entitlement.NewStore(pool).Upsert(ctx, ti.ID, entitlement.FeatureMessaging, entitlement.StatusActive, nil); err != nil {
		return fmt.Errorf("granting demo addon: %w", err)
	}

	rawKey, err := seedAPIKey(ctx, queries, ti)
	if err != nil {
		return err
	}

	if err := seedTenantData(ctx, pool, ti); err != nil {
		return err
	}

	logger.Info("database seeded", "tenant", demoSlug, "api_key", rawKey)
	return nil
}

func seedPackages(ctx context.Context, pool *pgxpool.Pool) error {
	packages := []struct {
		name         string
		messageLimit int
		priceCents   int
		validityDays int
	}{
		{"starter", 500, 1900, 30},
		{"growth", 2500, 6900, 30},
		{"scale", 10000, 19900, 30},
	}
	for _, p := range packages {
		_, err := pool.Exec(ctx,
			`INSERT INTO public.message_packages (name, message_limit, price_cents, validity_days, active)
			VALUES ($1, $2, $3, $4, true)
			ON CONFLICT (name) DO NOTHING`,
			p.name, p.messageLimit, p.priceCents, p.validityDays)
		if err != nil {
			return fmt.Errorf("seeding package %s: %w", p.name, err)
		}
	}
	return nil
}

func seedAPIKey(ctx context.Context, queries *db.Queries, ti *tenant.Info) (string, error) {
	rawKey, err := auth.GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("generating demo api key: %w", err)
	}
	_, err = queries.CreateAPIKey(ctx, ti.ID, auth.HashAPIKey(rawKey), rawKey[:auth.KeyPrefixLen], auth.RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("storing demo api key: %w", err)
	}
	return rawKey, nil
}

// seedTenantData writes subscription, template, trigger, and conversation
// rows inside the demo tenant's schema.
func seedTenantData(ctx context.Context, pool *pgxpool.Pool, ti *tenant.Info) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for tenant seed: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx,
		`SELECT set_config('search_path', $1, false)`, ti.Schema+",public"); err != nil {
		return fmt.Errorf("setting search_path: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO subscriptions (package_id, package_name, message_limit, messages_used, status, starts_at, expires_at)
		SELECT id, name, message_limit, 0, 'active', now(), now() + (validity_days || ' days')::interval
		FROM public.message_packages WHERE name = 'starter'`)
	if err != nil {
		return fmt.Errorf("seeding subscription: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO templates (name, category, language, body, status, provider_template_id)
		VALUES ('order_ready', 'UTILITY', 'en', 'Hi {{1}}, your order {{2}} is ready for pickup.', 'approved', 'seed-tpl-1')`)
	if err != nil {
		return fmt.Errorf("seeding template: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO triggers (event, template_id, variable_mapping, enabled)
		SELECT 'order.ready', id, '["customer_name","order_number"]'::jsonb, true
		FROM templates WHERE name = 'order_ready'`)
	if err != nil {
		return fmt.Errorf("seeding trigger: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO conversations (customer_phone, customer_name, last_message_preview, last_message_at, unread_count)
		VALUES ('+15550100001', 'Ada Lovelace', 'see you at 6', now(), 1)`)
	if err != nil {
		return fmt.Errorf("seeding conversation: %w", err)
	}

	_, err = conn.Exec(ctx,
		`INSERT INTO chat_messages (conversation_id, direction, content_type, body, status)
		SELECT id, 'inbound', 'text', 'see you at 6', 'delivered' FROM conversations
		WHERE customer_phone = '+15550100001'`)
	if err != nil {
		return fmt.Errorf("seeding chat message: %w", err)
	}

	return nil
}
