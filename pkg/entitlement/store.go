package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
)

// Store provides database operations for feature addons (public schema).
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an addon Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const addonColumns = `id, tenant_id, feature, status, trial_ends_at, trial_used_at, created_at, updated_at`

func scanAddon(row pgx.Row) (Addon, error) {
	var a Addon
	err := row.Scan(
		&a.ID, &a.TenantID, &a.Feature, &a.Status,
		&a.TrialEndsAt, &a.TrialUsedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// Get returns the addon row for (tenant, feature); nil when absent.
func (s *Store) Get(ctx context.Context, tenantID uuid.UUID, feature string) (*Addon, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+addonColumns+` FROM public.feature_addons
		WHERE tenant_id = $1 AND feature = $2`, tenantID, feature)
	a, err := scanAddon(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching addon: %w", err)
	}
	return &a, nil
}

// Upsert sets the addon status for (tenant, feature).
func (s *Store) Upsert(ctx context.Context, tenantID uuid.UUID, feature, status string, trialEndsAt *time.Time) (Addon, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO public.feature_addons (tenant_id, feature, status, trial_ends_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, feature) DO UPDATE
		SET status = EXCLUDED.status, trial_ends_at = EXCLUDED.trial_ends_at, updated_at = now()
		RETURNING `+addonColumns,
		tenantID, feature, status, trialEndsAt)
	return scanAddon(row)
}

// StartTrial moves the addon to trial and stamps trial_used_at. The WHERE
// guard refuses tenants whose trial was already consumed.
func (s *Store) StartTrial(ctx context.Context, tenantID uuid.UUID, feature string, endsAt time.Time) (Addon, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO public.feature_addons (tenant_id, feature, status, trial_ends_at, trial_used_at)
		VALUES ($1, $2, 'trial', $3, now())
		ON CONFLICT (tenant_id, feature) DO UPDATE
		SET status = 'trial', trial_ends_at = EXCLUDED.trial_ends_at, trial_used_at = now(), updated_at = now()
		WHERE public.feature_addons.trial_used_at IS NULL
		RETURNING `+addonColumns,
		tenantID, feature, endsAt)
	return scanAddon(row)
}

// SetStatus updates only the status column.
func (s *Store) SetStatus(ctx context.Context, tenantID uuid.UUID, feature, status string) (Addon, error) {
	row := s.dbtx.QueryRow(ctx,
		`UPDATE public.feature_addons SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND feature = $2
		RETURNING `+addonColumns,
		tenantID, feature, status)
	return scanAddon(row)
}
