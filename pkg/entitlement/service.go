package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbuspos/chatgate/internal/db"
)

// DefaultTrialDays is the length of a messaging trial.
const DefaultTrialDays = 14

// Service decides whether a tenant may use the messaging gateway.
// Addons live in the public schema, so the service runs on the global pool.
type Service struct {
	pool   *pgxpool.Pool
	store  *Store
	logger *slog.Logger
}

// NewService creates an entitlement Service.
func NewService(pool *pgxpool.Pool, logger *slog.Logger) *Service {
	return &Service{pool: pool, store: NewStore(pool), logger: logger}
}

// Check returns nil when the tenant may use the gateway, or a typed *Error
// with an ADDON_REQUIRED or TRIAL_EXPIRED code.
func (s *Service) Check(ctx context.Context, tenantID uuid.UUID) error {
	addon, err := s.store.Get(ctx, tenantID, FeatureMessaging)
	if err != nil {
		return err
	}

	t, err := db.New(s.pool).GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("fetching tenant for entitlement check: %w", err)
	}

	if _, denial := evaluate(addon, planIncludes(t.Config, FeatureMessaging), time.Now()); denial != nil {
		return denial
	}
	return nil
}

// Status reports the entitlement decision plus trial bookkeeping for the UI.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID) (StatusResponse, error) {
	addon, err := s.store.Get(ctx, tenantID, FeatureMessaging)
	if err != nil {
		return StatusResponse{}, err
	}

	t, err := db.New(s.pool).GetTenant(ctx, tenantID)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("fetching tenant: %w", err)
	}

	resp := StatusResponse{Feature: FeatureMessaging}
	if addon != nil {
		resp.TrialEndsAt = addon.TrialEndsAt
		resp.TrialUsed = addon.TrialUsedAt != nil
	}

	via, denial := evaluate(addon, planIncludes(t.Config, FeatureMessaging), time.Now())
	if denial != nil {
		resp.Code = denial.Code
		return resp, nil
	}
	resp.Entitled = true
	resp.Via = via
	return resp, nil
}

// StartTrial begins the one-shot messaging trial for a tenant.
func (s *Service) StartTrial(ctx context.Context, tenantID uuid.UUID) (Addon, error) {
	endsAt := time.Now().AddDate(0, 0, DefaultTrialDays)
	addon, err := s.store.StartTrial(ctx, tenantID, FeatureMessaging, endsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Addon{}, &Error{Code: CodeTrialExpired, Message: "trial was already used"}
		}
		return Addon{}, fmt.Errorf("starting trial: %w", err)
	}
	s.logger.Info("messaging trial started", "tenant_id", tenantID, "ends_at", endsAt)
	return addon, nil
}

// Grant activates the addon (post-purchase hook).
func (s *Service) Grant(ctx context.Context, tenantID uuid.UUID) (Addon, error) {
	addon, err := s.store.Upsert(ctx, tenantID, FeatureMessaging, StatusActive, nil)
	if err != nil {
		return Addon{}, fmt.Errorf("granting addon: %w", err)
	}
	s.logger.Info("messaging addon granted", "tenant_id", tenantID)
	return addon, nil
}

// Cancel marks the addon cancelled; access falls back to the plan bundle.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID) (Addon, error) {
	addon, err := s.store.SetStatus(ctx, tenantID, FeatureMessaging, StatusCancelled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Addon{}, &Error{Code: CodeAddonRequired, Message: "no addon to cancel"}
		}
		return Addon{}, fmt.Errorf("cancelling addon: %w", err)
	}
	return addon, nil
}
