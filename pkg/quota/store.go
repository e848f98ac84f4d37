package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
)

// Store provides database operations for subscriptions. Subscription rows
// live in the tenant schema, so the store expects a tenant-scoped connection.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a subscription Store backed by the given connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const subColumns = `id, package_id, package_name, message_limit, messages_used,
	status, starts_at, expires_at, renewal_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.PackageID, &s.PackageName, &s.MessageLimit, &s.MessagesUsed,
		&s.Status, &s.StartsAt, &s.ExpiresAt, &s.RenewalAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// GetActive returns the tenant's active subscription; nil when absent.
func (s *Store) GetActive(ctx context.Context) (*Subscription, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions WHERE status = 'active'`)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching active subscription: %w", err)
	}
	return &sub, nil
}

// SetStatus moves a subscription to a new status.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	return nil
}

// Deduct consumes one message from the active subscription. The WHERE guard
// keeps messages_used below message_limit even under concurrent sends; a
// zero-row result means the balance is gone.
func (s *Store) Deduct(ctx context.Context) (bool, error) {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE subscriptions
		SET messages_used = messages_used + 1, updated_at = now()
		WHERE status = 'active' AND messages_used < message_limit`)
	if err != nil {
		return false, fmt.Errorf("deducting message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkExhausted flips the active subscription to exhausted.
func (s *Store) MarkExhausted(ctx context.Context) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE subscriptions SET status = 'exhausted', updated_at = now()
		WHERE status = 'active' AND messages_used >= message_limit`)
	if err != nil {
		return fmt.Errorf("marking subscription exhausted: %w", err)
	}
	return nil
}

// ListPackages returns the purchasable package catalog from the public schema.
func (s *Store) ListPackages(ctx context.Context) ([]Package, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT id, name, message_limit, price_cents, validity_days, active, created_at
		FROM public.message_packages WHERE active ORDER BY price_cents`)
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	defer rows.Close()

	var pkgs []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.Name, &p.MessageLimit, &p.PriceCents,
			&p.ValidityDays, &p.Active, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// GetPackage fetches one catalog entry.
func (s *Store) GetPackage(ctx context.Context, id uuid.UUID) (Package, error) {
	var p Package
	err := s.dbtx.QueryRow(ctx,
		`SELECT id, name, message_limit, price_cents, validity_days, active, created_at
		FROM public.message_packages WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.MessageLimit, &p.PriceCents,
			&p.ValidityDays, &p.Active, &p.CreatedAt)
	if err != nil {
		return Package{}, fmt.Errorf("fetching package: %w", err)
	}
	return p, nil
}

// Subscribe cancels any current active subscription and creates a fresh one
// from the package. The partial unique index on status='active' makes the
// two statements safe to run back to back.
func (s *Store) Subscribe(ctx context.Context, pkg Package, now time.Time) (Subscription, error) {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE subscriptions SET status = 'cancelled', updated_at = now()
		WHERE status = 'active'`)
	if err != nil {
		return Subscription{}, fmt.Errorf("cancelling previous subscription: %w", err)
	}

	expires := now.AddDate(0, 0, pkg.ValidityDays)
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO subscriptions
			(package_id, package_name, message_limit, messages_used, status, starts_at, expires_at)
		VALUES ($1, $2, $3, 0, 'active', $4, $5)
		RETURNING `+subColumns,
		pkg.ID, pkg.Name, pkg.MessageLimit, now, expires)
	sub, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, fmt.Errorf("creating subscription: %w", err)
	}
	return sub, nil
}
