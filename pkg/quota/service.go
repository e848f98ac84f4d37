package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/telemetry"
)

// Service is the quota ledger for one tenant. It is built per request from
// the tenant-scoped connection.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates a quota Service on a tenant-scoped connection.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger}
}

// Validate checks that the tenant can send one more message. A lapsed or
// drained subscription is transitioned to its terminal status as a side
// effect, so repeated checks stay cheap.
func (s *Service) Validate(ctx context.Context) (Status, error) {
	sub, err := s.store.GetActive(ctx)
	if err != nil {
		return Status{}, err
	}

	transition, denial := evaluate(sub, time.Now())
	if denial != nil {
		telemetry.QuotaDeniedTotal.Inc()
		if transition != "" && sub != nil {
			if err := s.store.SetStatus(ctx, sub.ID, transition); err != nil {
				s.logger.Error("transitioning subscription", "error", err, "status", transition)
			}
		}
		return Status{}, denial
	}

	return Status{
		SubscriptionID: sub.ID,
		PackageName:    sub.PackageName,
		MessageLimit:   sub.MessageLimit,
		MessagesUsed:   sub.MessagesUsed,
		Remaining:      sub.Remaining(),
		ExpiresAt:      sub.ExpiresAt,
	}, nil
}

// Deduct consumes one message from the balance after a successful send.
func (s *Service) Deduct(ctx context.Context) error {
	ok, err := s.store.Deduct(ctx)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.store.MarkExhausted(ctx); err != nil {
			s.logger.Error("marking subscription exhausted", "error", err)
		}
		telemetry.QuotaDeniedTotal.Inc()
		return &Error{Code: CodeQuotaExhausted, Message: "message package balance is used up"}
	}
	return nil
}

// Usage reports the current subscription state, denial code included, so the
// UI can render the balance widget from one call.
func (s *Service) Usage(ctx context.Context) (Status, *Error, error) {
	sub, err := s.store.GetActive(ctx)
	if err != nil {
		return Status{}, nil, err
	}
	_, denial := evaluate(sub, time.Now())
	if sub == nil {
		return Status{}, denial, nil
	}
	st := Status{
		SubscriptionID: sub.ID,
		PackageName:    sub.PackageName,
		MessageLimit:   sub.MessageLimit,
		MessagesUsed:   sub.MessagesUsed,
		Remaining:      sub.Remaining(),
		ExpiresAt:      sub.ExpiresAt,
	}
	return st, denial, nil
}

// Packages lists the purchasable catalog.
func (s *Service) Packages(ctx context.Context) ([]Package, error) {
	return s.store.ListPackages(ctx)
}

// Subscribe buys a package: the previous active subscription is cancelled
// and a fresh one starts now.
func (s *Service) Subscribe(ctx context.Context, packageID uuid.UUID) (Subscription, error) {
	pkg, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return Subscription{}, err
	}
	if !pkg.Active {
		return Subscription{}, fmt.Errorf("package %s is not available", pkg.Name)
	}
	sub, err := s.store.Subscribe(ctx, pkg, time.Now())
	if err != nil {
		return Subscription{}, err
	}
	s.logger.Info("subscription created",
		"package", pkg.Name, "message_limit", pkg.MessageLimit, "expires_at", sub.ExpiresAt)
	return sub, nil
}
