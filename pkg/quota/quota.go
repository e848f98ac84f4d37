// Package quota tracks per-tenant message allowances. Every tenant buys a
// message package; sends draw down the active subscription one message at a
// time and stop when the balance or the validity window runs out.
package quota

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses.
const (
	StatusActive    = "active"
	StatusTrial     = "trial"
	StatusExpired   = "expired"
	StatusExhausted = "exhausted"
	StatusCancelled = "cancelled"
)

// Machine-readable denial codes.
const (
	CodeNoSubscription      = "NO_SUBSCRIPTION"
	CodeSubscriptionExpired = "SUBSCRIPTION_EXPIRED"
	CodeQuotaExhausted      = "QUOTA_EXHAUSTED"
)

// Error is a quota denial with a machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Subscription is a row of the tenant's subscriptions table.
type Subscription struct {
	ID           uuid.UUID  `json:"id"`
	PackageID    uuid.UUID  `json:"package_id"`
	PackageName  string     `json:"package_name"`
	MessageLimit int        `json:"message_limit"`
	MessagesUsed int        `json:"messages_used"`
	Status       string     `json:"status"`
	StartsAt     time.Time  `json:"starts_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	RenewalAt    *time.Time `json:"renewal_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Remaining returns the unused message balance, never negative.
func (s Subscription) Remaining() int {
	if r := s.MessageLimit - s.MessagesUsed; r > 0 {
		return r
	}
	return 0
}

// Package is a row of public.message_packages.
type Package struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	MessageLimit int       `json:"message_limit"`
	PriceCents   int       `json:"price_cents"`
	ValidityDays int       `json:"validity_days"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Status is the result of a successful quota check.
type Status struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PackageName    string    `json:"package_name"`
	MessageLimit   int       `json:"message_limit"`
	MessagesUsed   int       `json:"messages_used"`
	Remaining      int       `json:"remaining"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// evaluate decides whether the subscription can cover one more message.
// When the row needs a state change first (lapsed validity, drained balance)
// the target status is returned alongside the denial.
func evaluate(sub *Subscription, now time.Time) (transition string, denial *Error) {
	if sub == nil {
		return "", &Error{Code: CodeNoSubscription, Message: "no active message package"}
	}
	if !sub.ExpiresAt.IsZero() && !sub.ExpiresAt.After(now) {
		return StatusExpired, &Error{Code: CodeSubscriptionExpired, Message: "message package validity has ended"}
	}
	if sub.Remaining() <= 0 {
		return StatusExhausted, &Error{Code: CodeQuotaExhausted, Message: "message package balance is used up"}
	}
	return "", nil
}
