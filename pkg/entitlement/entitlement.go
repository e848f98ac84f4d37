// Package entitlement gates access to the messaging gateway per tenant.
// A tenant is entitled when it holds an active addon, an unexpired trial,
// or a subscription plan that bundles the feature.
package entitlement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FeatureMessaging is the addon feature key for the messaging gateway.
const FeatureMessaging = "messaging"

// Addon statuses.
const (
	StatusActive    = "active"
	StatusTrial     = "trial"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Machine-readable denial codes.
const (
	CodeAddonRequired = "ADDON_REQUIRED"
	CodeTrialExpired  = "TRIAL_EXPIRED"
)

// Error is a gating denial with a machine-readable code for client branching.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Addon is a row of public.feature_addons.
type Addon struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Feature     string     `json:"feature"`
	Status      string     `json:"status"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	TrialUsedAt *time.Time `json:"trial_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// StatusResponse is the JSON shape for the entitlement status endpoint.
type StatusResponse struct {
	Feature     string     `json:"feature"`
	Entitled    bool       `json:"entitled"`
	Via         string     `json:"via,omitempty"` // addon, trial, plan
	Code        string     `json:"code,omitempty"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
	TrialUsed   bool       `json:"trial_used"`
}

// planConfig is the fragment of tenants.config the gate cares about.
type planConfig struct {
	Features []string `json:"features"`
}

// planIncludes reports whether the tenant's plan config bundles the feature.
func planIncludes(config json.RawMessage, feature string) bool {
	if len(config) == 0 {
		return false
	}
	var pc planConfig
	if err := json.Unmarshal(config, &pc); err != nil {
		return false
	}
	for _, f := range pc.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// evaluate decides entitlement from an addon row (nil when absent) and the
// plan bundle flag. Returns the access path ("addon", "trial", "plan") or a
// typed denial.
func evaluate(addon *Addon, planHasFeature bool, now time.Time) (string, *Error) {
	if addon != nil {
		switch addon.Status {
		case StatusActive:
			return "addon", nil
		case StatusTrial:
			if addon.TrialEndsAt != nil && addon.TrialEndsAt.After(now) {
				return "trial", nil
			}
			if !planHasFeature {
				return "", &Error{Code: CodeTrialExpired, Message: "trial period has ended"}
			}
		}
	}
	if planHasFeature {
		return "plan", nil
	}
	return "", &Error{Code: CodeAddonRequired, Message: "messaging addon is not enabled for this tenant"}
}
