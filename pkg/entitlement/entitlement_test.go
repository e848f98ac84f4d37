package entitlement

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name     string
		addon    *Addon
		plan     bool
		wantVia  string
		wantCode string
	}{
		{
			name:     "no addon no plan",
			wantCode: CodeAddonRequired,
		},
		{
			name:    "active addon",
			addon:   &Addon{Status: StatusActive},
			wantVia: "addon",
		},
		{
			name:    "trial still running",
			addon:   &Addon{Status: StatusTrial, TrialEndsAt: &future},
			wantVia: "trial",
		},
		{
			name:     "trial ended",
			addon:    &Addon{Status: StatusTrial, TrialEndsAt: &past},
			wantCode: CodeTrialExpired,
		},
		{
			name:     "trial without end date",
			addon:    &Addon{Status: StatusTrial},
			wantCode: CodeTrialExpired,
		},
		{
			name:    "trial ended but plan bundles feature",
			addon:   &Addon{Status: StatusTrial, TrialEndsAt: &past},
			plan:    true,
			wantVia: "plan",
		},
		{
			name:     "cancelled addon no plan",
			addon:    &Addon{Status: StatusCancelled},
			wantCode: CodeAddonRequired,
		},
		{
			name:    "cancelled addon with plan",
			addon:   &Addon{Status: StatusCancelled},
			plan:    true,
			wantVia: "plan",
		},
		{
			name:    "plan only",
			plan:    true,
			wantVia: "plan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			via, denial := evaluate(tt.addon, tt.plan, now)
			if tt.wantCode != "" {
				if denial == nil {
					t.Fatalf("evaluate() allowed via %q, want code %s", via, tt.wantCode)
				}
				if denial.Code != tt.wantCode {
					t.Errorf("evaluate() code = %s, want %s", denial.Code, tt.wantCode)
				}
				return
			}
			if denial != nil {
				t.Fatalf("evaluate() denied with %s, want via %q", denial.Code, tt.wantVia)
			}
			if via != tt.wantVia {
				t.Errorf("evaluate() via = %q, want %q", via, tt.wantVia)
			}
		})
	}
}

func TestPlanIncludes(t *testing.T) {
	tests := []struct {
		config string
		want   bool
	}{
		{`{"features":["messaging","reports"]}`, true},
		{`{"features":["reports"]}`, false},
		{`{"features":[]}`, false},
		{`{}`, false},
		{``, false},
		{`not json`, false},
	}
	for _, tt := range tests {
		if got := planIncludes(json.RawMessage(tt.config), FeatureMessaging); got != tt.want {
			t.Errorf("planIncludes(%q) = %v, want %v", tt.config, got, tt.want)
		}
	}
}
