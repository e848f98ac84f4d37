// Package template manages message template lifecycle. Templates are
// drafted locally, submitted to the provider for review, and only approved
// templates may be bound to triggers or sent.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Template statuses.
const (
	StatusDraft    = "draft"
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Template categories accepted by the provider.
const (
	CategoryUtility        = "UTILITY"
	CategoryMarketing      = "MARKETING"
	CategoryAuthentication = "AUTHENTICATION"
)

// ValidationError is a lifecycle rule violation, safe to show to clients.
type ValidationError struct {
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return e.Message }

// Template is a row of the tenant's templates table.
type Template struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	Language           string    `json:"language"`
	HeaderText         string    `json:"header_text,omitempty"`
	Body               string    `json:"body"`
	FooterText         string    `json:"footer_text,omitempty"`
	Buttons            []string  `json:"buttons,omitempty"`
	Status             string    `json:"status"`
	ProviderTemplateID *string   `json:"provider_template_id,omitempty"`
	RejectionReason    *string   `json:"rejection_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

var (
	nonNameChars   = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// NormalizeName folds a display name into the provider's template name
// charset: lowercase with underscores.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	n = nonNameChars.ReplaceAllString(n, "")
	n = underscoreRuns.ReplaceAllString(n, "_")
	return strings.Trim(n, "_")
}

var placeholderPattern = regexp.MustCompile(`\{\{(\d+)\}\}`)

// PlaceholderCount returns the highest positional placeholder in the body,
// so {{1}} ... {{3}} needs three parameters.
func PlaceholderCount(body string) int {
	max := 0
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n > max {
			max = n
		}
	}
	return max
}

// exampleValues produces reviewer-facing sample parameters for submission.
func exampleValues(count int) []string {
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("Sample %d", i+1)
	}
	return out
}

// updateTransition decides what an edit does to the lifecycle state.
// Editing a pending template is refused; editing a reviewed one resets it
// to draft and clears the review artefacts.
func updateTransition(status string) (newStatus string, clearReview bool, err error) {
	switch status {
	case StatusPending:
		return "", false, &ValidationError{Message: "template is under review and cannot be edited"}
	case StatusApproved, StatusRejected:
		return StatusDraft, true, nil
	default:
		return StatusDraft, false, nil
	}
}

// submitTransition decides whether a template may be submitted for review.
func submitTransition(status string) error {
	if status == StatusPending {
		return &ValidationError{Message: "template is already under review"}
	}
	return nil
}
