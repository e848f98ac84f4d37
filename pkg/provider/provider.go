// Package provider is the HTTP client for the upstream messaging provider.
// Tenant-level calls authenticate with the tenant's decrypted access token;
// template management goes through a partner bearer token that is cached
// and refreshed lazily.
package provider

import (
	"fmt"
)

// Error is a provider-side failure with the upstream HTTP status and the
// best message that could be extracted from the response body.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
}

// Credentials are the per-tenant values needed to call the provider.
type Credentials struct {
	AccessToken   string
	PhoneNumberID string
}

// SendResult is the provider's acknowledgement of an outbound message.
type SendResult struct {
	MessageID string
}

// MediaKind constrains SendMedia attachments.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// TemplateSubmission is the payload for registering a template upstream.
type TemplateSubmission struct {
	Name       string
	Category   string
	Language   string
	HeaderText string
	Body       string
	FooterText string
	Buttons    []string
	// Example values for each body placeholder, required by review.
	Examples []string
}

// RemoteTemplate is a template record as the provider reports it.
type RemoteTemplate struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Language   string `json:"language"`
	HeaderText string `json:"header_text,omitempty"`
	Body       string `json:"body,omitempty"`
	FooterText string `json:"footer_text,omitempty"`
	Status     string `json:"status"`
	Reason     string `json:"rejected_reason,omitempty"`
}

// BusinessProfile is the tenant's public-facing profile at the provider.
type BusinessProfile struct {
	About       string   `json:"about,omitempty"`
	Address     string   `json:"address,omitempty"`
	Description string   `json:"description,omitempty"`
	Email       string   `json:"email,omitempty"`
	Websites    []string `json:"websites,omitempty"`
	Vertical    string   `json:"vertical,omitempty"`
}
