// Package messaging owns the tenant's provider configuration and the
// outbound dispatch pipeline. Every send runs the same protocol: quota
// check, queued log row, provider call, then a terminal status on the row.
package messaging

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Message kinds.
const (
	KindTemplate  = "template"
	KindSession   = "session"
	KindAutoReply = "auto_reply"
)

// Message log statuses. queued and sent are set locally; delivered, read
// and failed also arrive via provider status webhooks.
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Config is a row of public.messaging_configs. The encrypted token never
// leaves the package; responses carry a masked preview instead.
type Config struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	AccessTokenEnc   string    `json:"-"`
	PhoneNumber      string    `json:"phone_number"`
	PhoneNumberID    string    `json:"phone_number_id"`
	DisplayName      string    `json:"display_name"`
	Enabled          bool      `json:"enabled"`
	NotifyOnInbound  bool      `json:"notify_on_inbound"`
	AutoReplyEnabled bool      `json:"auto_reply_enabled"`
	SupportText      string    `json:"support_text"`
	BusinessHours    string    `json:"business_hours"`
	ErrorCount       int       `json:"error_count"`
	LastError        *string   `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ConfigResponse is Config plus the masked token preview.
type ConfigResponse struct {
	Config
	AccessTokenMasked string `json:"access_token_masked,omitempty"`
}

// Log is a row of the tenant's message_logs table.
type Log struct {
	ID                uuid.UUID `json:"id"`
	Direction         string    `json:"direction"`
	Phone             string    `json:"phone"`
	Kind              string    `json:"kind"`
	TemplateName      *string   `json:"template_name,omitempty"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	Status            string    `json:"status"`
	ErrorText         *string   `json:"error_text,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// maskToken keeps the last four characters of a credential for display.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}
