// Package conversation stores two-way chat history per customer phone
// number and powers the inbox surface.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Chat message content types, mirroring what the provider can deliver.
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentVideo    = "video"
	ContentAudio    = "audio"
	ContentDocument = "document"
	ContentSticker  = "sticker"
	ContentLocation = "location"
	ContentContact  = "contact"
)

// Conversation is a row of the tenant's conversations table. One row per
// customer phone number.
type Conversation struct {
	ID                 uuid.UUID  `json:"id"`
	CustomerPhone      string     `json:"customer_phone"`
	CustomerName       string     `json:"customer_name"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessagePreview string     `json:"last_message_preview"`
	UnreadCount        int        `json:"unread_count"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Message is a row of the tenant's chat_messages table.
type Message struct {
	ID                uuid.UUID `json:"id"`
	ConversationID    uuid.UUID `json:"conversation_id"`
	Direction         string    `json:"direction"`
	ContentType       string    `json:"content_type"`
	Body              string    `json:"body,omitempty"`
	MediaURL          *string   `json:"media_url,omitempty"`
	MediaMime         *string   `json:"media_mime,omitempty"`
	Caption           *string   `json:"caption,omitempty"`
	Latitude          *float64  `json:"latitude,omitempty"`
	Longitude         *float64  `json:"longitude,omitempty"`
	ContactName       *string   `json:"contact_name,omitempty"`
	ContactPhone      *string   `json:"contact_phone,omitempty"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

const previewLimit = 120

// previewText folds a message into the inbox preview line. Media messages
// show a bracketed kind instead of a body.
func previewText(contentType, body, caption string) string {
	text := body
	if contentType != ContentText {
		text = "[" + contentType + "]"
		if caption != "" {
			text += " " + caption
		}
	}
	if r := []rune(text); len(r) > previewLimit {
		text = string(r[:previewLimit-1]) + "…"
	}
	return text
}
