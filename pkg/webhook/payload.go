package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type discriminators used by the provider.
const (
	TypeMessageStatus  = "message-status"
	TypeInboundMessage = "inbound-message"
)

// StatusEvent is a delivery-state change for a previously sent message.
type StatusEvent struct {
	PhoneNumberID     string
	ProviderMessageID string
	Status            string
	ErrorText         string
}

// Media describes an inbound attachment.
type Media struct {
	Link    string `json:"link"`
	Mime    string `json:"mime_type"`
	Caption string `json:"caption"`
}

// InboundEvent is a customer message arriving from the provider.
type InboundEvent struct {
	PhoneNumberID     string
	ProviderMessageID string
	From              string
	ProfileName       string
	Timestamp         time.Time

	ContentType  string
	Text         string
	Media        *Media
	Latitude     *float64
	Longitude    *float64
	ContactName  string
	ContactPhone string
}

// rawEvent is the provider's wire shape. One payload carries exactly one
// event; the type field discriminates.
type rawEvent struct {
	Type     string `json:"type"`
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`

	Status *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"status"`

	Message *struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		Timestamp int64  `json:"timestamp"`
		Profile   struct {
			Name string `json:"name"`
		} `json:"profile"`

		Text *struct {
			Body string `json:"body"`
		} `json:"text"`
		Image    *Media `json:"image"`
		Video    *Media `json:"video"`
		Audio    *Media `json:"audio"`
		Document *Media `json:"document"`
		Sticker  *Media `json:"sticker"`
		Location *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		Contact *struct {
			Name  string `json:"name"`
			Phone string `json:"phone"`
		} `json:"contact"`
	} `json:"message"`
}

// Classify parses a webhook body into its event variant. Unknown or
// malformed payloads return (nil, nil, nil); the provider is never told
// about them beyond a log line.
func Classify(body []byte) (*StatusEvent, *InboundEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing webhook payload: %w", err)
	}

	switch raw.Type {
	case TypeMessageStatus:
		if raw.Status == nil || raw.Status.ID == "" {
			return nil, nil, fmt.Errorf("status event without status block")
		}
		ev := &StatusEvent{
			PhoneNumberID:     raw.Metadata.PhoneNumberID,
			ProviderMessageID: raw.Status.ID,
			Status:            raw.Status.Status,
		}
		if raw.Status.Error != nil {
			ev.ErrorText = raw.Status.Error.Message
		}
		return ev, nil, nil

	case TypeInboundMessage:
		if raw.Message == nil || raw.Message.ID == "" || raw.Message.From == "" {
			return nil, nil, fmt.Errorf("inbound event without message block")
		}
		ev := &InboundEvent{
			PhoneNumberID:     raw.Metadata.PhoneNumberID,
			ProviderMessageID: raw.Message.ID,
			From:              raw.Message.From,
			ProfileName:       raw.Message.Profile.Name,
		}
		if raw.Message.Timestamp > 0 {
			ev.Timestamp = time.Unix(raw.Message.Timestamp, 0).UTC()
		}

		m := raw.Message
		switch {
		case m.Text != nil:
			ev.ContentType = "text"
			ev.Text = m.Text.Body
		case m.Image != nil:
			ev.ContentType = "image"
			ev.Media = m.Image
		case m.Video != nil:
			ev.ContentType = "video"
			ev.Media = m.Video
		case m.Audio != nil:
			ev.ContentType = "audio"
			ev.Media = m.Audio
		case m.Document != nil:
			ev.ContentType = "document"
			ev.Media = m.Document
		case m.Sticker != nil:
			ev.ContentType = "sticker"
			ev.Media = m.Sticker
		case m.Location != nil:
			ev.ContentType = "location"
			ev.Latitude = &m.Location.Latitude
			ev.Longitude = &m.Location.Longitude
		case m.Contact != nil:
			ev.ContentType = "contact"
			ev.ContactName = m.Contact.Name
			ev.ContactPhone = m.Contact.Phone
		default:
			return nil, nil, fmt.Errorf("inbound event with no recognised content")
		}
		return nil, ev, nil

	default:
		// Unknown event types are dropped silently so new provider
		// features never break ingestion.
		return nil, nil, nil
	}
}

// mapStatus translates the provider's status names onto the local message
// lifecycle. Unknown names report false and are ignored.
func mapStatus(providerStatus string) (string, bool) {
	switch providerStatus {
	case "sent", "accepted":
		return "sent", true
	case "delivered":
		return "delivered", true
	case "read", "seen":
		return "read", true
	case "failed", "undeliverable", "error":
		return "failed", true
	default:
		return "", false
	}
}
