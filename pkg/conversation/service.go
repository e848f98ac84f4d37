package conversation

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
)

// ChatInput is the body of an agent-sent chat message.
type ChatInput struct {
	Body      string
	MediaKind string
	MediaURL  string
	Caption   string
}

// Service drives the inbox for one tenant.
type Service struct {
	store      *Store
	dispatcher *messaging.Dispatcher
	logger     *slog.Logger
}

// NewService creates a conversation Service on a tenant-scoped connection.
func NewService(dbtx db.DBTX, dispatcher *messaging.Dispatcher, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), dispatcher: dispatcher, logger: logger}
}

// List returns conversations matching the search, newest activity first.
func (s *Service) List(ctx context.Context, search string, params httpserver.OffsetParams) ([]Conversation, int, error) {
	return s.store.List(ctx, search, params)
}

// History returns a conversation's messages, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID, params httpserver.CursorParams) ([]Message, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id, params)
}

// MarkRead zeroes the unread counter.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkRead(ctx, id)
}

// Start opens (or reuses) a conversation with a customer.
func (s *Service) Start(ctx context.Context, phone, name string) (Conversation, error) {
	return s.store.GetOrCreateByPhone(ctx, phone, name)
}

// SendChat sends a session message into the conversation and appends it to
// the history. A provider failure still appends the message, marked failed,
// so the agent sees the attempt.
func (s *Service) SendChat(ctx context.Context, conversationID uuid.UUID, in ChatInput) (Message, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}

	entry, sendErr := s.dispatcher.Send(ctx, messaging.SendRequest{
		To:        conv.CustomerPhone,
		Kind:      messaging.KindSession,
		Body:      in.Body,
		MediaKind: provider.MediaKind(in.MediaKind),
		MediaURL:  in.MediaURL,
		Caption:   in.Caption,
	})
	if sendErr != nil && entry.ID == uuid.Nil {
		// Nothing was dispatched (config or quota refusal); no history entry.
		return Message{}, sendErr
	}

	msg := Message{
		ConversationID:    conversationID,
		Direction:         messaging.DirectionOutbound,
		ContentType:       ContentText,
		Body:              in.Body,
		ProviderMessageID: entry.ProviderMessageID,
		Status:            entry.Status,
	}
	if in.MediaURL != "" {
		msg.ContentType = in.MediaKind
		msg.MediaURL = &in.MediaURL
		if in.Caption != "" {
			msg.Caption = &in.Caption
		}
	}

	appended, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	if sendErr != nil {
		return appended, sendErr
	}
	return appended, nil
}
