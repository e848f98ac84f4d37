package conversation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/httpserver"
)

// Store provides database operations for conversations and chat messages.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a conversation Store on a tenant-scoped connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const convColumns = `id, customer_phone, customer_name, last_message_at,
	last_message_preview, unread_count, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.CustomerPhone, &c.CustomerName, &c.LastMessageAt,
		&c.LastMessagePreview, &c.UnreadCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

const msgColumns = `id, conversation_id, direction, content_type, body,
	media_url, media_mime, caption, latitude, longitude,
	contact_name, contact_phone, provider_message_id, status, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.ContentType, &m.Body,
		&m.MediaURL, &m.MediaMime, &m.Caption, &m.Latitude, &m.Longitude,
		&m.ContactName, &m.ContactPhone, &m.ProviderMessageID, &m.Status, &m.CreatedAt)
	return m, err
}

// List returns conversations ordered by recency, optionally filtered by a
// free-text search on phone or name.
func (s *Store) List(ctx context.Context, search string, params httpserver.OffsetParams) ([]Conversation, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		where = ` WHERE customer_phone ILIKE $1 OR customer_name ILIKE $1`
	}

	var total int
	if err := s.dbtx.QueryRow(ctx,
		`SELECT count(*) FROM conversations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting conversations: %w", err)
	}

	args = append(args, params.PageSize, params.Offset)
	query := fmt.Sprintf(
		`SELECT `+convColumns+` FROM conversations`+where+`
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, total, rows.Err()
}

// Get fetches one conversation by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+convColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// GetOrCreateByPhone returns the conversation for a phone number, creating
// it when first seen. A non-empty name updates a blank stored name.
func (s *Store) GetOrCreateByPhone(ctx context.Context, phone, name string) (Conversation, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO conversations (customer_phone, customer_name)
		VALUES ($1, $2)
		ON CONFLICT (customer_phone) DO UPDATE SET
			customer_name = CASE
				WHEN conversations.customer_name = '' AND EXCLUDED.customer_name <> ''
				THEN EXCLUDED.customer_name
				ELSE conversations.customer_name
			END,
			updated_at = now()
		RETURNING `+convColumns,
		phone, name)
	c, err := scanConversation(row)
	if err != nil {
		return Conversation{}, fmt.Errorf("upserting conversation: %w", err)
	}
	return c, nil
}

// AppendMessage inserts a chat message and refreshes the conversation's
// preview. Inbound messages bump the unread counter.
func (s *Store) AppendMessage(ctx context.Context, m Message) (Message, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO chat_messages
			(conversation_id, direction, content_type, body, media_url, media_mime,
			caption, latitude, longitude, contact_name, contact_phone,
			provider_message_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+msgColumns,
		m.ConversationID, m.Direction, m.ContentType, m.Body, m.MediaURL, m.MediaMime,
		m.Caption, m.Latitude, m.Longitude, m.ContactName, m.ContactPhone,
		m.ProviderMessageID, m.Status)
	inserted, err := scanMessage(row)
	if err != nil {
		return Message{}, fmt.Errorf("inserting chat message: %w", err)
	}

	caption := ""
	if m.Caption != nil {
		caption = *m.Caption
	}
	unreadDelta := 0
	if m.Direction == "inbound" {
		unreadDelta = 1
	}
	_, err = s.dbtx.Exec(ctx,
		`UPDATE conversations SET
			last_message_at = $2, last_message_preview = $3,
			unread_count = unread_count + $4, updated_at = now()
		WHERE id = $1`,
		m.ConversationID, inserted.CreatedAt,
		previewText(m.ContentType, m.Body, caption), unreadDelta)
	if err != nil {
		return Message{}, fmt.Errorf("updating conversation preview: %w", err)
	}
	return inserted, nil
}

// History returns a conversation's messages newest first, keyset-paginated.
func (s *Store) History(ctx context.Context, conversationID uuid.UUID, params httpserver.CursorParams) ([]Message, error) {
	query := `SELECT ` + msgColumns + ` FROM chat_messages WHERE conversation_id = $1`
	args := []any{conversationID}

	if params.After != nil {
		args = append(args, params.After.CreatedAt, params.After.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, params.Limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing chat history: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead zeroes the unread counter.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking conversation read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateMessageStatusByProviderID applies a webhook status event to a chat
// message. Returns false when the provider id is unknown.
func (s *Store) UpdateMessageStatusByProviderID(ctx context.Context, providerMessageID, status string) (bool, error) {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE chat_messages SET status = $2 WHERE provider_message_id = $1`,
		providerMessageID, status)
	if err != nil {
		return false, fmt.Errorf("updating chat message status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
