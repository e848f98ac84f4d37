package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/httpserver"
)

// ConfigStore provides database operations for messaging configs.
// Configs live in the public schema so webhook ingress can resolve a
// tenant before any search_path is set.
type ConfigStore struct {
	dbtx db.DBTX
}

// NewConfigStore creates a ConfigStore.
func NewConfigStore(dbtx db.DBTX) *ConfigStore {
	return &ConfigStore{dbtx: dbtx}
}

const configColumns = `tenant_id, access_token_enc, phone_number, phone_number_id,
	display_name, enabled, notify_on_inbound, auto_reply_enabled,
	support_text, business_hours, error_count, last_error, updated_at`

func scanConfig(row pgx.Row) (Config, error) {
	var c Config
	err := row.Scan(
		&c.TenantID, &c.AccessTokenEnc, &c.PhoneNumber, &c.PhoneNumberID,
		&c.DisplayName, &c.Enabled, &c.NotifyOnInbound, &c.AutoReplyEnabled,
		&c.SupportText, &c.BusinessHours, &c.ErrorCount, &c.LastError, &c.UpdatedAt,
	)
	return c, err
}

// Get returns the tenant's messaging config; nil when not configured.
func (s *ConfigStore) Get(ctx context.Context, tenantID uuid.UUID) (*Config, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+configColumns+` FROM public.messaging_configs WHERE tenant_id = $1`,
		tenantID)
	c, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching messaging config: %w", err)
	}
	return &c, nil
}

// GetByPhoneNumberID resolves a config from the provider's phone number id.
// Webhook ingress uses this to find the tenant for an event.
func (s *ConfigStore) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Config, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+configColumns+` FROM public.messaging_configs WHERE phone_number_id = $1`,
		phoneNumberID)
	c, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching config by phone number id: %w", err)
	}
	return &c, nil
}

// GetSingleEnabled returns the config when exactly one tenant has messaging
// enabled, nil otherwise. Fallback for events without phone number metadata.
func (s *ConfigStore) GetSingleEnabled(ctx context.Context) (*Config, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+configColumns+` FROM public.messaging_configs WHERE enabled LIMIT 2`)
	if err != nil {
		return nil, fmt.Errorf("listing enabled configs: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(configs) != 1 {
		return nil, nil
	}
	return &configs[0], nil
}

// Upsert writes the tenant's config. tokenEnc must already be encrypted.
func (s *ConfigStore) Upsert(ctx context.Context, tenantID uuid.UUID, tokenEnc, phoneNumber, phoneNumberID, displayName string) (Config, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO public.messaging_configs
			(tenant_id, access_token_enc, phone_number, phone_number_id, display_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id) DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			phone_number = EXCLUDED.phone_number,
			phone_number_id = EXCLUDED.phone_number_id,
			display_name = EXCLUDED.display_name,
			error_count = 0, last_error = NULL, updated_at = now()
		RETURNING `+configColumns,
		tenantID, tokenEnc, phoneNumber, phoneNumberID, displayName)
	return scanConfig(row)
}

// SetEnabled toggles the gateway on or off for the tenant.
func (s *ConfigStore) SetEnabled(ctx context.Context, tenantID uuid.UUID, enabled bool) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE public.messaging_configs SET enabled = $2, updated_at = now()
		WHERE tenant_id = $1`, tenantID, enabled)
	if err != nil {
		return fmt.Errorf("toggling messaging config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateSettings writes the behaviour toggles and text fields.
func (s *ConfigStore) UpdateSettings(ctx context.Context, tenantID uuid.UUID, notifyOnInbound, autoReplyEnabled bool, supportText, businessHours string) (Config, error) {
	row := s.dbtx.QueryRow(ctx,
		`UPDATE public.messaging_configs SET
			notify_on_inbound = $2, auto_reply_enabled = $3,
			support_text = $4, business_hours = $5, updated_at = now()
		WHERE tenant_id = $1
		RETURNING `+configColumns,
		tenantID, notifyOnInbound, autoReplyEnabled, supportText, businessHours)
	return scanConfig(row)
}

// RecordError bumps the consecutive-failure counter.
func (s *ConfigStore) RecordError(ctx context.Context, tenantID uuid.UUID, errText string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE public.messaging_configs
		SET error_count = error_count + 1, last_error = $2, updated_at = now()
		WHERE tenant_id = $1`, tenantID, errText)
	if err != nil {
		return fmt.Errorf("recording config error: %w", err)
	}
	return nil
}

// ResetErrors clears the failure counter after a successful send.
func (s *ConfigStore) ResetErrors(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE public.messaging_configs
		SET error_count = 0, last_error = NULL, updated_at = now()
		WHERE tenant_id = $1 AND error_count > 0`, tenantID)
	if err != nil {
		return fmt.Errorf("resetting config errors: %w", err)
	}
	return nil
}

// LogStore provides database operations for the tenant's message_logs table.
type LogStore struct {
	dbtx db.DBTX
}

// NewLogStore creates a LogStore on a tenant-scoped connection.
func NewLogStore(dbtx db.DBTX) *LogStore {
	return &LogStore{dbtx: dbtx}
}

const logColumns = `id, direction, phone, kind, template_name,
	provider_message_id, status, error_text, created_at, updated_at`

func scanLog(row pgx.Row) (Log, error) {
	var l Log
	err := row.Scan(
		&l.ID, &l.Direction, &l.Phone, &l.Kind, &l.TemplateName,
		&l.ProviderMessageID, &l.Status, &l.ErrorText, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// Insert creates a log row, normally in status queued.
func (s *LogStore) Insert(ctx context.Context, direction, phone, kind string, templateName *string, status string) (Log, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO message_logs (direction, phone, kind, template_name, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+logColumns,
		direction, phone, kind, templateName, status)
	l, err := scanLog(row)
	if err != nil {
		return Log{}, fmt.Errorf("inserting message log: %w", err)
	}
	return l, nil
}

// MarkSent records provider acceptance.
func (s *LogStore) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE message_logs
		SET status = 'sent', provider_message_id = $2, updated_at = now()
		WHERE id = $1`, id, providerMessageID)
	if err != nil {
		return fmt.Errorf("marking message sent: %w", err)
	}
	return nil
}

// MarkFailed records a dispatch failure.
func (s *LogStore) MarkFailed(ctx context.Context, id uuid.UUID, errText string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE message_logs
		SET status = 'failed', error_text = $2, updated_at = now()
		WHERE id = $1`, id, errText)
	if err != nil {
		return fmt.Errorf("marking message failed: %w", err)
	}
	return nil
}

// UpdateStatusByProviderID applies a webhook status event. Returns false
// when the provider message id is unknown to this tenant.
func (s *LogStore) UpdateStatusByProviderID(ctx context.Context, providerMessageID, status string, errText *string) (bool, error) {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE message_logs
		SET status = $2, error_text = COALESCE($3, error_text), updated_at = now()
		WHERE provider_message_id = $1`, providerMessageID, status, errText)
	if err != nil {
		return false, fmt.Errorf("updating message status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFilter narrows the log listing.
type ListFilter struct {
	Direction string
	Status    string
	Phone     string
}

// List returns log rows newest first, keyset-paginated. Callers receive up
// to limit+1 rows so the page envelope can detect more pages.
func (s *LogStore) List(ctx context.Context, filter ListFilter, params httpserver.CursorParams) ([]Log, error) {
	query := `SELECT ` + logColumns + ` FROM message_logs WHERE true`
	args := []any{}

	if filter.Direction != "" {
		args = append(args, filter.Direction)
		query += fmt.Sprintf(" AND direction = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		query += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	if params.After != nil {
		args = append(args, params.After.CreatedAt, params.After.ID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, params.Limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing message logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
