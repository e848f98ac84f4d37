package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
)

// Store provides database operations for the tenant's templates table.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a template Store on a tenant-scoped connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const templateColumns = `id, name, category, language, header_text, body,
	footer_text, buttons, status, provider_template_id, rejection_reason,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(
		&t.ID, &t.Name, &t.Category, &t.Language, &t.HeaderText, &t.Body,
		&t.FooterText, &t.Buttons, &t.Status, &t.ProviderTemplateID,
		&t.RejectionReason, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// Get fetches one template by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Template, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, err
		}
		return Template{}, fmt.Errorf("fetching template: %w", err)
	}
	return t, nil
}

// GetByName fetches a template by its normalized name; nil when absent.
func (s *Store) GetByName(ctx context.Context, name string) (*Template, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE name = $1`, name)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching template by name: %w", err)
	}
	return &t, nil
}

// GetByProviderID fetches a template by the provider's id; nil when absent.
func (s *Store) GetByProviderID(ctx context.Context, providerID string) (*Template, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE provider_template_id = $1`, providerID)
	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching template by provider id: %w", err)
	}
	return &t, nil
}

// List returns templates, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, status string) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var templates []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Create inserts a draft template.
func (s *Store) Create(ctx context.Context, t Template) (Template, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO templates (name, category, language, header_text, body, footer_text, buttons, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'draft')
		RETURNING `+templateColumns,
		t.Name, t.Category, t.Language, t.HeaderText, t.Body, t.FooterText, t.Buttons)
	created, err := scanTemplate(row)
	if err != nil {
		return Template{}, fmt.Errorf("creating template: %w", err)
	}
	return created, nil
}

// Update rewrites the editable fields plus the lifecycle outcome of the edit.
func (s *Store) Update(ctx context.Context, t Template, clearReview bool) (Template, error) {
	query := `UPDATE templates SET
		name = $2, category = $3, language = $4, header_text = $5,
		body = $6, footer_text = $7, buttons = $8, status = $9, updated_at = now()`
	if clearReview {
		query += `, provider_template_id = NULL, rejection_reason = NULL`
	}
	query += ` WHERE id = $1 RETURNING ` + templateColumns

	row := s.dbtx.QueryRow(ctx, query,
		t.ID, t.Name, t.Category, t.Language, t.HeaderText, t.Body,
		t.FooterText, t.Buttons, t.Status)
	updated, err := scanTemplate(row)
	if err != nil {
		return Template{}, fmt.Errorf("updating template: %w", err)
	}
	return updated, nil
}

// MarkPending records a successful submission.
func (s *Store) MarkPending(ctx context.Context, id uuid.UUID, providerTemplateID string) (Template, error) {
	row := s.dbtx.QueryRow(ctx,
		`UPDATE templates SET status = 'pending', provider_template_id = $2,
			rejection_reason = NULL, updated_at = now()
		WHERE id = $1 RETURNING `+templateColumns,
		id, providerTemplateID)
	t, err := scanTemplate(row)
	if err != nil {
		return Template{}, fmt.Errorf("marking template pending: %w", err)
	}
	return t, nil
}

// SetReviewOutcome applies a provider review verdict.
func (s *Store) SetReviewOutcome(ctx context.Context, id uuid.UUID, status string, reason *string) error {
	_, err := s.dbtx.Exec(ctx,
		`UPDATE templates SET status = $2, rejection_reason = $3, updated_at = now()
		WHERE id = $1`, id, status, reason)
	if err != nil {
		return fmt.Errorf("setting review outcome: %w", err)
	}
	return nil
}

// UpsertApproved writes an approved remote template during sync, matching
// by provider id first and normalized name second. The provider's record is
// authoritative: matched rows get their content refreshed too.
func (s *Store) UpsertApproved(ctx context.Context, remote Template) (inserted bool, err error) {
	existing, err := s.GetByProviderID(ctx, *remote.ProviderTemplateID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		existing, err = s.GetByName(ctx, remote.Name)
		if err != nil {
			return false, err
		}
	}

	if existing == nil {
		_, err := s.dbtx.Exec(ctx,
			`INSERT INTO templates
				(name, category, language, header_text, body, footer_text, status, provider_template_id)
			VALUES ($1, $2, $3, $4, $5, $6, 'approved', $7)`,
			remote.Name, remote.Category, remote.Language,
			remote.HeaderText, remote.Body, remote.FooterText, remote.ProviderTemplateID)
		if err != nil {
			return false, fmt.Errorf("inserting synced template: %w", err)
		}
		return true, nil
	}

	_, err = s.dbtx.Exec(ctx,
		`UPDATE templates SET status = 'approved', provider_template_id = $2,
			category = $3, language = $4, header_text = $5, body = $6,
			footer_text = $7, rejection_reason = NULL, updated_at = now()
		WHERE id = $1`,
		existing.ID, remote.ProviderTemplateID, remote.Category, remote.Language,
		remote.HeaderText, remote.Body, remote.FooterText)
	if err != nil {
		return false, fmt.Errorf("updating synced template: %w", err)
	}
	return false, nil
}

// Delete removes a template.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
