package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/db"
)

// Store provides database operations for the tenant's triggers table.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a trigger Store on a tenant-scoped connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const triggerColumns = `id, event, template_id, variable_mapping, enabled, created_at, updated_at`

func scanTrigger(row pgx.Row) (Trigger, error) {
	var t Trigger
	err := row.Scan(&t.ID, &t.Event, &t.TemplateID, &t.VariableMapping,
		&t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// List returns all triggers ordered by event name.
func (s *Store) List(ctx context.Context) ([]Trigger, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT `+triggerColumns+` FROM triggers ORDER BY event`)
	if err != nil {
		return nil, fmt.Errorf("listing triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// GetByEvent fetches the trigger bound to an event; nil when absent.
func (s *Store) GetByEvent(ctx context.Context, event string) (*Trigger, error) {
	row := s.dbtx.QueryRow(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE event = $1`, event)
	t, err := scanTrigger(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching trigger: %w", err)
	}
	return &t, nil
}

// Upsert binds an event to a template, replacing any previous binding.
func (s *Store) Upsert(ctx context.Context, event string, templateID uuid.UUID, mapping []string) (Trigger, error) {
	row := s.dbtx.QueryRow(ctx,
		`INSERT INTO triggers (event, template_id, variable_mapping, enabled)
		VALUES ($1, $2, $3, true)
		ON CONFLICT (event) DO UPDATE SET
			template_id = EXCLUDED.template_id,
			variable_mapping = EXCLUDED.variable_mapping,
			enabled = true, updated_at = now()
		RETURNING `+triggerColumns,
		event, templateID, mapping)
	t, err := scanTrigger(row)
	if err != nil {
		return Trigger{}, fmt.Errorf("binding trigger: %w", err)
	}
	return t, nil
}

// SetEnabled toggles a trigger.
func (s *Store) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE triggers SET enabled = $2, updated_at = now() WHERE id = $1`,
		id, enabled)
	if err != nil {
		return fmt.Errorf("toggling trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a trigger.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting trigger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
