// Package trigger binds business events to approved message templates.
// Firing an event resolves the trigger's variable mapping against the event
// payload and dispatches the template.
package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Known business events. The catalog is advisory; unknown events may still
// be bound so integrations can ship before the catalog catches up.
var EventCatalog = []string{
	"sale.completed",
	"order.ready",
	"order.delayed",
	"booking.confirmed",
	"booking.reminder",
	"invoice.issued",
}

// ErrNoTrigger is returned by Fire when no enabled trigger matches the event.
type ErrNoTrigger struct {
	Event string
}

func (e *ErrNoTrigger) Error() string {
	return fmt.Sprintf("no enabled trigger for event %q", e.Event)
}

// BindError is a binding rule violation, safe to show to clients.
type BindError struct {
	Message string `json:"message"`
}

func (e *BindError) Error() string { return e.Message }

// Trigger is a row of the tenant's triggers table. VariableMapping is an
// ordered list of payload keys; index i fills template parameter i+1.
type Trigger struct {
	ID              uuid.UUID `json:"id"`
	Event           string    `json:"event"`
	TemplateID      uuid.UUID `json:"template_id"`
	VariableMapping []string  `json:"variable_mapping"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// resolveParams maps an event payload onto ordered template parameters.
// Every mapped key must be present in the payload.
func resolveParams(mapping []string, payload map[string]string) ([]string, error) {
	params := make([]string, 0, len(mapping))
	for i, key := range mapping {
		value, ok := payload[key]
		if !ok {
			return nil, fmt.Errorf("payload is missing key %q for parameter %d", key, i+1)
		}
		params = append(params, value)
	}
	return params, nil
}
