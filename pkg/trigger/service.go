package trigger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/template"
)

// Service binds and fires triggers for one tenant.
type Service struct {
	store      *Store
	templates  *template.Store
	dispatcher *messaging.Dispatcher
	logger     *slog.Logger
}

// NewService creates a trigger Service on a tenant-scoped connection.
func NewService(dbtx db.DBTX, dispatcher *messaging.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		store:      NewStore(dbtx),
		templates:  template.NewStore(dbtx),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// List returns all trigger bindings.
func (s *Service) List(ctx context.Context) ([]Trigger, error) {
	return s.store.List(ctx)
}

// Bind upserts the event-to-template binding. Only approved templates may
// be bound; anything else would fail at send time anyway.
func (s *Service) Bind(ctx context.Context, event string, templateID uuid.UUID, mapping []string) (Trigger, error) {
	t, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return Trigger{}, fmt.Errorf("fetching template for binding: %w", err)
	}
	if t.Status != template.StatusApproved {
		return Trigger{}, &BindError{
			Message: fmt.Sprintf("template %q is %s; only approved templates can be bound", t.Name, t.Status),
		}
	}
	if want := template.PlaceholderCount(t.Body); len(mapping) != want {
		return Trigger{}, &BindError{
			Message: fmt.Sprintf("template %q needs %d parameters, mapping has %d", t.Name, want, len(mapping)),
		}
	}
	return s.store.Upsert(ctx, event, templateID, mapping)
}

// SetEnabled toggles a binding.
func (s *Service) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	return s.store.SetEnabled(ctx, id, enabled)
}

// Delete removes a binding.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// Fire dispatches the template bound to event, filling its parameters from
// the payload. No enabled binding means ErrNoTrigger; payload gaps fail
// before any send.
func (s *Service) Fire(ctx context.Context, event, to string, payload map[string]string) (messaging.Log, error) {
	trig, err := s.store.GetByEvent(ctx, event)
	if err != nil {
		return messaging.Log{}, err
	}
	if trig == nil || !trig.Enabled {
		return messaging.Log{}, &ErrNoTrigger{Event: event}
	}

	tpl, err := s.templates.Get(ctx, trig.TemplateID)
	if err != nil {
		return messaging.Log{}, fmt.Errorf("fetching bound template: %w", err)
	}
	if tpl.Status != template.StatusApproved {
		return messaging.Log{}, &BindError{
			Message: fmt.Sprintf("bound template %q is no longer approved", tpl.Name),
		}
	}

	params, err := resolveParams(trig.VariableMapping, payload)
	if err != nil {
		return messaging.Log{}, &BindError{Message: err.Error()}
	}

	s.logger.Info("firing trigger", "event", event, "template", tpl.Name, "to", to)
	return s.dispatcher.Send(ctx, messaging.SendRequest{
		To:           to,
		Kind:         messaging.KindTemplate,
		TemplateName: tpl.Name,
		Language:     tpl.Language,
		Params:       params,
	})
}
