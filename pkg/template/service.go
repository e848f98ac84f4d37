package template

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
)

// Input is the editable shape of a template.
type Input struct {
	Name       string
	Category   string
	Language   string
	HeaderText string
	Body       string
	FooterText string
	Buttons    []string
}

// SyncResult summarises a SyncFromProvider run.
type SyncResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Rejected int `json:"rejected"`
}

// Service runs the template lifecycle for one tenant.
type Service struct {
	tenantID uuid.UUID
	store    *Store
	configs  *messaging.ConfigService
	provider *provider.Client
	logger   *slog.Logger
}

// NewService creates a template Service on a tenant-scoped connection.
func NewService(dbtx db.DBTX, tenantID uuid.UUID, configs *messaging.ConfigService, pc *provider.Client, logger *slog.Logger) *Service {
	return &Service{
		tenantID: tenantID,
		store:    NewStore(dbtx),
		configs:  configs,
		provider: pc,
		logger:   logger,
	}
}

// List returns the tenant's templates, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]Template, error) {
	return s.store.List(ctx, status)
}

// Get fetches one template.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Template, error) {
	return s.store.Get(ctx, id)
}

// Create drafts a new template. Names are normalized and must be unique.
func (s *Service) Create(ctx context.Context, in Input) (Template, error) {
	name := NormalizeName(in.Name)
	if name == "" {
		return Template{}, &ValidationError{Message: "template name must contain letters or digits"}
	}

	existing, err := s.store.GetByName(ctx, name)
	if err != nil {
		return Template{}, err
	}
	if existing != nil {
		return Template{}, &ValidationError{Message: fmt.Sprintf("template %q already exists", name)}
	}

	return s.store.Create(ctx, Template{
		Name:       name,
		Category:   in.Category,
		Language:   in.Language,
		HeaderText: in.HeaderText,
		Body:       in.Body,
		FooterText: in.FooterText,
		Buttons:    in.Buttons,
	})
}

// Update edits a template. Pending templates cannot be edited; reviewed
// templates drop back to draft and lose their review artefacts.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Template, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}

	newStatus, clearReview, err := updateTransition(current.Status)
	if err != nil {
		return Template{}, err
	}

	name := NormalizeName(in.Name)
	if name == "" {
		return Template{}, &ValidationError{Message: "template name must contain letters or digits"}
	}
	if name != current.Name {
		existing, err := s.store.GetByName(ctx, name)
		if err != nil {
			return Template{}, err
		}
		if existing != nil {
			return Template{}, &ValidationError{Message: fmt.Sprintf("template %q already exists", name)}
		}
	}

	current.Name = name
	current.Category = in.Category
	current.Language = in.Language
	current.HeaderText = in.HeaderText
	current.Body = in.Body
	current.FooterText = in.FooterText
	current.Buttons = in.Buttons
	current.Status = newStatus

	return s.store.Update(ctx, current, clearReview)
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// Submit sends a template to the provider for review. On acceptance the
// template moves to pending; a provider rejection leaves it untouched.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (Template, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if err := submitTransition(t.Status); err != nil {
		return Template{}, err
	}

	creds, _, err := s.configs.Credentials(ctx, s.tenantID)
	if err != nil {
		return Template{}, err
	}

	providerID, err := s.provider.SubmitTemplate(ctx, creds, provider.TemplateSubmission{
		Name:       t.Name,
		Category:   t.Category,
		Language:   t.Language,
		HeaderText: t.HeaderText,
		Body:       t.Body,
		FooterText: t.FooterText,
		Buttons:    t.Buttons,
		Examples:   exampleValues(PlaceholderCount(t.Body)),
	})
	if err != nil {
		return Template{}, err
	}

	s.logger.Info("template submitted for review", "template", t.Name, "provider_id", providerID)
	return s.store.MarkPending(ctx, id, providerID)
}

// SyncFromProvider pulls the provider's review verdicts into the local
// table. Approved remotes are upserted with their content refreshed,
// matching by provider id first and normalized name second; rejected
// verdicts are applied to locally pending submissions.
func (s *Service) SyncFromProvider(ctx context.Context) (SyncResult, error) {
	creds, _, err := s.configs.Credentials(ctx, s.tenantID)
	if err != nil {
		return SyncResult{}, err
	}

	remotes, err := s.provider.ListTemplates(ctx, creds)
	if err != nil {
		return SyncResult{}, err
	}

	var result SyncResult
	for _, remote := range remotes {
		switch {
		case strings.EqualFold(remote.Status, "approved"):
			providerID := remote.ID
			inserted, err := s.store.UpsertApproved(ctx, Template{
				Name:               NormalizeName(remote.Name),
				Category:           remote.Category,
				Language:           remote.Language,
				HeaderText:         remote.HeaderText,
				Body:               remote.Body,
				FooterText:         remote.FooterText,
				ProviderTemplateID: &providerID,
			})
			if err != nil {
				return result, err
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}

		case strings.EqualFold(remote.Status, "rejected"):
			existing, err := s.store.GetByProviderID(ctx, remote.ID)
			if err != nil {
				return result, err
			}
			// Only pending submissions take the verdict; a template edited
			// back to draft since submission keeps its local state.
			if existing == nil || existing.Status != StatusPending {
				continue
			}
			var reason *string
			if remote.Reason != "" {
				reason = &remote.Reason
			}
			if err := s.store.SetReviewOutcome(ctx, existing.ID, StatusRejected, reason); err != nil {
				return result, err
			}
			result.Rejected++
		}
	}

	s.logger.Info("template sync completed",
		"inserted", result.Inserted, "updated", result.Updated, "rejected", result.Rejected)
	return result, nil
}
