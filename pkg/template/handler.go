package template

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/audit"
	"github.com/nimbuspos/chatgate/internal/auth"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for template management.
type Handler struct {
	configs  *messaging.ConfigService
	provider *provider.Client
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewHandler creates a template Handler.
func NewHandler(configs *messaging.ConfigService, pc *provider.Client, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{configs: configs, provider: pc, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with template routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/sync", h.handleSync)
	r.Route("/{templateID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/submit", h.handleSubmit)
	})
	return r
}

// service builds a Service on the request's tenant-scoped connection.
func (h *Handler) service(r *http.Request) *Service {
	ti := tenant.FromContext(r.Context())
	return NewService(tenant.ConnFromContext(r.Context()), ti.ID, h.configs, h.provider, h.logger)
}

func templateID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "templateID"))
	return id, err == nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service(r).List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.logger.Error("listing templates", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list templates")
		return
	}
	if templates == nil {
		templates = []Template{}
	}
	httpserver.Respond(w, http.StatusOK, templates)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	t, err := h.service(r).Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		h.logger.Error("fetching template", "error", err, "template_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch template")
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

type templateRequest struct {
	Name       string   `json:"name" validate:"required,max=120"`
	Category   string   `json:"category" validate:"required,oneof=UTILITY MARKETING AUTHENTICATION"`
	Language   string   `json:"language" validate:"required,min=2,max=10"`
	HeaderText string   `json:"header_text" validate:"max=60"`
	Body       string   `json:"body" validate:"required,max=1024"`
	FooterText string   `json:"footer_text" validate:"max=60"`
	Buttons    []string `json:"buttons" validate:"max=3,dive,max=25"`
}

func (req templateRequest) input() Input {
	return Input{
		Name:       req.Name,
		Category:   req.Category,
		Language:   req.Language,
		HeaderText: req.HeaderText,
		Body:       req.Body,
		FooterText: req.FooterText,
		Buttons:    req.Buttons,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.service(r).Create(r.Context(), req.input())
	if err != nil {
		h.respondTemplateError(w, err, "creating template")
		return
	}

	h.audit.LogFromRequest(r, "template.create", "template", t.ID, nil)
	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	var req templateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	t, err := h.service(r).Update(r.Context(), id, req.input())
	if err != nil {
		h.respondTemplateError(w, err, "updating template")
		return
	}

	h.audit.LogFromRequest(r, "template.update", "template", t.ID, nil)
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	if err := h.service(r).Delete(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
			return
		}
		h.logger.Error("deleting template", "error", err, "template_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete template")
		return
	}

	h.audit.LogFromRequest(r, "template.delete", "template", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := templateID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	t, err := h.service(r).Submit(r.Context(), id)
	if err != nil {
		h.respondTemplateError(w, err, "submitting template")
		return
	}

	h.audit.LogFromRequest(r, "template.submit", "template", t.ID, nil)
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service(r).SyncFromProvider(r.Context())
	if err != nil {
		h.respondTemplateError(w, err, "syncing templates")
		return
	}

	h.audit.LogFromRequest(r, "template.sync", "template", uuid.Nil, nil)
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) respondTemplateError(w http.ResponseWriter, err error, logMsg string) {
	var verr *ValidationError
	var perr *provider.Error
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
	case errors.As(err, &verr):
		httpserver.RespondError(w, http.StatusConflict, "lifecycle_error", verr.Message)
	case errors.Is(err, messaging.ErrNotConfigured):
		httpserver.RespondError(w, http.StatusConflict, "not_configured", "messaging is not configured")
	case errors.Is(err, messaging.ErrDisabled):
		httpserver.RespondError(w, http.StatusConflict, "disabled", "messaging is disabled")
	case errors.As(err, &perr):
		httpserver.RespondError(w, http.StatusBadGateway, "provider_error", perr.Message)
	default:
		h.logger.Error(logMsg, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "template operation failed")
	}
}
