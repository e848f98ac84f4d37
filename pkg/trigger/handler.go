package trigger

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
	"github.com/nimbuspos/chatgate/pkg/quota"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for trigger bindings.
type Handler struct {
	configs  *messaging.ConfigService
	provider *provider.Client
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewHandler creates a trigger Handler.
func NewHandler(configs *messaging.ConfigService, pc *provider.Client, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{configs: configs, provider: pc, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with trigger routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/events", h.handleEvents)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/", h.handleBind)
	r.Post("/fire", h.handleFire)
	r.Route("/{triggerID}", func(r chi.Router) {
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/enable", h.handleEnable)
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/disable", h.handleDisable)
		r.With(auth.RequireRole(auth.RoleAdmin)).Delete("/", h.handleDelete)
	})
	return r
}

// service builds a Service on the request's tenant-scoped connection.
func (h *Handler) service(r *http.Request) *Service {
	ti := tenant.FromContext(r.Context())
	conn := tenant.ConnFromContext(r.Context())
	dispatcher := messaging.NewDispatcher(conn, ti.ID, h.configs, h.provider, h.logger)
	return NewService(conn, dispatcher, h.logger)
}

func triggerID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "triggerID"))
	return id, err == nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.service(r).List(r.Context())
	if err != nil {
		h.logger.Error("listing triggers", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list triggers")
		return
	}
	if triggers == nil {
		triggers = []Trigger{}
	}
	httpserver.Respond(w, http.StatusOK, triggers)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string][]string{"events": EventCatalog})
}

type bindRequest struct {
	Event           string    `json:"event" validate:"required,max=64"`
	TemplateID      uuid.UUID `json:"template_id" validate:"required"`
	VariableMapping []string  `json:"variable_mapping" validate:"max=10,dive,required"`
}

func (h *Handler) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	trig, err := h.service(r).Bind(r.Context(), req.Event, req.TemplateID, req.VariableMapping)
	if err != nil {
		var berr *BindError
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "template not found")
		case errors.As(err, &berr):
			httpserver.RespondError(w, http.StatusConflict, "bind_error", berr.Message)
		default:
			h.logger.Error("binding trigger", "error", err, "event", req.Event)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to bind trigger")
		}
		return
	}

	h.audit.LogFromRequest(r, "trigger.bind", "trigger", trig.ID, nil)
	httpserver.Respond(w, http.StatusCreated, trig)
}

type fireRequest struct {
	Event   string            `json:"event" validate:"required"`
	To      string            `json:"to" validate:"required,e164"`
	Payload map[string]string `json:"payload"`
}

func (h *Handler) handleFire(w http.ResponseWriter, r *http.Request) {
	var req fireRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.service(r).Fire(r.Context(), req.Event, req.To, req.Payload)
	if err != nil {
		var noTrig *ErrNoTrigger
		var berr *BindError
		var qerr *quota.Error
		var perr *provider.Error
		switch {
		case errors.As(err, &noTrig):
			httpserver.RespondError(w, http.StatusNotFound, "no_trigger", noTrig.Error())
		case errors.As(err, &berr):
			httpserver.RespondError(w, http.StatusConflict, "bind_error", berr.Message)
		case errors.As(err, &qerr):
			httpserver.RespondError(w, http.StatusPaymentRequired, qerr.Code, qerr.Message)
		case errors.Is(err, messaging.ErrNotConfigured), errors.Is(err, messaging.ErrDisabled):
			httpserver.RespondError(w, http.StatusConflict, "not_configured", "messaging is not available")
		case errors.As(err, &perr):
			httpserver.RespondError(w, http.StatusBadGateway, "provider_error", perr.Message)
		default:
			h.logger.Error("firing trigger", "error", err, "event", req.Event)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fire trigger")
		}
		return
	}

	h.audit.LogFromRequest(r, "trigger.fire", "message_log", entry.ID, nil)
	httpserver.Respond(w, http.StatusCreated, entry)
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := triggerID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}

	if err := h.service(r).SetEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "trigger not found")
			return
		}
		h.logger.Error("toggling trigger", "error", err, "trigger_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update trigger")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := triggerID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid trigger id")
		return
	}

	if err := h.service(r).Delete(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "trigger not found")
			return
		}
		h.logger.Error("deleting trigger", "error", err, "trigger_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to delete trigger")
		return
	}

	h.audit.LogFromRequest(r, "trigger.delete", "trigger", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
