package messaging

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuspos/chatgate/internal/audit"
	"github.com/nimbuspos/chatgate/internal/auth"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/quota"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for messaging config and sends.
type Handler struct {
	configs  *ConfigService
	provider *provider.Client
	logger   *slog.Logger
	audit    *audit.Writer
}

// NewHandler creates a messaging Handler.
func NewHandler(configs *ConfigService, pc *provider.Client, logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{configs: configs, provider: pc, logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with messaging routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/config", func(r chi.Router) {
		r.Get("/", h.handleGetConfig)
		r.With(auth.RequireRole(auth.RoleAdmin)).Put("/", h.handleSetConfig)
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/enable", h.handleEnable)
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/disable", h.handleDisable)
		r.With(auth.RequireRole(auth.RoleAdmin)).Put("/settings", h.handleSettings)
		r.With(auth.RequireRole(auth.RoleAdmin)).Post("/test", h.handleTestConnection)
	})

	r.Post("/send/template", h.handleSendTemplate)
	r.Post("/send/session", h.handleSendSession)
	r.Get("/logs", h.handleListLogs)

	r.Get("/business-profile", h.handleGetBusinessProfile)
	r.With(auth.RequireRole(auth.RoleAdmin)).Put("/business-profile", h.handleUpdateBusinessProfile)

	return r
}

// dispatcher builds a Dispatcher on the request's tenant-scoped connection.
func (h *Handler) dispatcher(r *http.Request) *Dispatcher {
	ti := tenant.FromContext(r.Context())
	return NewDispatcher(tenant.ConnFromContext(r.Context()), ti.ID, h.configs, h.provider, h.logger)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	cfg, err := h.configs.Get(r.Context(), ti.ID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			httpserver.RespondError(w, http.StatusNotFound, "not_configured", "messaging is not configured")
			return
		}
		h.logger.Error("fetching messaging config", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch config")
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

type setConfigRequest struct {
	AccessToken   string `json:"access_token" validate:"required,min=8"`
	PhoneNumber   string `json:"phone_number" validate:"required,e164"`
	PhoneNumberID string `json:"phone_number_id" validate:"required"`
	DisplayName   string `json:"display_name" validate:"required,max=120"`
}

func (h *Handler) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req setConfigRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ti := tenant.FromContext(r.Context())
	cfg, err := h.configs.Set(r.Context(), ti.ID, req.AccessToken, req.PhoneNumber, req.PhoneNumberID, req.DisplayName)
	if err != nil {
		h.logger.Error("saving messaging config", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to save config")
		return
	}

	detail, _ := json.Marshal(map[string]string{"phone_number": req.PhoneNumber})
	h.audit.LogFromRequest(r, "messaging.config.update", "messaging_config", ti.ID, detail)
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	ti := tenant.FromContext(r.Context())
	if err := h.configs.SetEnabled(r.Context(), ti.ID, enabled); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			httpserver.RespondError(w, http.StatusNotFound, "not_configured", "messaging is not configured")
			return
		}
		h.logger.Error("toggling messaging", "error", err, "enabled", enabled)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update config")
		return
	}

	action := "messaging.disable"
	if enabled {
		action = "messaging.enable"
	}
	h.audit.LogFromRequest(r, action, "messaging_config", ti.ID, nil)
	httpserver.Respond(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

type settingsRequest struct {
	NotifyOnInbound  bool   `json:"notify_on_inbound"`
	AutoReplyEnabled bool   `json:"auto_reply_enabled"`
	SupportText      string `json:"support_text" validate:"max=1024"`
	BusinessHours    string `json:"business_hours" validate:"max=512"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ti := tenant.FromContext(r.Context())
	cfg, err := h.configs.UpdateSettings(r.Context(), ti.ID,
		req.NotifyOnInbound, req.AutoReplyEnabled, req.SupportText, req.BusinessHours)
	if err != nil {
		h.logger.Error("updating messaging settings", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to update settings")
		return
	}
	httpserver.Respond(w, http.StatusOK, cfg)
}

func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	if err := h.configs.TestConnection(r.Context(), ti.ID); err != nil {
		var perr *provider.Error
		switch {
		case errors.Is(err, ErrNotConfigured):
			httpserver.RespondError(w, http.StatusNotFound, "not_configured", "messaging is not configured")
		case errors.Is(err, ErrDisabled):
			httpserver.RespondError(w, http.StatusConflict, "disabled", "messaging is disabled")
		case errors.As(err, &perr):
			httpserver.RespondError(w, http.StatusBadGateway, "provider_error", perr.Message)
		default:
			h.logger.Error("testing provider connection", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "connection test failed")
		}
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sendTemplateRequest struct {
	To           string   `json:"to" validate:"required,e164"`
	TemplateName string   `json:"template_name" validate:"required"`
	Language     string   `json:"language" validate:"required,min=2,max=10"`
	Params       []string `json:"params"`
}

func (h *Handler) handleSendTemplate(w http.ResponseWriter, r *http.Request) {
	var req sendTemplateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.dispatcher(r).Send(r.Context(), SendRequest{
		To:           req.To,
		Kind:         KindTemplate,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		Params:       req.Params,
	})
	h.respondSend(w, r, entry, err)
}

type sendSessionRequest struct {
	To        string `json:"to" validate:"required,e164"`
	Body      string `json:"body" validate:"required_without=MediaURL,max=4096"`
	MediaKind string `json:"media_kind" validate:"omitempty,oneof=image video audio document"`
	MediaURL  string `json:"media_url" validate:"omitempty,url"`
	Caption   string `json:"caption" validate:"max=1024"`
}

func (h *Handler) handleSendSession(w http.ResponseWriter, r *http.Request) {
	var req sendSessionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	entry, err := h.dispatcher(r).Send(r.Context(), SendRequest{
		To:        req.To,
		Kind:      KindSession,
		Body:      req.Body,
		MediaKind: provider.MediaKind(req.MediaKind),
		MediaURL:  req.MediaURL,
		Caption:   req.Caption,
	})
	h.respondSend(w, r, entry, err)
}

// respondSend maps dispatch outcomes to HTTP. Provider failures still carry
// the failed log row so callers can show the attempt.
func (h *Handler) respondSend(w http.ResponseWriter, r *http.Request, entry Log, err error) {
	if err != nil {
		var qerr *quota.Error
		var perr *provider.Error
		switch {
		case errors.Is(err, ErrNotConfigured):
			httpserver.RespondError(w, http.StatusConflict, "not_configured", "messaging is not configured")
		case errors.Is(err, ErrDisabled):
			httpserver.RespondError(w, http.StatusConflict, "disabled", "messaging is disabled")
		case errors.As(err, &qerr):
			httpserver.RespondError(w, http.StatusPaymentRequired, qerr.Code, qerr.Message)
		case errors.As(err, &perr):
			httpserver.Respond(w, http.StatusBadGateway, struct {
				Log
				Error string `json:"error"`
			}{Log: entry, Error: perr.Message})
		default:
			h.logger.Error("dispatching message", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to send message")
		}
		return
	}

	h.audit.LogFromRequest(r, "message.send", "message_log", entry.ID, nil)
	httpserver.Respond(w, http.StatusCreated, entry)
}

func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	filter := ListFilter{
		Direction: r.URL.Query().Get("direction"),
		Status:    r.URL.Query().Get("status"),
		Phone:     r.URL.Query().Get("phone"),
	}

	logs, err := NewLogStore(tenant.ConnFromContext(r.Context())).List(r.Context(), filter, params)
	if err != nil {
		h.logger.Error("listing message logs", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}
	if logs == nil {
		logs = []Log{}
	}

	page := httpserver.NewCursorPage(logs, params.Limit, func(l Log) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleGetBusinessProfile(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	creds, _, err := h.configs.Credentials(r.Context(), ti.ID)
	if err != nil {
		h.respondCredsError(w, err)
		return
	}

	profile, err := h.provider.GetBusinessProfile(r.Context(), creds)
	if err != nil {
		h.respondProviderError(w, err, "fetching business profile")
		return
	}
	httpserver.Respond(w, http.StatusOK, profile)
}

type businessProfileRequest struct {
	About       string   `json:"about" validate:"max=256"`
	Address     string   `json:"address" validate:"max=256"`
	Description string   `json:"description" validate:"max=512"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Websites    []string `json:"websites" validate:"max=2,dive,url"`
	Vertical    string   `json:"vertical" validate:"max=64"`
}

func (h *Handler) handleUpdateBusinessProfile(w http.ResponseWriter, r *http.Request) {
	var req businessProfileRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ti := tenant.FromContext(r.Context())
	creds, _, err := h.configs.Credentials(r.Context(), ti.ID)
	if err != nil {
		h.respondCredsError(w, err)
		return
	}

	profile := provider.BusinessProfile{
		About:       req.About,
		Address:     req.Address,
		Description: req.Description,
		Email:       req.Email,
		Websites:    req.Websites,
		Vertical:    req.Vertical,
	}
	if err := h.provider.UpdateBusinessProfile(r.Context(), creds, profile); err != nil {
		h.respondProviderError(w, err, "updating business profile")
		return
	}

	h.audit.LogFromRequest(r, "messaging.profile.update", "business_profile", ti.ID, nil)
	httpserver.Respond(w, http.StatusOK, profile)
}

func (h *Handler) respondCredsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotConfigured):
		httpserver.RespondError(w, http.StatusNotFound, "not_configured", "messaging is not configured")
	case errors.Is(err, ErrDisabled):
		httpserver.RespondError(w, http.StatusConflict, "disabled", "messaging is disabled")
	default:
		h.logger.Error("loading provider credentials", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to load credentials")
	}
}

func (h *Handler) respondProviderError(w http.ResponseWriter, err error, logMsg string) {
	var perr *provider.Error
	if errors.As(err, &perr) {
		httpserver.RespondError(w, http.StatusBadGateway, "provider_error", perr.Message)
		return
	}
	h.logger.Error(logMsg, "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "provider request failed")
}
