package entitlement

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuspos/chatgate/internal/auth"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for the entitlement API.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates an entitlement Handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes returns a chi.Router with entitlement routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleStatus)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/trial", h.handleStartTrial)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/grant", h.handleGrant)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/cancel", h.handleCancel)
	return r
}

// Require is a middleware that rejects requests from tenants without gateway
// access. It guards every messaging management route group.
func Require(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ti := tenant.FromContext(r.Context())
			if ti == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant in context")
				return
			}

			if err := service.Check(r.Context(), ti.ID); err != nil {
				var denial *Error
				if errors.As(err, &denial) {
					httpserver.RespondError(w, http.StatusPaymentRequired, denial.Code, denial.Message)
					return
				}
				logger.Error("entitlement check failed", "error", err, "tenant_id", ti.ID)
				httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "entitlement check failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	resp, err := h.service.Status(r.Context(), ti.ID)
	if err != nil {
		h.logger.Error("fetching entitlement status", "error", err, "tenant_id", ti.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch entitlement status")
		return
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleStartTrial(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	addon, err := h.service.StartTrial(r.Context(), ti.ID)
	if err != nil {
		var denial *Error
		if errors.As(err, &denial) {
			httpserver.RespondError(w, http.StatusConflict, denial.Code, denial.Message)
			return
		}
		h.logger.Error("starting trial", "error", err, "tenant_id", ti.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to start trial")
		return
	}
	httpserver.Respond(w, http.StatusCreated, addon)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	addon, err := h.service.Grant(r.Context(), ti.ID)
	if err != nil {
		h.logger.Error("granting addon", "error", err, "tenant_id", ti.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to grant addon")
		return
	}
	httpserver.Respond(w, http.StatusOK, addon)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	addon, err := h.service.Cancel(r.Context(), ti.ID)
	if err != nil {
		var denial *Error
		if errors.As(err, &denial) {
			httpserver.RespondError(w, http.StatusNotFound, denial.Code, denial.Message)
			return
		}
		h.logger.Error("cancelling addon", "error", err, "tenant_id", ti.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to cancel addon")
		return
	}
	httpserver.Respond(w, http.StatusOK, addon)
}
