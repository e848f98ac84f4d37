package quota

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/audit"
	"github.com/nimbuspos/chatgate/internal/auth"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for quota and package endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
}

// NewHandler creates a quota Handler.
func NewHandler(logger *slog.Logger, auditWriter *audit.Writer) *Handler {
	return &Handler{logger: logger, audit: auditWriter}
}

// Routes returns a chi.Router with quota routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/usage", h.handleUsage)
	r.Get("/packages", h.handlePackages)
	r.With(auth.RequireRole(auth.RoleAdmin)).Post("/subscribe", h.handleSubscribe)
	return r
}

// service builds a Service on the request's tenant-scoped connection.
func (h *Handler) service(r *http.Request) *Service {
	return NewService(tenant.ConnFromContext(r.Context()), h.logger)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	st, denial, err := h.service(r).Usage(r.Context())
	if err != nil {
		h.logger.Error("fetching quota usage", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch usage")
		return
	}

	resp := struct {
		Status
		Code string `json:"code,omitempty"`
	}{Status: st}
	if denial != nil {
		resp.Code = denial.Code
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handlePackages(w http.ResponseWriter, r *http.Request) {
	pkgs, err := h.service(r).Packages(r.Context())
	if err != nil {
		h.logger.Error("listing packages", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list packages")
		return
	}
	if pkgs == nil {
		pkgs = []Package{}
	}
	httpserver.Respond(w, http.StatusOK, pkgs)
}

type subscribeRequest struct {
	PackageID uuid.UUID `json:"package_id" validate:"required"`
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sub, err := h.service(r).Subscribe(r.Context(), req.PackageID)
	if err != nil {
		var denial *Error
		if errors.As(err, &denial) {
			httpserver.RespondError(w, http.StatusConflict, denial.Code, denial.Message)
			return
		}
		h.logger.Error("subscribing to package", "error", err, "package_id", req.PackageID)
		httpserver.RespondError(w, http.StatusBadRequest, "subscribe_failed", "could not activate package")
		return
	}

	detail, _ := json.Marshal(map[string]any{
		"package_name":  sub.PackageName,
		"message_limit": sub.MessageLimit,
	})
	h.audit.LogFromRequest(r, "subscription.create", "subscription", sub.ID, detail)
	httpserver.Respond(w, http.StatusCreated, sub)
}
