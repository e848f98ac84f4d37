package conversation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/quota"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler provides HTTP handlers for the inbox.
type Handler struct {
	configs  *messaging.ConfigService
	provider *provider.Client
	logger   *slog.Logger
}

// NewHandler creates a conversation Handler.
func NewHandler(configs *messaging.ConfigService, pc *provider.Client, logger *slog.Logger) *Handler {
	return &Handler{configs: configs, provider: pc, logger: logger}
}

// Routes returns a chi.Router with conversation routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleStart)
	r.Route("/{conversationID}", func(r chi.Router) {
		r.Get("/messages", h.handleHistory)
		r.Post("/messages", h.handleSendChat)
		r.Post("/read", h.handleMarkRead)
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

func conversationID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	return id, err == nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	convs, total, err := h.service(r).List(r.Context(), r.URL.Query().Get("q"), params)
	if err != nil {
		h.logger.Error("listing conversations", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(convs, params, total))
}

type startRequest struct {
	CustomerPhone string `json:"customer_phone" validate:"required,e164"`
	CustomerName  string `json:"customer_name" validate:"max=120"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conv, err := h.service(r).Start(r.Context(), req.CustomerPhone, req.CustomerName)
	if err != nil {
		h.logger.Error("starting conversation", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to start conversation")
		return
	}
	httpserver.Respond(w, http.StatusCreated, conv)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid conversation id")
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	msgs, err := h.service(r).History(r.Context(), id, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("fetching chat history", "error", err, "conversation_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to fetch history")
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}

	page := httpserver.NewCursorPage(msgs, params.Limit, func(m Message) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

type chatRequest struct {
	Body      string `json:"body" validate:"required_without=MediaURL,max=4096"`
	MediaKind string `json:"media_kind" validate:"omitempty,oneof=image video audio document"`
	MediaURL  string `json:"media_url" validate:"omitempty,url"`
	Caption   string `json:"caption" validate:"max=1024"`
}

func (h *Handler) handleSendChat(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid conversation id")
		return
	}

	var req chatRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	msg, err := h.service(r).SendChat(r.Context(), id, ChatInput{
		Body:      req.Body,
		MediaKind: req.MediaKind,
		MediaURL:  req.MediaURL,
		Caption:   req.Caption,
	})
	if err != nil {
		var qerr *quota.Error
		var perr *provider.Error
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "conversation not found")
		case errors.Is(err, messaging.ErrNotConfigured), errors.Is(err, messaging.ErrDisabled):
			httpserver.RespondError(w, http.StatusConflict, "not_configured", "messaging is not available")
		case errors.As(err, &qerr):
			httpserver.RespondError(w, http.StatusPaymentRequired, qerr.Code, qerr.Message)
		case errors.As(err, &perr):
			httpserver.Respond(w, http.StatusBadGateway, struct {
				Message
				Error string `json:"error"`
			}{Message: msg, Error: perr.Message})
		default:
			h.logger.Error("sending chat message", "error", err, "conversation_id", id)
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to send message")
		}
		return
	}
	httpserver.Respond(w, http.StatusCreated, msg)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid conversation id")
		return
	}

	if err := h.service(r).MarkRead(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("marking conversation read", "error", err, "conversation_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
