package realtime

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

// Handler exposes the websocket endpoint.
type Handler struct {
	notifier *Notifier
}

// NewHandler creates a realtime Handler.
func NewHandler(notifier *Notifier) *Handler {
	return &Handler{notifier: notifier}
}

// Routes returns a chi.Router with the websocket route mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", h.handleWS)
	return r
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	ti := tenant.FromContext(r.Context())
	if ti == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "no tenant in context")
		return
	}
	h.notifier.ServeWS(w, r, ti.ID)
}
