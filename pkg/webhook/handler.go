package webhook

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the webhook ingress endpoints. Mounted outside the auth
// and tenant middleware.
type Handler struct {
	ingestor    *Ingestor
	verifyToken string
	logger      *slog.Logger
}

// NewHandler creates a webhook Handler.
func NewHandler(ingestor *Ingestor, verifyToken string, logger *slog.Logger) *Handler {
	return &Handler{ingestor: ingestor, verifyToken: verifyToken, logger: logger}
}

// Routes returns a chi.Router with webhook routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/provider", h.handleVerify)
	r.Post("/provider", h.handleEvent)
	return r
}

// handleVerify answers the provider's subscription handshake: echo the
// challenge when the verify token matches.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// handleEvent ingests one event. The provider retries on non-200, so every
// outcome short of a transport failure answers 200; internal errors are
// logged and swallowed.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("reading webhook body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.ingestor.HandleEvent(r.Context(), body); err != nil {
		h.logger.Error("processing webhook event", "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
