package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuspos/chatgate/pkg/conversation"
	"github.com/nimbuspos/chatgate/pkg/entitlement"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

type stubGate struct {
	err    error
	gotIDs []uuid.UUID
}

func (g *stubGate) Check(_ context.Context, tenantID uuid.UUID) error {
	g.gotIDs = append(g.gotIDs, tenantID)
	return g.err
}

// An unentitled tenant must not send auto-replies; the inbound message
// itself is still stored by the caller.
func TestSendAutoReply_EntitlementDenied(t *testing.T) {
	providerCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalled = true
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.DiscardHandler)
	pc := provider.NewClient(srv.URL, "partner", "secret", 5*time.Second, time.Hour, logger)
	gate := &stubGate{err: &entitlement.Error{Code: entitlement.CodeAddonRequired, Message: "messaging addon required"}}

	i := NewIngestor(nil, nil, nil, gate, pc, nil, logger)
	ti := &tenant.Info{ID: uuid.MustParse("11111111-2222-3333-4444-555555555555")}
	conv := conversation.Conversation{ID: uuid.New(), CustomerPhone: "+15551234567"}

	i.sendAutoReply(context.Background(), nil, ti, nil, conv, "Call us at +1-555-0100.")

	if providerCalled {
		t.Error("auto-reply reached the provider for an unentitled tenant")
	}
	if len(gate.gotIDs) != 1 || gate.gotIDs[0] != ti.ID {
		t.Errorf("entitlement checks = %v, want one for %v", gate.gotIDs, ti.ID)
	}
}

// An unavailable seen-cache must fail open: events are processed (possibly
// twice) rather than dropped.
func TestSeenCache_FailOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })

	i := NewIngestor(nil, rdb, nil, nil, nil, nil, slog.New(slog.DiscardHandler))

	if i.seen(context.Background(), "wamid.x:delivered") {
		t.Error("seen() = true while the cache is unreachable, events would be dropped")
	}
	i.markSeen(context.Background(), "wamid.x:delivered")
}
