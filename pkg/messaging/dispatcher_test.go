package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/quota"
	"github.com/nimbuspos/chatgate/pkg/vault"
)

// fakeRow hands scripted values to a store's Scan call.
type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan wants %d values, fake has %d", len(dest), len(r.vals))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// fakeDB satisfies db.DBTX with rows routed by SQL substring.
type fakeDB struct {
	rows     map[string]fakeRow
	affected map[string]int64
	execs    []string
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	n := int64(1)
	for sub, v := range f.affected {
		if strings.Contains(sql, sub) {
			n = v
		}
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n)), nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	for sub, row := range f.rows {
		if strings.Contains(sql, sub) {
			return row
		}
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (f *fakeDB) execsMatching(sub string) int {
	count := 0
	for _, sql := range f.execs {
		if strings.Contains(sql, sub) {
			count++
		}
	}
	return count
}

func configRow(t *testing.T, tenantID uuid.UUID, v *vault.Vault, enabled bool) fakeRow {
	t.Helper()
	enc, err := v.Encrypt("tok-123")
	if err != nil {
		t.Fatal(err)
	}
	return fakeRow{vals: []any{
		tenantID, enc, "+15550001111", "555000111", "Corner Cafe",
		enabled, true, true, "", "", 0, (*string)(nil), time.Now(),
	}}
}

func subscriptionRow(limit, used int) fakeRow {
	now := time.Now()
	return fakeRow{vals: []any{
		uuid.New(), uuid.New(), "starter", limit, used, "active",
		now.AddDate(0, -1, 0), now.AddDate(0, 1, 0), (*time.Time)(nil), now, now,
	}}
}

func queuedLogRow(id uuid.UUID, phone string) fakeRow {
	now := time.Now()
	return fakeRow{vals: []any{
		id, "outbound", phone, "session", (*string)(nil), (*string)(nil),
		"queued", (*string)(nil), now, now,
	}}
}

func testDispatcher(t *testing.T, f *fakeDB, providerHandler http.Handler) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(providerHandler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.DiscardHandler)
	v, err := vault.New("dispatcher-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	pc := provider.NewClient(srv.URL, "partner", "secret", 5*time.Second, time.Hour, logger)
	tenantID := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	if f.rows == nil {
		f.rows = map[string]fakeRow{}
	}
	if _, ok := f.rows["public.messaging_configs"]; !ok {
		f.rows["public.messaging_configs"] = configRow(t, tenantID, v, true)
	}

	configs := NewConfigService(NewConfigStore(f), v, pc, logger)
	return NewDispatcher(f, tenantID, configs, pc, logger)
}

func TestDispatcherSend_Success(t *testing.T) {
	logID := uuid.New()
	f := &fakeDB{rows: map[string]fakeRow{
		"FROM subscriptions":       subscriptionRow(100, 1),
		"INSERT INTO message_logs": queuedLogRow(logID, "+15551234567"),
	}}

	d := testDispatcher(t, f, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"messages":[{"id":"wamid.ok"}]}`)
	}))

	entry, err := d.Send(context.Background(), SendRequest{
		To: "+15551234567", Kind: KindSession, Body: "see you at 6",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if entry.ID != logID {
		t.Errorf("log id = %v, want %v", entry.ID, logID)
	}
	if entry.Status != StatusSent {
		t.Errorf("Status = %q, want %q", entry.Status, StatusSent)
	}
	if entry.ProviderMessageID == nil || *entry.ProviderMessageID != "wamid.ok" {
		t.Errorf("ProviderMessageID = %v, want wamid.ok", entry.ProviderMessageID)
	}

	if got := f.execsMatching("status = 'sent'"); got != 1 {
		t.Errorf("sent updates = %d, want 1", got)
	}
	if got := f.execsMatching("messages_used = messages_used + 1"); got != 1 {
		t.Errorf("quota deductions = %d, want 1", got)
	}
	if got := f.execsMatching("error_count = 0"); got != 1 {
		t.Errorf("error-counter resets = %d, want 1", got)
	}
}

func TestDispatcherSend_ProviderFailure(t *testing.T) {
	f := &fakeDB{rows: map[string]fakeRow{
		"FROM subscriptions":       subscriptionRow(100, 1),
		"INSERT INTO message_logs": queuedLogRow(uuid.New(), "+15551234567"),
	}}

	d := testDispatcher(t, f, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid recipient"}}`)
	}))

	entry, err := d.Send(context.Background(), SendRequest{
		To: "+15551234567", Kind: KindSession, Body: "hi",
	})
	if err == nil {
		t.Fatal("Send() error = nil, want provider error")
	}
	if entry.ID == uuid.Nil {
		t.Fatal("failed send must still return its log row")
	}
	if entry.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", entry.Status, StatusFailed)
	}
	if entry.ErrorText == nil || !strings.Contains(*entry.ErrorText, "invalid recipient") {
		t.Errorf("ErrorText = %v, want provider message", entry.ErrorText)
	}

	if got := f.execsMatching("status = 'failed'"); got != 1 {
		t.Errorf("failed updates = %d, want 1", got)
	}
	if got := f.execsMatching("error_count = error_count + 1"); got != 1 {
		t.Errorf("error-counter bumps = %d, want 1", got)
	}
	if got := f.execsMatching("messages_used = messages_used + 1"); got != 0 {
		t.Errorf("quota deductions = %d, want 0 on failure", got)
	}
}

func TestDispatcherSend_NoSubscription(t *testing.T) {
	providerCalled := false
	f := &fakeDB{rows: map[string]fakeRow{}}

	d := testDispatcher(t, f, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalled = true
	}))

	entry, err := d.Send(context.Background(), SendRequest{
		To: "+15551234567", Kind: KindSession, Body: "hi",
	})
	var qerr *quota.Error
	if !errors.As(err, &qerr) || qerr.Code != quota.CodeNoSubscription {
		t.Fatalf("Send() error = %v, want quota %s", err, quota.CodeNoSubscription)
	}
	if entry.ID != uuid.Nil {
		t.Error("quota refusal must not produce a log row")
	}
	if providerCalled {
		t.Error("provider must not be called without quota")
	}
}

func TestDispatcherSend_Disabled(t *testing.T) {
	tenantID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	v, err := vault.New("dispatcher-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeDB{rows: map[string]fakeRow{
		"public.messaging_configs": configRow(t, tenantID, v, false),
		"FROM subscriptions":       subscriptionRow(100, 1),
	}}

	d := testDispatcher(t, f, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called while messaging is disabled")
	}))

	if _, err := d.Send(context.Background(), SendRequest{
		To: "+15551234567", Kind: KindSession, Body: "hi",
	}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Send() error = %v, want ErrDisabled", err)
	}
}

func TestLogStoreUpdateStatus_UnknownProviderID(t *testing.T) {
	f := &fakeDB{affected: map[string]int64{"UPDATE message_logs": 0}}

	matched, err := NewLogStore(f).UpdateStatusByProviderID(context.Background(), "wamid.unknown", StatusDelivered, nil)
	if err != nil {
		t.Fatalf("UpdateStatusByProviderID() error = %v", err)
	}
	if matched {
		t.Error("unknown provider message id must report no match")
	}
}
