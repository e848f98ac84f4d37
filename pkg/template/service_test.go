package template

import (
	"context"
	"encoding/json"
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

	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/vault"
)

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan wants %d values, stub has %d", len(dest), len(r.vals))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

type recordedExec struct {
	sql  string
	args []any
}

// stubDB satisfies db.DBTX; row lookups are routed by the test through
// queryRow so the same SQL can answer differently per argument.
type stubDB struct {
	queryRow func(sql string, args []any) stubRow
	execs    []recordedExec
}

func (f *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, recordedExec{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (f *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return f.queryRow(sql, args)
}

func (f *stubDB) execsMatching(sub string) []recordedExec {
	var matched []recordedExec
	for _, e := range f.execs {
		if strings.Contains(e.sql, sub) {
			matched = append(matched, e)
		}
	}
	return matched
}

func storedTemplateRow(id uuid.UUID, name, body, status string, providerID *string) stubRow {
	now := time.Now()
	return stubRow{vals: []any{
		id, name, "UTILITY", "en", "", body, "", []string{}, status,
		providerID, (*string)(nil), now, now,
	}}
}

func tenantConfigRow(t *testing.T, tenantID uuid.UUID, v *vault.Vault) stubRow {
	t.Helper()
	enc, err := v.Encrypt("tok-123")
	if err != nil {
		t.Fatal(err)
	}
	return stubRow{vals: []any{
		tenantID, enc, "+15550001111", "555000111", "Corner Cafe",
		true, true, false, "", "", 0, (*string)(nil), time.Now(),
	}}
}

func syncService(t *testing.T, f *stubDB, remotes []map[string]any) *Service {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/partner/login":
			json.NewEncoder(w).Encode(map[string]string{"token": "partner-tok"})
		case "/v1/partner/templates":
			json.NewEncoder(w).Encode(map[string]any{"templates": remotes})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.DiscardHandler)
	v, err := vault.New("template-test-secret")
	if err != nil {
		t.Fatal(err)
	}
	pc := provider.NewClient(srv.URL, "partner", "secret", 5*time.Second, time.Hour, logger)
	tenantID := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	configRow := tenantConfigRow(t, tenantID, v)
	inner := f.queryRow
	f.queryRow = func(sql string, args []any) stubRow {
		if strings.Contains(sql, "public.messaging_configs") {
			return configRow
		}
		if inner != nil {
			return inner(sql, args)
		}
		return stubRow{err: pgx.ErrNoRows}
	}

	configs := messaging.NewConfigService(messaging.NewConfigStore(f), v, pc, logger)
	return NewService(f, tenantID, configs, pc, logger)
}

func TestSyncFromProvider_RefreshesMatchedContent(t *testing.T) {
	existingID := uuid.New()
	providerID := "tpl-1"
	f := &stubDB{}
	f.queryRow = func(sql string, args []any) stubRow {
		if strings.Contains(sql, "provider_template_id = $1") && args[0] == providerID {
			return storedTemplateRow(existingID, "order_ready", "old body", StatusApproved, &providerID)
		}
		return stubRow{err: pgx.ErrNoRows}
	}

	svc := syncService(t, f, []map[string]any{{
		"id":       "tpl-1",
		"name":     "Order Ready",
		"category": "UTILITY",
		"language": "en",
		"body":     "Hi {{1}}, your order {{2}} is ready.",
		"status":   "approved",
	}})

	result, err := svc.SyncFromProvider(context.Background())
	if err != nil {
		t.Fatalf("SyncFromProvider() error = %v", err)
	}
	if result.Updated != 1 || result.Inserted != 0 {
		t.Fatalf("result = %+v, want one update", result)
	}

	updates := f.execsMatching("status = 'approved'")
	if len(updates) != 1 {
		t.Fatalf("approved updates = %d, want 1", len(updates))
	}
	args := updates[0].args
	if args[0] != existingID {
		t.Errorf("updated id = %v, want %v", args[0], existingID)
	}
	if args[5] != "Hi {{1}}, your order {{2}} is ready." {
		t.Errorf("refreshed body = %v, want the provider's body", args[5])
	}
}

func TestSyncFromProvider_InsertsNewApproved(t *testing.T) {
	f := &stubDB{}
	f.queryRow = func(string, []any) stubRow {
		return stubRow{err: pgx.ErrNoRows}
	}

	svc := syncService(t, f, []map[string]any{{
		"id":       "tpl-9",
		"name":     "New Promo",
		"category": "MARKETING",
		"language": "en",
		"body":     "This week only: {{1}}% off.",
		"status":   "APPROVED",
	}})

	result, err := svc.SyncFromProvider(context.Background())
	if err != nil {
		t.Fatalf("SyncFromProvider() error = %v", err)
	}
	if result.Inserted != 1 {
		t.Fatalf("result = %+v, want one insert", result)
	}

	inserts := f.execsMatching("INSERT INTO templates")
	if len(inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(inserts))
	}
	args := inserts[0].args
	if args[0] != "new_promo" {
		t.Errorf("inserted name = %v, want normalized new_promo", args[0])
	}
	if args[4] != "This week only: {{1}}% off." {
		t.Errorf("inserted body = %v, want the provider's body", args[4])
	}
}

func TestSyncFromProvider_AppliesRejection(t *testing.T) {
	pendingID := uuid.New()
	pendingProviderID := "tpl-2"
	draftID := uuid.New()
	draftProviderID := "tpl-3"

	f := &stubDB{}
	f.queryRow = func(sql string, args []any) stubRow {
		if strings.Contains(sql, "provider_template_id = $1") {
			switch args[0] {
			case pendingProviderID:
				return storedTemplateRow(pendingID, "welcome", "Welcome!", StatusPending, &pendingProviderID)
			case draftProviderID:
				return storedTemplateRow(draftID, "promo_blast", "Deals!", StatusDraft, &draftProviderID)
			}
		}
		return stubRow{err: pgx.ErrNoRows}
	}

	svc := syncService(t, f, []map[string]any{
		{"id": "tpl-2", "name": "welcome", "status": "rejected", "rejected_reason": "too vague"},
		{"id": "tpl-3", "name": "promo_blast", "status": "rejected"},
	})

	result, err := svc.SyncFromProvider(context.Background())
	if err != nil {
		t.Fatalf("SyncFromProvider() error = %v", err)
	}
	if result.Rejected != 1 {
		t.Fatalf("result = %+v, want one rejection", result)
	}

	outcomes := f.execsMatching("rejection_reason = $3")
	if len(outcomes) != 1 {
		t.Fatalf("review outcomes = %d, want 1 (draft rows keep their local state)", len(outcomes))
	}
	args := outcomes[0].args
	if args[0] != pendingID {
		t.Errorf("outcome id = %v, want the pending row %v", args[0], pendingID)
	}
	if args[1] != StatusRejected {
		t.Errorf("outcome status = %v, want %q", args[1], StatusRejected)
	}
	reason, ok := args[2].(*string)
	if !ok || reason == nil || *reason != "too vague" {
		t.Errorf("outcome reason = %v, want too vague", args[2])
	}
}
