package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "partner", "secret",
		5*time.Second, time.Hour, slog.New(slog.DiscardHandler))
}

var testCreds = Credentials{AccessToken: "tok-123", PhoneNumberID: "555000111"}

func TestSendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.abc"}},
		})
	}))

	res, err := c.SendText(context.Background(), testCreds, "+15551234567", "hello")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if res.MessageID != "wamid.abc" {
		t.Errorf("MessageID = %q, want wamid.abc", res.MessageID)
	}
	if gotPath != "/v1/555000111/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody["type"] != "text" {
		t.Errorf("payload type = %v, want text", gotBody["type"])
	}
}

func TestSendTemplate_Params(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]string{{"id": "wamid.tpl"}},
		})
	}))

	_, err := c.SendTemplate(context.Background(), testCreds,
		"+15551234567", "order_ready", "en", []string{"Ada", "42"})
	if err != nil {
		t.Fatalf("SendTemplate() error = %v", err)
	}

	tpl, _ := gotBody["template"].(map[string]any)
	if tpl == nil || tpl["name"] != "order_ready" {
		t.Fatalf("template payload = %v", gotBody["template"])
	}
	comps, _ := tpl["components"].([]any)
	if len(comps) != 1 {
		t.Fatalf("components = %v, want one body component", comps)
	}
	body, _ := comps[0].(map[string]any)
	params, _ := body["parameters"].([]any)
	if len(params) != 2 {
		t.Errorf("parameters = %v, want 2", params)
	}
}

func TestSend_ErrorExtraction(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"nested error", 400, `{"error":{"message":"invalid recipient"}}`, "invalid recipient"},
		{"flat message", 401, `{"message":"token expired"}`, "token expired"},
		{"garbage body", 500, `<html>oops</html>`, "Internal Server Error"},
		{"empty body", 403, ``, "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			_, err := c.SendText(context.Background(), testCreds, "+15551234567", "hi")
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if perr.Status != tt.status {
				t.Errorf("Status = %d, want %d", perr.Status, tt.status)
			}
			if perr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", perr.Message, tt.wantMsg)
			}
		})
	}
}

func TestSend_NoMessageID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"messages":[]}`)
	}))
	_, err := c.SendText(context.Background(), testCreds, "+15551234567", "hi")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want *Error", err)
	}
}

func TestSubmitTemplate_PartnerTokenReuse(t *testing.T) {
	var logins atomic.Int32
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/partner/login":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "partner" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			logins.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"token": "partner-tok"})
		case "/v1/partner/templates":
			if r.Header.Get("Authorization") != "Bearer partner-tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"id": "tpl-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	sub := TemplateSubmission{
		Name: "order_ready", Category: "UTILITY", Language: "en",
		Body: "Your order {{1}} is ready", Examples: []string{"42"},
	}
	for i := 0; i < 3; i++ {
		id, err := c.SubmitTemplate(context.Background(), testCreds, sub)
		if err != nil {
			t.Fatalf("SubmitTemplate() attempt %d error = %v", i, err)
		}
		if id != "tpl-1" {
			t.Errorf("provider template id = %q, want tpl-1", id)
		}
	}
	if got := logins.Load(); got != 1 {
		t.Errorf("partner logins = %d, want 1 (token should be cached)", got)
	}
}

func TestListTemplates(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/partner/login":
			json.NewEncoder(w).Encode(map[string]string{"token": "partner-tok"})
		case "/v1/partner/templates":
			if r.URL.Query().Get("phone_number_id") != testCreds.PhoneNumberID {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			io.WriteString(w, `{"templates": [
				{"id": "tpl-1", "name": "order_ready", "category": "UTILITY",
				 "language": "en", "header_text": "Order update",
				 "body": "Hi {{1}}, your order {{2}} is ready.",
				 "footer_text": "Corner Cafe", "status": "APPROVED"},
				{"id": "tpl-2", "name": "welcome", "language": "en",
				 "status": "REJECTED", "rejected_reason": "too vague"}
			]}`)
		}
	}))

	got, err := c.ListTemplates(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("ListTemplates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Body != "Hi {{1}}, your order {{2}} is ready." {
		t.Errorf("Body = %q, want the provider's body text", got[0].Body)
	}
	if got[0].HeaderText != "Order update" || got[0].FooterText != "Corner Cafe" {
		t.Errorf("header/footer = %q, %q", got[0].HeaderText, got[0].FooterText)
	}
	if got[1].Reason != "too vague" {
		t.Errorf("Reason = %q", got[1].Reason)
	}
}

func TestTokenCache_Expiry(t *testing.T) {
	cache := NewTokenCache(50 * time.Millisecond)
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "tok", nil
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.Get(context.Background(), fetch); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := cache.Get(context.Background(), fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("fetch calls after expiry = %d, want 2", calls)
	}

	cache.Invalidate()
	if _, err := cache.Get(context.Background(), fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("fetch calls after invalidate = %d, want 3", calls)
	}
}

func TestCheckHealth(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/555000111/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	if err := c.CheckHealth(context.Background(), testCreds); err != nil {
		t.Errorf("CheckHealth() error = %v", err)
	}
}
