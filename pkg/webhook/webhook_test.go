package webhook

import (
	"testing"

	"github.com/nimbuspos/chatgate/pkg/messaging"
)

func TestClassify_StatusEvent(t *testing.T) {
	body := []byte(`{
		"type": "message-status",
		"metadata": {"phone_number_id": "555000111"},
		"status": {"id": "wamid.abc", "status": "delivered"}
	}`)

	statusEv, inboundEv, err := Classify(body)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if inboundEv != nil {
		t.Fatal("Classify() returned inbound event for status payload")
	}
	if statusEv == nil {
		t.Fatal("Classify() returned no status event")
	}
	if statusEv.ProviderMessageID != "wamid.abc" || statusEv.Status != "delivered" {
		t.Errorf("status event = %+v", statusEv)
	}
	if statusEv.PhoneNumberID != "555000111" {
		t.Errorf("PhoneNumberID = %q", statusEv.PhoneNumberID)
	}
}

func TestClassify_StatusWithError(t *testing.T) {
	body := []byte(`{
		"type": "message-status",
		"status": {"id": "wamid.abc", "status": "failed", "error": {"message": "recipient opted out"}}
	}`)
	statusEv, _, err := Classify(body)
	if err != nil || statusEv == nil {
		t.Fatalf("Classify() = %v, %v", statusEv, err)
	}
	if statusEv.ErrorText != "recipient opted out" {
		t.Errorf("ErrorText = %q", statusEv.ErrorText)
	}
}

func TestClassify_InboundContentTypes(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType string
	}{
		{"text", `{"id":"m1","from":"+15551234567","text":{"body":"hi"}}`, "text"},
		{"image", `{"id":"m2","from":"+15551234567","image":{"link":"https://cdn/x.jpg","mime_type":"image/jpeg","caption":"look"}}`, "image"},
		{"video", `{"id":"m3","from":"+15551234567","video":{"link":"https://cdn/x.mp4"}}`, "video"},
		{"audio", `{"id":"m4","from":"+15551234567","audio":{"link":"https://cdn/x.ogg"}}`, "audio"},
		{"document", `{"id":"m5","from":"+15551234567","document":{"link":"https://cdn/x.pdf"}}`, "document"},
		{"sticker", `{"id":"m6","from":"+15551234567","sticker":{"link":"https://cdn/x.webp"}}`, "sticker"},
		{"location", `{"id":"m7","from":"+15551234567","location":{"latitude":52.5,"longitude":13.4}}`, "location"},
		{"contact", `{"id":"m8","from":"+15551234567","contact":{"name":"Ada","phone":"+15557654321"}}`, "contact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(`{"type":"inbound-message","metadata":{"phone_number_id":"555000111"},"message":` + tt.message + `}`)
			_, ev, err := Classify(body)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if ev == nil {
				t.Fatal("Classify() returned no inbound event")
			}
			if ev.ContentType != tt.wantType {
				t.Errorf("ContentType = %q, want %q", ev.ContentType, tt.wantType)
			}
		})
	}
}

func TestClassify_LocationCoordinates(t *testing.T) {
	body := []byte(`{"type":"inbound-message","message":{"id":"m7","from":"+1555","location":{"latitude":52.5,"longitude":13.4}}}`)
	_, ev, err := Classify(body)
	if err != nil || ev == nil {
		t.Fatalf("Classify() = %v, %v", ev, err)
	}
	if ev.Latitude == nil || *ev.Latitude != 52.5 || ev.Longitude == nil || *ev.Longitude != 13.4 {
		t.Errorf("coordinates = %v, %v", ev.Latitude, ev.Longitude)
	}
}

func TestClassify_UnknownTypeIgnored(t *testing.T) {
	statusEv, inboundEv, err := Classify([]byte(`{"type":"account-update","data":{}}`))
	if err != nil {
		t.Fatalf("Classify() error = %v, unknown types must not error", err)
	}
	if statusEv != nil || inboundEv != nil {
		t.Error("Classify() produced an event for an unknown type")
	}
}

func TestClassify_Malformed(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"message-status"}`),
		[]byte(`{"type":"inbound-message","message":{"id":"m1","from":"+1555"}}`),
	}
	for _, body := range cases {
		if _, _, err := Classify(body); err == nil {
			t.Errorf("Classify(%s) error = nil, want error", body)
		}
	}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"sent", "sent", true},
		{"accepted", "sent", true},
		{"delivered", "delivered", true},
		{"read", "read", true},
		{"seen", "read", true},
		{"failed", "failed", true},
		{"undeliverable", "failed", true},
		{"warmup", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := mapStatus(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("mapStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMatchAutoReply(t *testing.T) {
	cfg := &messaging.Config{
		AutoReplyEnabled: true,
		SupportText:      "Call us at +1-555-0100.",
		BusinessHours:    "Mon-Fri 9-18",
	}

	tests := []struct {
		body   string
		want   string
		wantOK bool
	}{
		{"HELP", "Call us at +1-555-0100.", true},
		{"help", "Call us at +1-555-0100.", true},
		{"  Support  ", "Call us at +1-555-0100.", true},
		{"HOURS", "Mon-Fri 9-18", true},
		{"please help me", "", false},
		{"helpful", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := matchAutoReply(cfg, tt.body)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("matchAutoReply(%q) = %q, %v; want %q, %v", tt.body, got, ok, tt.want, tt.wantOK)
		}
	}

	t.Run("disabled config", func(t *testing.T) {
		off := *cfg
		off.AutoReplyEnabled = false
		if _, ok := matchAutoReply(&off, "help"); ok {
			t.Error("matchAutoReply fired with auto-reply disabled")
		}
	})

	t.Run("nil config", func(t *testing.T) {
		if _, ok := matchAutoReply(nil, "help"); ok {
			t.Error("matchAutoReply fired with nil config")
		}
	})

	t.Run("empty support text", func(t *testing.T) {
		bare := &messaging.Config{AutoReplyEnabled: true}
		if _, ok := matchAutoReply(bare, "help"); ok {
			t.Error("matchAutoReply fired with no support text configured")
		}
	})
}
