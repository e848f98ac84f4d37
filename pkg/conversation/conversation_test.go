package conversation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPreviewText(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		caption     string
		want        string
	}{
		{"plain text", ContentText, "see you at 6", "", "see you at 6"},
		{"image with caption", ContentImage, "", "the receipt", "[image] the receipt"},
		{"image without caption", ContentImage, "", "", "[image]"},
		{"location", ContentLocation, "", "", "[location]"},
		{"sticker", ContentSticker, "", "", "[sticker]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := previewText(tt.contentType, tt.body, tt.caption); got != tt.want {
				t.Errorf("previewText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreviewText_Truncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := previewText(ContentText, long, "")
	if utf8.RuneCountInString(got) != previewLimit {
		t.Errorf("truncated preview has %d runes, want %d", utf8.RuneCountInString(got), previewLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated preview %q should end with ellipsis", got)
	}

	// Multibyte text must not be cut mid-rune.
	longUnicode := strings.Repeat("ü", 300)
	got = previewText(ContentText, longUnicode, "")
	if !utf8.ValidString(got) {
		t.Error("truncated unicode preview is not valid UTF-8")
	}
}
