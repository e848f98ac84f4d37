package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Mode != "api" {
		t.Errorf("Mode = %q, want api", cfg.Mode)
	}
	if cfg.ListenAddr() != "0.0.0.0:8080" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	// Provider client paths all start with /v1/, so the base URL must not
	// carry the version segment itself.
	if strings.HasSuffix(cfg.ProviderBaseURL, "/v1") || strings.HasSuffix(cfg.ProviderBaseURL, "/") {
		t.Errorf("ProviderBaseURL default = %q must not end in a path segment", cfg.ProviderBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9999")
	t.Setenv("PROVIDER_BASE_URL", "https://staging.waba.example.com")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://pos.example.com,https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.ProviderBaseURL != "https://staging.waba.example.com" {
		t.Errorf("ProviderBaseURL = %q", cfg.ProviderBaseURL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want two entries", cfg.CORSAllowedOrigins)
	}
}
