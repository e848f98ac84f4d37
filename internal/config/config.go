package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway configuration, read from environment variables.
type Config struct {
	Mode string `env:"APP_MODE" envDefault:"api"`

	// Server
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"APP_PORT" envDefault:"8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/chatgate?sslmode=disable"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Migrations
	MigrationsGlobalDir string `env:"MIGRATIONS_GLOBAL_DIR" envDefault:"migrations/global"`
	MigrationsTenantDir string `env:"MIGRATIONS_TENANT_DIR" envDefault:"migrations/tenant"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Metrics
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// Credential encryption. Required in api mode: tenant provider tokens
	// are stored encrypted and cannot be read back without it.
	MasterSecret string `env:"CHATGATE_MASTER_SECRET"`

	// Messaging provider
	ProviderBaseURL     string        `env:"PROVIDER_BASE_URL" envDefault:"https://waba.example.com"`
	ProviderPartnerUser string        `env:"PROVIDER_PARTNER_USER"`
	ProviderPartnerPass string        `env:"PROVIDER_PARTNER_PASSWORD"`
	ProviderTimeout     time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"15s"`
	PartnerTokenTTL     time.Duration `env:"PROVIDER_PARTNER_TOKEN_TTL" envDefault:"50m"`

	// Webhook verification (GET challenge handshake).
	WebhookVerifyToken string `env:"WEBHOOK_VERIFY_TOKEN"`

	// Dev mode enables the X-Tenant-Slug auth fallback.
	DevMode bool `env:"DEV_MODE" envDefault:"false"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
