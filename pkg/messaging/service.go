package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/vault"
)

// ErrNotConfigured is returned when the tenant has no messaging config.
var ErrNotConfigured = errors.New("messaging is not configured")

// ErrDisabled is returned when the config exists but the gateway is off.
var ErrDisabled = errors.New("messaging is disabled")

// ConfigService manages tenant messaging configuration. It holds the only
// code path that sees provider tokens in the clear.
type ConfigService struct {
	store    *ConfigStore
	vault    *vault.Vault
	provider *provider.Client
	logger   *slog.Logger
}

// NewConfigService creates a ConfigService on the global pool's store.
func NewConfigService(store *ConfigStore, v *vault.Vault, pc *provider.Client, logger *slog.Logger) *ConfigService {
	return &ConfigService{store: store, vault: v, provider: pc, logger: logger}
}

// Get returns the tenant's config with a masked token preview.
func (s *ConfigService) Get(ctx context.Context, tenantID uuid.UUID) (ConfigResponse, error) {
	cfg, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return ConfigResponse{}, err
	}
	if cfg == nil {
		return ConfigResponse{}, ErrNotConfigured
	}
	return s.masked(*cfg), nil
}

// Set writes new provider credentials, encrypting the token at rest.
// The error counter resets; a fresh token is a fresh start.
func (s *ConfigService) Set(ctx context.Context, tenantID uuid.UUID, accessToken, phoneNumber, phoneNumberID, displayName string) (ConfigResponse, error) {
	tokenEnc, err := s.vault.Encrypt(accessToken)
	if err != nil {
		return ConfigResponse{}, fmt.Errorf("encrypting access token: %w", err)
	}

	cfg, err := s.store.Upsert(ctx, tenantID, tokenEnc, phoneNumber, phoneNumberID, displayName)
	if err != nil {
		return ConfigResponse{}, fmt.Errorf("saving messaging config: %w", err)
	}
	s.logger.Info("messaging config updated", "tenant_id", tenantID, "phone_number", phoneNumber)
	return s.masked(cfg), nil
}

// SetEnabled toggles the gateway.
func (s *ConfigService) SetEnabled(ctx context.Context, tenantID uuid.UUID, enabled bool) error {
	if err := s.store.SetEnabled(ctx, tenantID, enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotConfigured
		}
		return err
	}
	return nil
}

// UpdateSettings writes the behaviour settings.
func (s *ConfigService) UpdateSettings(ctx context.Context, tenantID uuid.UUID, notifyOnInbound, autoReplyEnabled bool, supportText, businessHours string) (ConfigResponse, error) {
	cfg, err := s.store.UpdateSettings(ctx, tenantID, notifyOnInbound, autoReplyEnabled, supportText, businessHours)
	if err != nil {
		return ConfigResponse{}, fmt.Errorf("updating messaging settings: %w", err)
	}
	return s.masked(cfg), nil
}

// TestConnection decrypts the stored token and pings the provider.
// Outcomes are reflected on the error counter like a real send.
func (s *ConfigService) TestConnection(ctx context.Context, tenantID uuid.UUID) error {
	creds, _, err := s.Credentials(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := s.provider.CheckHealth(ctx, creds); err != nil {
		if recErr := s.store.RecordError(ctx, tenantID, err.Error()); recErr != nil {
			s.logger.Error("recording connection test failure", "error", recErr)
		}
		return err
	}
	return s.store.ResetErrors(ctx, tenantID)
}

// Credentials loads and decrypts the tenant's provider credentials.
// Returns ErrNotConfigured / ErrDisabled when sends must not happen.
func (s *ConfigService) Credentials(ctx context.Context, tenantID uuid.UUID) (provider.Credentials, *Config, error) {
	cfg, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return provider.Credentials{}, nil, err
	}
	if cfg == nil {
		return provider.Credentials{}, nil, ErrNotConfigured
	}
	if !cfg.Enabled {
		return provider.Credentials{}, cfg, ErrDisabled
	}

	token, err := s.vault.Decrypt(cfg.AccessTokenEnc)
	if err != nil {
		return provider.Credentials{}, cfg, fmt.Errorf("decrypting access token: %w", err)
	}
	return provider.Credentials{AccessToken: token, PhoneNumberID: cfg.PhoneNumberID}, cfg, nil
}

func (s *ConfigService) masked(cfg Config) ConfigResponse {
	resp := ConfigResponse{Config: cfg}
	if token, err := s.vault.Decrypt(cfg.AccessTokenEnc); err == nil {
		resp.AccessTokenMasked = maskToken(token)
	}
	return resp
}
