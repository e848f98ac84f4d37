// Package app wires configuration, storage, and HTTP surfaces into a
// runnable gateway process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuspos/chatgate/internal/audit"
	"github.com/nimbuspos/chatgate/internal/config"
	"github.com/nimbuspos/chatgate/internal/httpserver"
	"github.com/nimbuspos/chatgate/internal/platform"
	"github.com/nimbuspos/chatgate/internal/seed"
	"github.com/nimbuspos/chatgate/internal/telemetry"
	"github.com/nimbuspos/chatgate/pkg/conversation"
	"github.com/nimbuspos/chatgate/pkg/entitlement"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/quota"
	"github.com/nimbuspos/chatgate/pkg/realtime"
	"github.com/nimbuspos/chatgate/pkg/template"
	"github.com/nimbuspos/chatgate/pkg/trigger"
	"github.com/nimbuspos/chatgate/pkg/vault"
	"github.com/nimbuspos/chatgate/pkg/webhook"
)

// Run is the process entrypoint shared by every mode. It blocks until ctx
// is cancelled or startup fails.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := platform.RunGlobalMigrations(cfg.DatabaseURL, cfg.MigrationsGlobalDir); err != nil {
		return fmt.Errorf("running global migrations: %w", err)
	}

	switch cfg.Mode {
	case "seed":
		return seed.Run(ctx, cfg, pool, logger)
	case "api":
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		return runAPI(ctx, cfg, pool, rdb, logger)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) error {
	v, err := vault.New(cfg.MasterSecret)
	if err != nil {
		return fmt.Errorf("initialising credential vault: %w", err)
	}

	pc := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderPartnerUser, cfg.ProviderPartnerPass,
		cfg.ProviderTimeout, cfg.PartnerTokenTTL, logger)

	metricsReg := telemetry.NewMetricsRegistry()

	auditWriter := audit.NewWriter(pool, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	notifier := realtime.NewNotifier(rdb, logger)
	go notifier.Run(ctx)

	configSvc := messaging.NewConfigService(messaging.NewConfigStore(pool), v, pc, logger)
	entitlements := entitlement.NewService(pool, logger)
	ingestor := webhook.NewIngestor(pool, rdb, configSvc, entitlements, pc, notifier, logger)

	srv := httpserver.NewServer(cfg, logger, pool, rdb, metricsReg)

	srv.WebhookRouter.Mount("/", webhook.NewHandler(ingestor, cfg.WebhookVerifyToken, logger).Routes())

	api := srv.APIRouter
	api.Mount("/entitlement", entitlement.NewHandler(entitlements, logger).Routes())
	api.Mount("/quota", quota.NewHandler(logger, auditWriter).Routes())

	// Everything below needs an entitled tenant.
	api.Group(func(r chi.Router) {
		r.Use(entitlement.Require(entitlements, logger))
		r.Mount("/messaging", messaging.NewHandler(configSvc, pc, logger, auditWriter).Routes())
		r.Mount("/templates", template.NewHandler(configSvc, pc, logger, auditWriter).Routes())
		r.Mount("/triggers", trigger.NewHandler(configSvc, pc, logger, auditWriter).Routes())
		r.Mount("/conversations", conversation.NewHandler(configSvc, pc, logger).Routes())
		r.Mount("/realtime", realtime.NewHandler(notifier).Routes())
	})

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
