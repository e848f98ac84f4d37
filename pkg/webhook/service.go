package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/telemetry"
	"github.com/nimbuspos/chatgate/pkg/conversation"
	"github.com/nimbuspos/chatgate/pkg/messaging"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/realtime"
	"github.com/nimbuspos/chatgate/pkg/tenant"
)

const seenTTL = 24 * time.Hour

// entitlementGate is the slice of entitlement.Service the ingestor needs.
type entitlementGate interface {
	Check(ctx context.Context, tenantID uuid.UUID) error
}

// Ingestor processes provider webhook events. It lives outside the tenant
// middleware because the provider cannot authenticate per tenant; events
// are attributed through phone number metadata instead.
type Ingestor struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	configs   *messaging.ConfigStore
	configSvc *messaging.ConfigService
	gate      entitlementGate
	provider  *provider.Client
	notifier  *realtime.Notifier
	logger    *slog.Logger
}

// NewIngestor creates a webhook Ingestor.
func NewIngestor(pool *pgxpool.Pool, rdb *redis.Client, configSvc *messaging.ConfigService, gate entitlementGate, pc *provider.Client, notifier *realtime.Notifier, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		pool:      pool,
		rdb:       rdb,
		configs:   messaging.NewConfigStore(pool),
		configSvc: configSvc,
		gate:      gate,
		provider:  pc,
		notifier:  notifier,
		logger:    logger,
	}
}

// HandleEvent processes one webhook body. Errors are returned for logging
// only; the HTTP layer always answers 200.
func (i *Ingestor) HandleEvent(ctx context.Context, body []byte) error {
	statusEv, inboundEv, err := Classify(body)
	if err != nil {
		telemetry.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return err
	}

	switch {
	case statusEv != nil:
		telemetry.WebhookEventsTotal.WithLabelValues(TypeMessageStatus).Inc()
		return i.handleStatus(ctx, statusEv)
	case inboundEv != nil:
		telemetry.WebhookEventsTotal.WithLabelValues(TypeInboundMessage).Inc()
		return i.handleInbound(ctx, inboundEv)
	default:
		telemetry.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}
}

// seen reports whether an event key was already processed. The key is only
// written by markSeen after processing succeeds, so a failed attempt stays
// eligible for the provider's redelivery.
func (i *Ingestor) seen(ctx context.Context, key string) bool {
	n, err := i.rdb.Exists(ctx, "webhook:seen:"+key).Result()
	if err != nil {
		// Redis trouble must not drop events; the updates themselves are
		// last-write-wins so a duplicate is harmless.
		i.logger.Warn("webhook seen-cache unavailable", "error", err)
		return false
	}
	return n > 0
}

// markSeen records an event key after successful processing.
func (i *Ingestor) markSeen(ctx context.Context, key string) {
	if err := i.rdb.Set(ctx, "webhook:seen:"+key, 1, seenTTL).Err(); err != nil {
		i.logger.Warn("webhook seen-cache unavailable", "error", err)
	}
}

// resolveTenant finds the tenant for an event via phone number metadata.
// When metadata is absent and exactly one tenant has messaging enabled,
// that tenant is assumed.
func (i *Ingestor) resolveTenant(ctx context.Context, phoneNumberID string) (*messaging.Config, *tenant.Info, error) {
	var cfg *messaging.Config
	var err error

	if phoneNumberID != "" {
		cfg, err = i.configs.GetByPhoneNumberID(ctx, phoneNumberID)
		if err != nil {
			return nil, nil, err
		}
	}
	if cfg == nil {
		cfg, err = i.configs.GetSingleEnabled(ctx)
		if err != nil {
			return nil, nil, err
		}
		if cfg != nil {
			i.logger.Warn("webhook event attributed by single-enabled fallback",
				"phone_number_id", phoneNumberID, "tenant_id", cfg.TenantID)
		}
	}
	if cfg == nil {
		return nil, nil, nil
	}

	t, err := db.New(i.pool).GetTenant(ctx, cfg.TenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching tenant for webhook: %w", err)
	}
	return cfg, &tenant.Info{
		ID:     t.ID,
		Name:   t.Name,
		Slug:   t.Slug,
		Schema: tenant.SchemaName(t.Slug),
	}, nil
}

// withTenantConn runs fn on a connection scoped to the tenant's schema.
func (i *Ingestor) withTenantConn(ctx context.Context, ti *tenant.Info, fn func(db.DBTX) error) error {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx,
		`SELECT set_config('search_path', $1, false)`, ti.Schema+",public"); err != nil {
		return fmt.Errorf("setting search_path: %w", err)
	}
	return fn(conn)
}

func (i *Ingestor) handleStatus(ctx context.Context, ev *StatusEvent) error {
	status, ok := mapStatus(ev.Status)
	if !ok {
		i.logger.Debug("ignoring unknown provider status", "status", ev.Status)
		return nil
	}

	seenKey := ev.ProviderMessageID + ":" + status
	if i.seen(ctx, seenKey) {
		return nil
	}

	cfg, ti, err := i.resolveTenant(ctx, ev.PhoneNumberID)
	if err != nil {
		return err
	}
	if cfg == nil {
		i.logger.Warn("webhook status event for unknown tenant", "phone_number_id", ev.PhoneNumberID)
		return nil
	}

	err = i.withTenantConn(ctx, ti, func(conn db.DBTX) error {
		var errText *string
		if ev.ErrorText != "" {
			errText = &ev.ErrorText
		}

		matched, err := messaging.NewLogStore(conn).UpdateStatusByProviderID(ctx, ev.ProviderMessageID, status, errText)
		if err != nil {
			return err
		}
		chatMatched, err := conversation.NewStore(conn).UpdateMessageStatusByProviderID(ctx, ev.ProviderMessageID, status)
		if err != nil {
			return err
		}
		if !matched && !chatMatched {
			// Unknown provider ids happen when logs are pruned or the
			// event predates this deployment.
			i.logger.Debug("status event for unknown message", "provider_message_id", ev.ProviderMessageID)
			return nil
		}

		i.notifier.Broadcast(ctx, ti.ID, realtime.EventMessageStatus, map[string]string{
			"provider_message_id": ev.ProviderMessageID,
			"status":              status,
		})
		return nil
	})
	if err != nil {
		return err
	}
	i.markSeen(ctx, seenKey)
	return nil
}

func (i *Ingestor) handleInbound(ctx context.Context, ev *InboundEvent) error {
	if i.seen(ctx, ev.ProviderMessageID) {
		return nil
	}

	cfg, ti, err := i.resolveTenant(ctx, ev.PhoneNumberID)
	if err != nil {
		return err
	}
	if cfg == nil {
		i.logger.Warn("inbound message for unknown tenant", "phone_number_id", ev.PhoneNumberID)
		return nil
	}

	err = i.withTenantConn(ctx, ti, func(conn db.DBTX) error {
		convStore := conversation.NewStore(conn)
		conv, err := convStore.GetOrCreateByPhone(ctx, ev.From, ev.ProfileName)
		if err != nil {
			return err
		}

		msg := conversation.Message{
			ConversationID:    conv.ID,
			Direction:         messaging.DirectionInbound,
			ContentType:       ev.ContentType,
			Body:              ev.Text,
			Latitude:          ev.Latitude,
			Longitude:         ev.Longitude,
			Status:            messaging.StatusDelivered,
		}
		providerID := ev.ProviderMessageID
		msg.ProviderMessageID = &providerID
		if ev.Media != nil {
			msg.MediaURL = &ev.Media.Link
			msg.MediaMime = &ev.Media.Mime
			if ev.Media.Caption != "" {
				msg.Caption = &ev.Media.Caption
			}
		}
		if ev.ContactName != "" {
			msg.ContactName = &ev.ContactName
		}
		if ev.ContactPhone != "" {
			msg.ContactPhone = &ev.ContactPhone
		}

		appended, err := convStore.AppendMessage(ctx, msg)
		if err != nil {
			return err
		}

		if cfg.NotifyOnInbound {
			i.notifier.Broadcast(ctx, ti.ID, realtime.EventInboundMessage, appended)
		}

		if reply, ok := matchAutoReply(cfg, ev.Text); ok && ev.ContentType == "text" {
			i.sendAutoReply(ctx, conn, ti, convStore, conv, reply)
		}
		return nil
	})
	if err != nil {
		return err
	}
	i.markSeen(ctx, ev.ProviderMessageID)
	return nil
}

// sendAutoReply dispatches a canned reply and appends it to the history.
// Failures are logged; an auto-reply must never fail the webhook. The
// entitlement gate applies here like on every other send path.
func (i *Ingestor) sendAutoReply(ctx context.Context, conn db.DBTX, ti *tenant.Info, convStore *conversation.Store, conv conversation.Conversation, reply string) {
	if err := i.gate.Check(ctx, ti.ID); err != nil {
		i.logger.Warn("auto-reply suppressed by entitlement", "error", err, "tenant_id", ti.ID)
		return
	}

	dispatcher := messaging.NewDispatcher(conn, ti.ID, i.configSvc, i.provider, i.logger)
	entry, err := dispatcher.Send(ctx, messaging.SendRequest{
		To:   conv.CustomerPhone,
		Kind: messaging.KindAutoReply,
		Body: reply,
	})
	if err != nil {
		i.logger.Warn("auto-reply dispatch failed", "error", err, "conversation_id", conv.ID)
		return
	}

	telemetry.AutoRepliesTotal.Inc()
	if _, err := convStore.AppendMessage(ctx, conversation.Message{
		ConversationID:    conv.ID,
		Direction:         messaging.DirectionOutbound,
		ContentType:       conversation.ContentText,
		Body:              reply,
		ProviderMessageID: entry.ProviderMessageID,
		Status:            entry.Status,
	}); err != nil {
		i.logger.Error("appending auto-reply to history", "error", err, "conversation_id", conv.ID)
	}
}
