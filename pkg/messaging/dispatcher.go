package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nimbuspos/chatgate/internal/db"
	"github.com/nimbuspos/chatgate/internal/telemetry"
	"github.com/nimbuspos/chatgate/pkg/provider"
	"github.com/nimbuspos/chatgate/pkg/quota"
)

// SendRequest describes one outbound message. Exactly one payload shape is
// used depending on Kind: template name + params, text body, or media.
type SendRequest struct {
	To           string
	Kind         string
	TemplateName string
	Language     string
	Params       []string
	Body         string
	MediaKind    provider.MediaKind
	MediaURL     string
	Caption      string
}

// Dispatcher runs the outbound send protocol for one tenant. It is built
// per request (or per webhook event) from a tenant-scoped connection.
type Dispatcher struct {
	tenantID uuid.UUID
	configs  *ConfigService
	logs     *LogStore
	quota    *quota.Service
	provider *provider.Client
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. dbtx must be scoped to the tenant's
// schema; configs may run on the global pool.
func NewDispatcher(dbtx db.DBTX, tenantID uuid.UUID, configs *ConfigService, pc *provider.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tenantID: tenantID,
		configs:  configs,
		logs:     NewLogStore(dbtx),
		quota:    quota.NewService(dbtx, logger),
		provider: pc,
		logger:   logger,
	}
}

// Send runs the dispatch protocol: quota check, queued log row, provider
// call, terminal status. A provider failure is recorded on the row and the
// config error counter, then returned alongside the failed row. There is no
// retry; each attempt is its own row.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (Log, error) {
	creds, _, err := d.configs.Credentials(ctx, d.tenantID)
	if err != nil {
		return Log{}, err
	}

	if _, err := d.quota.Validate(ctx); err != nil {
		return Log{}, err
	}

	var templateName *string
	if req.Kind == KindTemplate {
		templateName = &req.TemplateName
	}
	entry, err := d.logs.Insert(ctx, DirectionOutbound, req.To, req.Kind, templateName, StatusQueued)
	if err != nil {
		return Log{}, err
	}

	result, sendErr := d.callProvider(ctx, creds, req)
	if sendErr != nil {
		telemetry.MessagesFailedTotal.WithLabelValues(req.Kind).Inc()
		if err := d.logs.MarkFailed(ctx, entry.ID, sendErr.Error()); err != nil {
			d.logger.Error("marking message failed", "error", err, "log_id", entry.ID)
		}
		if err := d.configs.store.RecordError(ctx, d.tenantID, sendErr.Error()); err != nil {
			d.logger.Error("recording dispatch error", "error", err)
		}
		entry.Status = StatusFailed
		errText := sendErr.Error()
		entry.ErrorText = &errText
		return entry, sendErr
	}

	telemetry.MessagesSentTotal.WithLabelValues(req.Kind).Inc()
	if err := d.logs.MarkSent(ctx, entry.ID, result.MessageID); err != nil {
		d.logger.Error("marking message sent", "error", err, "log_id", entry.ID)
	}
	if err := d.quota.Deduct(ctx); err != nil {
		d.logger.Warn("deducting quota after send", "error", err)
	}
	if err := d.configs.store.ResetErrors(ctx, d.tenantID); err != nil {
		d.logger.Error("resetting config errors", "error", err)
	}

	entry.Status = StatusSent
	entry.ProviderMessageID = &result.MessageID
	return entry, nil
}

func (d *Dispatcher) callProvider(ctx context.Context, creds provider.Credentials, req SendRequest) (provider.SendResult, error) {
	switch req.Kind {
	case KindTemplate:
		return d.provider.SendTemplate(ctx, creds, req.To, req.TemplateName, req.Language, req.Params)
	case KindSession, KindAutoReply:
		if req.MediaURL != "" {
			return d.provider.SendMedia(ctx, creds, req.To, req.MediaKind, req.MediaURL, req.Caption)
		}
		return d.provider.SendText(ctx, creds, req.To, req.Body)
	default:
		return provider.SendResult{}, fmt.Errorf("unknown message kind %q", req.Kind)
	}
}
