package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/config"
	"github.com/spec-kit/helpdesk-sla/internal/events"
)

// NotificationService is the best-effort notification sink. Delivery
// transport is out of scope here; sends are logged and forwarded to the
// configured email/webhook stubs.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Send delivers one notification to one user. At-least-once, asynchronous in
// spirit; failures are for the caller to log, never to propagate.
func (n *NotificationService) Send(ctx context.Context, userID, notifType, title, message, ticketID string) error {
	n.logger.Info("notification",
		zap.String("user_id", userID),
		zap.String("type", notifType),
		zap.String("title", title),
		zap.String("ticket_id", ticketID))
	n.sendEmailStub(ctx, userID, title, message)
	n.sendWebhookStub(ctx, userID, notifType, ticketID)
	return nil
}

// RegisterHandlers subscribes to lifecycle events so status changes also
// reach the notification stubs.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleEvent)
	n.dispatcher.Subscribe(events.EventTicketEscalated, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) sendEmailStub(ctx context.Context, userID, title, message string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("user_id", userID),
		zap.String("title", title))
}

func (n *NotificationService) sendWebhookStub(ctx context.Context, userID, notifType, ticketID string) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("user_id", userID),
		zap.String("type", notifType),
		zap.String("ticket_id", ticketID))
}
