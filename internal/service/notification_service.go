package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	mailer     notify.Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil mailer keeps email delivery as a logged stub.
func NewNotificationService(dispatcher events.Dispatcher, users repository.UserRepository, mailer notify.Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		users:      users,
		mailer:     mailer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.handleTicketUpdated)
	n.dispatcher.Subscribe(events.EventTicketCommented, n.handleTicketCommented)
	n.dispatcher.Subscribe(events.EventTicketAbandoned, n.handleTicketAbandoned)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", eventFields(event)...)
	recipients := []string{event.RequesterID}
	if event.AssigneeID != nil {
		recipients = append(recipients, *event.AssigneeID)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return n.sendEmail(ctx, event, recipients,
		fmt.Sprintf("Ticket #%d opened", event.SequentialID),
		fmt.Sprintf("Ticket #%d was opened.", event.SequentialID))
}

func (n *NotificationService) handleTicketUpdated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketUpdated", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)

	payload, ok := event.Payload.(events.TicketUpdatedPayload)
	if !ok {
		return nil
	}
	if _, reassigned := payload.Details["assignee_new"]; !reassigned || payload.AssigneeID == nil {
		return nil
	}
	return n.sendEmail(ctx, event, []string{*payload.AssigneeID},
		fmt.Sprintf("Ticket #%d assigned to you", event.SequentialID),
		fmt.Sprintf("Ticket #%d is now assigned to you.\nStatus: %s", event.SequentialID, payload.Status))
}

func (n *NotificationService) handleTicketCommented(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCommented", eventFields(event)...)
	payload, ok := event.Payload.(events.TicketCommentedPayload)
	if !ok || !payload.Public {
		return nil
	}
	return n.sendEmail(ctx, event, []string{event.RequesterID},
		fmt.Sprintf("New reply on ticket #%d", event.SequentialID),
		payload.BodyPreview)
}

func (n *NotificationService) handleTicketAbandoned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAbandoned", eventFields(event)...)
	n.sendWebhookNotificationStub(ctx, event)
	body := fmt.Sprintf("Ticket #%d was closed as abandoned.", event.SequentialID)
	if payload, ok := event.Payload.(events.TicketAbandonedPayload); ok && payload.Justification != "" {
		body += "\nReason: " + payload.Justification
	}
	return n.sendEmail(ctx, event, []string{event.RequesterID},
		fmt.Sprintf("Ticket #%d abandoned", event.SequentialID), body)
}

func eventFields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("ticket_id", event.TicketID),
		zap.Int64("sequential_id", event.SequentialID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload),
	}
}

// sendEmail mails every recipient except the actor who caused the event.
func (n *NotificationService) sendEmail(ctx context.Context, event events.Event, userIDs []string, subject, body string) error {
	if n.mailer == nil {
		n.sendEmailNotificationStub(ctx, event)
		return nil
	}

	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" && id != event.ActorID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || n.users == nil {
		return nil
	}

	users, err := n.users.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve notification recipients: %w", err)
	}
	to := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			to = append(to, u.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}

	return n.mailer.Send(ctx, notify.Message{To: to, Subject: subject, Body: body})
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
