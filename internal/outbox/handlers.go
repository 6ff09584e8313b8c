package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/fulfillment-tracker/internal/clients"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// LoggingHandler is a message handler that logs the outbox message. It stands
// in for the Kafka handler when no broker is configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Handling outbox message",
		"messageID", message.ID,
		"eventType", message.EventType,
		"aggregateID", message.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	return nil
}

// Chain runs handlers in order and stops at the first failure. A retried
// message reruns every handler, so each must tolerate redelivery.
type Chain []MessageHandler

// HandleMessage passes message to every handler in the chain
func (c Chain) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	for _, h := range c {
		if err := h.HandleMessage(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// EmailSender delivers a logged email
type EmailSender interface {
	SendEmail(ctx context.Context, email *models.EmailLog) (*clients.MessageResponse, error)
}

// EmailDispatchHandler hands email_logged events to the mail relay. The email
// log row itself is never touched.
type EmailDispatchHandler struct {
	sender EmailSender
	logger logger.Logger
}

// NewEmailDispatchHandler creates a new EmailDispatchHandler
func NewEmailDispatchHandler(sender EmailSender, logger logger.Logger) *EmailDispatchHandler {
	return &EmailDispatchHandler{sender: sender, logger: logger}
}

// HandleMessage decodes the email from the event and sends it
func (h *EmailDispatchHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	if message.EventType != models.EventEmailLogged {
		return nil
	}

	var event models.OutboxMessageEvent

	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	var email models.EmailLog

	if err := event.DecodeData(&email); err != nil {
		return err
	}

	if email.Recipient == "" {
		h.logger.Warn("Skipping email without recipient", "emailID", email.ID, "messageID", message.ID)
		return nil
	}

	resp, err := h.sender.SendEmail(ctx, &email)

	if err != nil {
		return fmt.Errorf("failed to dispatch email %s: %w", email.ID, err)
	}

	relayID := ""
	if resp != nil {
		relayID = resp.MessageID
	}

	h.logger.Info("Email handed to relay",
		"emailID", email.ID,
		"type", email.Type,
		"relayMessageID", relayID)

	return nil
}
