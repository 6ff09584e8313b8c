// Package handlers holds the Kafka consumers of the orders topic
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// PerformanceRefresher recomputes a manufacturer's cached aggregates
type PerformanceRefresher interface {
	RefreshManufacturer(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, error)
}

// OrderEventsHandler handles order events from Kafka
type OrderEventsHandler struct {
	refresher PerformanceRefresher
	logger    logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(refresher PerformanceRefresher, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		refresher: refresher,
		logger:    logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.OutboxMessageEvent

	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("Failed to unmarshal message", "error", err, "offset", msg.Offset)
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	h.logger.Debug("Handling order event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"aggregateID", event.AggregateID,
		"occurredAt", event.OccurredAt)

	switch event.EventType {
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(ctx, event)
	case models.EventOrderCreated, models.EventAlertCreated, models.EventAlertResolved, models.EventEmailLogged:
		return nil
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType)
		return nil
	}
}

// handleOrderStatusChanged refreshes the scorecard of the order's manufacturer
func (h *OrderEventsHandler) handleOrderStatusChanged(ctx context.Context, event models.OutboxMessageEvent) error {
	var data models.OrderStatusChangedData

	if err := event.DecodeData(&data); err != nil {
		h.logger.Error("Invalid event data format", "eventID", event.EventID, "error", err)
		return err
	}

	if data.ManufacturerID == "" {
		return nil
	}

	perf, err := h.refresher.RefreshManufacturer(ctx, data.ManufacturerID)

	if err != nil {
		return fmt.Errorf("failed to refresh manufacturer %s: %w", data.ManufacturerID, err)
	}

	h.logger.Info("Manufacturer performance refreshed",
		"manufacturerID", data.ManufacturerID,
		"orderID", data.OrderID,
		"newStatus", data.NewStatus,
		"onTimeRate", perf.OnTimeRate)

	return nil
}
