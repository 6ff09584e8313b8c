package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// Event types written to the outbox
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventAlertCreated       = "alert_created"
	EventAlertResolved      = "alert_resolved"
	EventEmailLogged        = "email_logged"
)

// Aggregate types
const (
	AggregateOrder = "order"
	AggregateAlert = "alert"
)

// OutboxMessage represents a message to be published from the outbox table
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope serialized into an outbox payload and onto Kafka
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// DecodeData unmarshals the event data into v
func (e *OutboxMessageEvent) DecodeData(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.EventType, err)
	}
	return nil
}

// OrderStatusChangedData is the data of an order_status_changed event
type OrderStatusChangedData struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	Operation      string      `json:"operation"`
	OldStatus      OrderStatus `json:"old_status"`
	NewStatus      OrderStatus `json:"new_status"`
	ManufacturerID string      `json:"manufacturer_id,omitempty"`
}

// NewOutboxEvent wraps data in an event envelope ready for the outbox table
func NewOutboxEvent(aggregateType, aggregateID, eventType string, data interface{}, now time.Time) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", eventType, err)
	}

	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID(PrefixEvent),
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	return &OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates a new order created event
func NewOrderCreatedEvent(order *Order, now time.Time) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateOrder, order.ID, EventOrderCreated, order, now)
}

// NewOrderStatusChangedEvent creates a new event for an order status change
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus, operation string, now time.Time) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateOrder, order.ID, EventOrderStatusChanged, OrderStatusChangedData{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Operation:      operation,
		OldStatus:      oldStatus,
		NewStatus:      order.Status,
		ManufacturerID: order.ManufacturerRef(),
	}, now)
}

// NewAlertCreatedEvent creates an event announcing a new alert
func NewAlertCreatedEvent(alert *Alert, now time.Time) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateAlert, alert.ID, EventAlertCreated, alert, now)
}

// NewAlertResolvedEvent creates an event announcing an alert resolution
func NewAlertResolvedEvent(alert *Alert, now time.Time) (*OutboxMessage, error) {
	return NewOutboxEvent(AggregateAlert, alert.ID, EventAlertResolved, alert, now)
}

// NewEmailLoggedEvent creates an event asking the relay to deliver an email log
func NewEmailLoggedEvent(email *EmailLog, now time.Time) (*OutboxMessage, error) {
	aggregateID := email.ID
	if email.OrderID != nil {
		aggregateID = *email.OrderID
	}
	return NewOutboxEvent(AggregateOrder, aggregateID, EventEmailLogged, email, now)
}
