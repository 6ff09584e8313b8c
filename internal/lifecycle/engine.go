package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// Operation names, used in errors, events and logs
const (
	OpIntake      = "intake"
	OpAssign      = "assign"
	OpNotify      = "notify"
	OpShip        = "ship"
	OpDeliver     = "deliver"
	OpDelay       = "delay"
	OpEscalate    = "escalate"
	OpCancel      = "cancel"
	OpFlagOverdue = "flag_overdue"
	OpFlagDelay   = "flag_delay"
)

// Thresholds configure the age-based alert rules
type Thresholds struct {
	Fulfillment time.Duration
	Delay       time.Duration
}

// DefaultThresholds returns the five day fulfillment and three day delay windows
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fulfillment: 5 * 24 * time.Hour,
		Delay:       3 * 24 * time.Hour,
	}
}

// Change describes a committed transition
type Change struct {
	Operation string
	Order     *models.Order
	OldStatus models.OrderStatus
	Alerts    []*models.Alert
}

// Listener is told about every committed transition. Listeners run synchronously
// after commit and must not block.
type Listener interface {
	OrderChanged(ctx context.Context, change Change)
}

// Engine drives orders through their lifecycle. Every operation is validated,
// stamped and persisted together with its audit, alert, email and outbox records.
type Engine struct {
	store      Store
	clock      clockwork.Clock
	thresholds Thresholds
	logger     logger.Logger

	mu        sync.RWMutex
	listeners []Listener
}

// NewEngine creates a new lifecycle engine
func NewEngine(store Store, clk clockwork.Clock, thresholds Thresholds, logger logger.Logger) *Engine {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Engine{
		store:      store,
		clock:      clk,
		thresholds: thresholds,
		logger:     logger,
	}
}

// AddListener registers l for committed transitions
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = append(e.listeners, l)
}

// Thresholds returns the configured alert thresholds
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// Intake records a new order in RECEIVED
func (e *Engine) Intake(ctx context.Context, in models.OrderInput) (*models.Order, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product, err := e.store.GetProduct(ctx, in.ProductID)

	if err != nil {
		return nil, err
	}

	seq, err := e.store.NextOrderSequence(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to allocate order number: %w", err)
	}

	now := e.clock.Now().UTC()

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	total := product.Price.Mul(decimal.NewFromInt(int64(in.Quantity)))
	if in.TotalPrice != nil {
		total = *in.TotalPrice
	}

	order := &models.Order{
		ID:              models.GenerateID(models.PrefixOrder),
		OrderNumber:     models.FormatOrderNumber(now, seq),
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerEmail:   strings.TrimSpace(in.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(in.CustomerPhone),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		Quantity:        in.Quantity,
		TotalPrice:      total,
		Source:          in.Source,
		Priority:        priority,
		Status:          models.OrderStatusReceived,
		Notes:           in.Notes,
		CreatedAt:       now,
		EstimatedShip:   in.EstimatedShip,
		ProductID:       product.ID,
		Version:         1,
		UpdatedAt:       now,
	}

	event, err := models.NewOrderCreatedEvent(order, now)

	if err != nil {
		return nil, err
	}

	effects := &Effects{
		Activities: []*models.ActivityLog{
			e.activity(ctx, models.ActionOrderCreated, order,
				fmt.Sprintf("Order %s created from %s - %s", order.OrderNumber, order.Source, order.CustomerName), now),
		},
		Events: []*models.OutboxMessage{event},
	}

	if err := e.store.CreateOrder(ctx, order, effects); err != nil {
		return nil, err
	}

	e.logger.Info("Order received", "orderID", order.ID, "orderNumber", order.OrderNumber, "source", order.Source)
	e.publish(ctx, Change{Operation: OpIntake, Order: order.Clone()})

	return order, nil
}

// Assign hands a RECEIVED order to an active manufacturer
func (e *Engine) Assign(ctx context.Context, orderID, manufacturerID string) (*models.Order, error) {
	if strings.TrimSpace(manufacturerID) == "" {
		return nil, models.NewValidationError("manufacturerId is required")
	}

	m, err := e.store.GetManufacturer(ctx, manufacturerID)

	if err != nil {
		return nil, err
	}

	order, _, err := e.apply(ctx, OpAssign, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusReceived {
			return nil, invalid(OpAssign, o.Status, "only received orders can be assigned")
		}

		if !m.IsActive() {
			return nil, invalid(OpAssign, o.Status, fmt.Sprintf("manufacturer %s is inactive", m.Name))
		}

		o.Status = models.OrderStatusAssigned
		o.ManufacturerID = models.StringPtr(m.ID)
		o.AssignedAt = models.TimePtr(at)

		return &Effects{
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderAssigned, o, fmt.Sprintf("Order %s assigned to %s", o.OrderNumber, m.Name), at),
			},
		}, nil
	})

	return order, err
}

// Notify confirms an ASSIGNED order with its manufacturer
func (e *Engine) Notify(ctx context.Context, orderID string) (*models.Order, error) {
	m, err := e.manufacturerOf(ctx, orderID)

	if err != nil {
		return nil, err
	}

	order, _, err := e.apply(ctx, OpNotify, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusAssigned {
			return nil, invalid(OpNotify, o.Status, "only assigned orders can be notified")
		}

		if m == nil {
			return nil, invalid(OpNotify, o.Status, "order has no manufacturer")
		}

		o.Status = models.OrderStatusNotified
		o.NotifiedAt = models.TimePtr(at)

		subject, body := confirmationEmail(o, m)

		return &Effects{
			Emails: []*models.EmailLog{
				newEmail(models.EmailOrderConfirmation, subject, body, m.ContactEmail, o, at),
			},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderNotified, o, fmt.Sprintf("Notification sent to %s for order %s", m.Name, o.OrderNumber), at),
			},
		}, nil
	})

	return order, err
}

// Ship records the hand-off to a carrier
func (e *Engine) Ship(ctx context.Context, orderID, carrier, trackingNumber string) (*models.Order, error) {
	return e.ship(ctx, orderID, "", carrier, trackingNumber)
}

// ShipForManufacturer ships an order on behalf of the manufacturer it is
// assigned to. Orders of other manufacturers are reported as not found.
func (e *Engine) ShipForManufacturer(ctx context.Context, manufacturerID, orderID, carrier, trackingNumber string) (*models.Order, error) {
	if manufacturerID == "" {
		return nil, models.NewValidationError("manufacturerId is required")
	}
	return e.ship(ctx, orderID, manufacturerID, carrier, trackingNumber)
}

func (e *Engine) ship(ctx context.Context, orderID, owner, carrier, trackingNumber string) (*models.Order, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)

	var problems []string
	if carrier == "" {
		problems = append(problems, "carrier is required")
	}
	if trackingNumber == "" {
		problems = append(problems, "trackingNumber is required")
	}
	if len(problems) > 0 {
		return nil, models.NewValidationError(problems...)
	}

	order, _, err := e.apply(ctx, OpShip, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if owner != "" && o.ManufacturerRef() != owner {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found for manufacturer %s", orderID, owner))
		}

		switch o.Status {
		case models.OrderStatusAssigned, models.OrderStatusNotified, models.OrderStatusDelayed:
		default:
			return nil, invalid(OpShip, o.Status, "only assigned, notified or delayed orders can be shipped")
		}

		o.Status = models.OrderStatusShipped
		o.ShippedAt = models.TimePtr(at)
		o.Carrier = carrier
		o.TrackingNumber = trackingNumber

		subject, body := shippingEmail(o)

		return &Effects{
			Emails: []*models.EmailLog{
				newEmail(models.EmailShippingNotification, subject, body, o.CustomerEmail, o, at),
			},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderShipped, o, fmt.Sprintf("Order %s shipped via %s (%s)", o.OrderNumber, carrier, trackingNumber), at),
			},
		}, nil
	})

	return order, err
}

// Deliver confirms receipt of a SHIPPED order
func (e *Engine) Deliver(ctx context.Context, orderID string) (*models.Order, error) {
	order, _, err := e.apply(ctx, OpDeliver, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusShipped {
			return nil, invalid(OpDeliver, o.Status, "only shipped orders can be delivered")
		}

		o.Status = models.OrderStatusDelivered
		o.DeliveredAt = models.TimePtr(at)

		return &Effects{
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderDelivered, o, fmt.Sprintf("Order %s delivered to %s", o.OrderNumber, o.CustomerName), at),
			},
		}, nil
	})

	return order, err
}

// MarkDelayed flags an in-progress order as late, raising its priority,
// opening a DELAY alert and warning the manufacturer
func (e *Engine) MarkDelayed(ctx context.Context, orderID string) (*models.Order, error) {
	m, err := e.manufacturerOf(ctx, orderID)

	if err != nil {
		return nil, err
	}

	order, _, err := e.apply(ctx, OpDelay, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusAssigned && o.Status != models.OrderStatusNotified {
			return nil, invalid(OpDelay, o.Status, "only assigned or notified orders can be delayed")
		}

		severity := e.delaySeverity(o, at)

		o.Status = models.OrderStatusDelayed
		o.Priority = models.PriorityUrgent

		title, message := delayAlertText(o)
		effects := &Effects{
			Alerts: []*models.Alert{newAlert(models.AlertTypeDelay, severity, title, message, o, at)},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderDelayed, o, fmt.Sprintf("Order %s marked as delayed", o.OrderNumber), at),
			},
		}

		if m != nil {
			subject, body := delayEmail(o, m)
			effects.Emails = append(effects.Emails, newEmail(models.EmailDelayAlert, subject, body, m.ContactEmail, o, at))
		}

		return effects, nil
	})

	return order, err
}

// delaySeverity is CRITICAL when the order was already high priority or has
// been with its manufacturer longer than the delay threshold
func (e *Engine) delaySeverity(o *models.Order, at time.Time) models.Severity {
	if o.Priority == models.PriorityHigh || o.Priority == models.PriorityUrgent {
		return models.SeverityCritical
	}

	if o.AssignedAt != nil && at.Sub(*o.AssignedAt) > e.thresholds.Delay {
		return models.SeverityCritical
	}

	return models.SeverityHigh
}

// Escalate raises a CRITICAL alert on a live order without changing its status
func (e *Engine) Escalate(ctx context.Context, orderID string) (*models.Alert, error) {
	_, effects, err := e.apply(ctx, OpEscalate, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status.IsTerminal() {
			return nil, invalid(OpEscalate, o.Status, "order is already closed")
		}

		title, message := escalationAlertText(o)

		return &Effects{
			Alerts: []*models.Alert{newAlert(models.AlertTypeEscalation, models.SeverityCritical, title, message, o, at)},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderEscalated, o, fmt.Sprintf("Escalation alert created for order %s", o.OrderNumber), at),
			},
		}, nil
	})

	if err != nil {
		return nil, err
	}

	return effects.Alerts[0], nil
}

// Cancel closes a live order
func (e *Engine) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	order, _, err := e.apply(ctx, OpCancel, orderID, func(o *models.Order, _ []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status.IsTerminal() {
			return nil, invalid(OpCancel, o.Status, "order is already closed")
		}

		o.Status = models.OrderStatusCancelled

		return &Effects{
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionOrderCancelled, o, fmt.Sprintf("Order %s cancelled", o.OrderNumber), at),
			},
		}, nil
	})

	return order, err
}

// FlagOverdue opens an OVERDUE alert on an order its manufacturer has held past
// the fulfillment threshold and sends a reminder. It returns a nil alert when
// an OVERDUE alert is already open.
func (e *Engine) FlagOverdue(ctx context.Context, orderID string) (*models.Alert, error) {
	m, err := e.manufacturerOf(ctx, orderID)

	if err != nil {
		return nil, err
	}

	_, effects, err := e.apply(ctx, OpFlagOverdue, orderID, func(o *models.Order, open []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusAssigned && o.Status != models.OrderStatusNotified {
			return nil, invalid(OpFlagOverdue, o.Status, "only assigned or notified orders can be overdue")
		}

		waited := waitedSince(o.AssignedAt, at)

		if waited <= e.thresholds.Fulfillment {
			return nil, invalid(OpFlagOverdue, o.Status, "order is within the fulfillment window")
		}

		if hasOpen(open, models.AlertTypeOverdue) {
			return nil, nil
		}

		severity := models.SeverityHigh
		if waited > 2*e.thresholds.Fulfillment {
			severity = models.SeverityCritical
		}

		title, message := overdueAlertText(o)
		effects := &Effects{
			Alerts: []*models.Alert{newAlert(models.AlertTypeOverdue, severity, title, message, o, at)},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionAlertCreated, o, fmt.Sprintf("Overdue alert created for order %s", o.OrderNumber), at),
			},
		}

		if m != nil {
			subject, body := reminderEmail(o, m)
			effects.Emails = append(effects.Emails, newEmail(models.EmailReminder, subject, body, m.ContactEmail, o, at))
		}

		return effects, nil
	})

	if err != nil || effects == nil {
		return nil, err
	}

	return effects.Alerts[0], nil
}

// FlagDelay opens a DELAY alert on a DELAYED order held past the delay
// threshold. It returns a nil alert when a DELAY alert is already open.
func (e *Engine) FlagDelay(ctx context.Context, orderID string) (*models.Alert, error) {
	_, effects, err := e.apply(ctx, OpFlagDelay, orderID, func(o *models.Order, open []*models.Alert, at time.Time) (*Effects, error) {
		if o.Status != models.OrderStatusDelayed {
			return nil, invalid(OpFlagDelay, o.Status, "only delayed orders can be flagged")
		}

		if waitedSince(o.AssignedAt, at) <= e.thresholds.Delay {
			return nil, invalid(OpFlagDelay, o.Status, "order is within the delay window")
		}

		if hasOpen(open, models.AlertTypeDelay) {
			return nil, nil
		}

		title, message := delayAlertText(o)

		return &Effects{
			Alerts: []*models.Alert{newAlert(models.AlertTypeDelay, e.delaySeverity(o, at), title, message, o, at)},
			Activities: []*models.ActivityLog{
				e.activity(ctx, models.ActionAlertCreated, o, fmt.Sprintf("Delay alert created for order %s", o.OrderNumber), at),
			},
		}, nil
	})

	if err != nil || effects == nil {
		return nil, err
	}

	return effects.Alerts[0], nil
}

// step validates and mutates one order and returns the operation's own records
type step func(order *models.Order, openAlerts []*models.Alert, at time.Time) (*Effects, error)

// apply runs fn inside a store transition, adds the outbox events for the
// result and notifies listeners once the transition is committed
func (e *Engine) apply(ctx context.Context, op, orderID string, fn step) (*models.Order, *Effects, error) {
	var (
		oldStatus models.OrderStatus
		applied   *Effects
	)

	order, err := e.store.Transition(ctx, orderID, func(o *models.Order, open []*models.Alert) (*Effects, error) {
		oldStatus = o.Status
		at := e.stamp(o)

		effects, err := fn(o, open, at)

		if err != nil || effects == nil {
			return effects, err
		}

		o.UpdatedAt = at

		if err := appendEvents(op, o, oldStatus, effects, at); err != nil {
			return nil, err
		}

		applied = effects
		return effects, nil
	})

	if err != nil {
		return nil, nil, err
	}

	if applied == nil {
		return order, nil, nil
	}

	e.logger.Info("Order transition applied",
		"operation", op,
		"orderID", order.ID,
		"orderNumber", order.OrderNumber,
		"from", oldStatus,
		"to", order.Status,
		"alerts", len(applied.Alerts))

	e.publish(ctx, Change{Operation: op, Order: order.Clone(), OldStatus: oldStatus, Alerts: applied.Alerts})

	return order, applied, nil
}

func appendEvents(op string, o *models.Order, oldStatus models.OrderStatus, effects *Effects, at time.Time) error {
	if o.Status != oldStatus {
		event, err := models.NewOrderStatusChangedEvent(o, oldStatus, op, at)
		if err != nil {
			return err
		}
		effects.Events = append(effects.Events, event)
	}

	for _, alert := range effects.Alerts {
		event, err := models.NewAlertCreatedEvent(alert, at)
		if err != nil {
			return err
		}
		effects.Events = append(effects.Events, event)
	}

	for _, email := range effects.Emails {
		event, err := models.NewEmailLoggedEvent(email, at)
		if err != nil {
			return err
		}
		effects.Events = append(effects.Events, event)
	}

	return nil
}

// stamp returns now, clamped so lifecycle timestamps never go backwards
func (e *Engine) stamp(o *models.Order) time.Time {
	now := e.clock.Now().UTC()

	if latest := o.LatestStamp(); now.Before(latest) {
		return latest
	}

	return now
}

func (e *Engine) manufacturerOf(ctx context.Context, orderID string) (*models.Manufacturer, error) {
	order, err := e.store.GetOrder(ctx, orderID)

	if err != nil {
		return nil, err
	}

	if order.ManufacturerID == nil {
		return nil, nil
	}

	return e.store.GetManufacturer(ctx, *order.ManufacturerID)
}

func (e *Engine) publish(ctx context.Context, change Change) {
	e.mu.RLock()
	listeners := e.listeners
	e.mu.RUnlock()

	for _, l := range listeners {
		l.OrderChanged(ctx, change)
	}
}

func (e *Engine) activity(ctx context.Context, action models.ActivityAction, o *models.Order, details string, at time.Time) *models.ActivityLog {
	return &models.ActivityLog{
		ID:        models.GenerateID(models.PrefixActivity),
		Action:    action,
		Details:   details,
		OrderID:   models.StringPtr(o.ID),
		UserID:    models.StringPtr(ActorFrom(ctx)),
		CreatedAt: at,
	}
}

func newEmail(t models.EmailType, subject, body, recipient string, o *models.Order, at time.Time) *models.EmailLog {
	return &models.EmailLog{
		ID:             models.GenerateID(models.PrefixEmail),
		Type:           t,
		Subject:        subject,
		Body:           body,
		Recipient:      recipient,
		Status:         models.EmailStatusSent,
		OrderID:        models.StringPtr(o.ID),
		ManufacturerID: models.StringPtr(o.ManufacturerRef()),
		CreatedAt:      at,
	}
}

func newAlert(t models.AlertType, severity models.Severity, title, message string, o *models.Order, at time.Time) *models.Alert {
	return &models.Alert{
		ID:             models.GenerateID(models.PrefixAlert),
		Type:           t,
		Severity:       severity,
		Title:          title,
		Message:        message,
		OrderID:        models.StringPtr(o.ID),
		ManufacturerID: models.StringPtr(o.ManufacturerRef()),
		CreatedAt:      at,
	}
}

func waitedSince(assignedAt *time.Time, at time.Time) time.Duration {
	if assignedAt == nil {
		return 0
	}
	return at.Sub(*assignedAt)
}

func hasOpen(alerts []*models.Alert, t models.AlertType) bool {
	for _, a := range alerts {
		if a.Type == t && !a.Resolved {
			return true
		}
	}
	return false
}
