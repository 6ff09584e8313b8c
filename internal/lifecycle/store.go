package lifecycle

import (
	"context"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
)

// Effects are the records a transition writes alongside the order
type Effects struct {
	Alerts     []*models.Alert
	Emails     []*models.EmailLog
	Activities []*models.ActivityLog
	Events     []*models.OutboxMessage
}

// TransitionFunc mutates order in place and returns the side-effect records to
// persist with it. openAlerts are the unresolved alerts of the order, read under
// the same lock. A nil Effects with a nil error leaves everything untouched.
type TransitionFunc func(order *models.Order, openAlerts []*models.Alert) (*Effects, error)

// AlertFunc resolves alert in place. A nil Effects with a nil error means the
// alert needed no change.
type AlertFunc func(alert *models.Alert) (*Effects, error)

// Store persists orders and their reference data. Implementations must make
// Transition, CreateOrder and ResolveAlert all-or-nothing.
type Store interface {
	NextOrderSequence(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order *models.Order, effects *Effects) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	CountOrders(ctx context.Context, filter models.OrderFilter) (int, error)
	// Transition loads the order under a lock, applies fn and persists the
	// result with its effects. It returns the stored order.
	Transition(ctx context.Context, orderID string, fn TransitionFunc) (*models.Order, error)

	GetManufacturer(ctx context.Context, id string) (*models.Manufacturer, error)
	ListManufacturers(ctx context.Context) ([]*models.Manufacturer, error)
	UpdateManufacturerPerformance(ctx context.Context, id string, avgFulfillmentDays, onTimeRate float64, at time.Time) error

	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, manufacturerID string) ([]*models.Product, error)

	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error)
	CountAlerts(ctx context.Context, filter models.AlertFilter) (int, error)
	HasOpenAlert(ctx context.Context, orderID string, alertType models.AlertType) (bool, error)
	ResolveAlert(ctx context.Context, id string, fn AlertFunc) (*models.Alert, error)

	ListEmailLogs(ctx context.Context, filter models.EmailFilter) ([]*models.EmailLog, error)
	ListActivityLogs(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityLog, error)
}
