package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// Store is the PostgreSQL implementation of lifecycle.Store. Every write
// that touches an order or alert commits its effects in the same transaction.
type Store struct {
	db            *database.Database
	orders        *OrderRepository
	manufacturers *ManufacturerRepository
	products      *ProductRepository
	alerts        *AlertRepository
	audit         *AuditRepository
	outbox        *OutboxRepository
	deadLetters   *DeadLetterRepository
	logger        logger.Logger
}

var _ lifecycle.Store = (*Store)(nil)

// NewStore creates a Store over db
func NewStore(db *database.Database, logger logger.Logger) *Store {
	return &Store{
		db:            db,
		orders:        NewOrderRepository(db, logger),
		manufacturers: NewManufacturerRepository(db, logger),
		products:      NewProductRepository(db, logger),
		alerts:        NewAlertRepository(db, logger),
		audit:         NewAuditRepository(db, logger),
		outbox:        NewOutboxRepository(db, logger),
		deadLetters:   NewDeadLetterRepository(db, logger),
		logger:        logger,
	}
}

// Outbox returns the outbox repository
func (s *Store) Outbox() *OutboxRepository { return s.outbox }

// DeadLetters returns the dead letter repository
func (s *Store) DeadLetters() *DeadLetterRepository { return s.deadLetters }

// Manufacturers returns the manufacturer repository
func (s *Store) Manufacturers() *ManufacturerRepository { return s.manufacturers }

// Products returns the product repository
func (s *Store) Products() *ProductRepository { return s.products }

// inTx runs fn inside a transaction, rolling back when fn or the commit fails
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrDatabase, err)
	}

	return nil
}

func (s *Store) applyEffects(ctx context.Context, tx *sqlx.Tx, effects *lifecycle.Effects) error {
	for _, alert := range effects.Alerts {
		if err := s.alerts.createInTx(ctx, tx, alert); err != nil {
			return err
		}
	}

	for _, email := range effects.Emails {
		if err := s.audit.createEmailInTx(ctx, tx, email); err != nil {
			return err
		}
	}

	for _, activity := range effects.Activities {
		if err := s.audit.createActivityInTx(ctx, tx, activity); err != nil {
			return err
		}
	}

	for _, msg := range effects.Events {
		if err := s.outbox.createInTx(ctx, tx, msg); err != nil {
			return err
		}
	}

	return nil
}

// NextOrderSequence draws the next value of the order number sequence
func (s *Store) NextOrderSequence(ctx context.Context) (int64, error) {
	return s.orders.NextSequence(ctx)
}

// CreateOrder inserts an order and its effects in a single transaction
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, effects *lifecycle.Effects) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.orders.createInTx(ctx, tx, order); err != nil {
			return err
		}

		if effects == nil {
			return nil
		}

		return s.applyEffects(ctx, tx, effects)
	})
}

// GetOrder retrieves an order by its ID
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListOrders retrieves orders matching filter
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	return s.orders.List(ctx, filter)
}

// CountOrders counts orders matching filter
func (s *Store) CountOrders(ctx context.Context, filter models.OrderFilter) (int, error) {
	return s.orders.Count(ctx, filter)
}

// Transition locks the order row, applies fn and writes the order with its
// effects. A stale version fails with a concurrent modification error.
func (s *Store) Transition(ctx context.Context, orderID string, fn lifecycle.TransitionFunc) (*models.Order, error) {
	var result *models.Order

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.orders.getForUpdate(ctx, tx, orderID)

		if err != nil {
			return err
		}

		open, err := s.alerts.openForOrder(ctx, tx, orderID)

		if err != nil {
			return err
		}

		readVersion := order.Version
		working := order.Clone()

		effects, err := fn(working, open)

		if err != nil {
			return err
		}

		if effects == nil {
			result = order
			return nil
		}

		working.Version = readVersion + 1

		if err := s.orders.updateInTx(ctx, tx, working, readVersion); err != nil {
			return err
		}

		if err := s.applyEffects(ctx, tx, effects); err != nil {
			return err
		}

		result = working
		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetManufacturer retrieves a manufacturer by its ID
func (s *Store) GetManufacturer(ctx context.Context, id string) (*models.Manufacturer, error) {
	return s.manufacturers.GetByID(ctx, id)
}

// ListManufacturers retrieves all manufacturers
func (s *Store) ListManufacturers(ctx context.Context) ([]*models.Manufacturer, error) {
	return s.manufacturers.List(ctx)
}

// UpdateManufacturerPerformance stores a recomputed scorecard
func (s *Store) UpdateManufacturerPerformance(ctx context.Context, id string, avgFulfillmentDays, onTimeRate float64, at time.Time) error {
	return s.manufacturers.UpdatePerformance(ctx, id, avgFulfillmentDays, onTimeRate, at)
}

// GetProduct retrieves a product by its ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.products.GetByID(ctx, id)
}

// ListProducts retrieves products, optionally for one manufacturer
func (s *Store) ListProducts(ctx context.Context, manufacturerID string) ([]*models.Product, error) {
	return s.products.List(ctx, manufacturerID)
}

// GetAlert retrieves an alert by its ID
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

// ListAlerts retrieves alerts matching filter
func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	return s.alerts.List(ctx, filter)
}

// CountAlerts counts alerts matching filter
func (s *Store) CountAlerts(ctx context.Context, filter models.AlertFilter) (int, error) {
	return s.alerts.Count(ctx, filter)
}

// HasOpenAlert reports whether an unresolved alert of alertType exists for the order
func (s *Store) HasOpenAlert(ctx context.Context, orderID string, alertType models.AlertType) (bool, error) {
	return s.alerts.HasOpen(ctx, orderID, alertType)
}

// ResolveAlert locks the alert row, applies fn and writes the result with its effects
func (s *Store) ResolveAlert(ctx context.Context, id string, fn lifecycle.AlertFunc) (*models.Alert, error) {
	var result *models.Alert

	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		alert, err := s.alerts.getForUpdate(ctx, tx, id)

		if err != nil {
			return err
		}

		working := alert.Clone()
		effects, err := fn(working)

		if err != nil {
			return err
		}

		if effects == nil {
			result = alert
			return nil
		}

		if err := s.alerts.resolveInTx(ctx, tx, working); err != nil {
			return err
		}

		if err := s.applyEffects(ctx, tx, effects); err != nil {
			return err
		}

		result = working
		return nil
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListEmailLogs retrieves email logs matching filter
func (s *Store) ListEmailLogs(ctx context.Context, filter models.EmailFilter) ([]*models.EmailLog, error) {
	return s.audit.ListEmails(ctx, filter)
}

// ListActivityLogs retrieves activity logs matching filter
func (s *Store) ListActivityLogs(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityLog, error) {
	return s.audit.ListActivities(ctx, filter)
}
