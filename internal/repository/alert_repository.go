package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

const (
	alertColumns = `
		id, type, severity, title, message, order_id, manufacturer_id,
		resolved, resolved_at, resolved_by, created_at`

	alertOrder = `
		ORDER BY CASE severity
			WHEN 'CRITICAL' THEN 0
			WHEN 'HIGH' THEN 1
			WHEN 'MEDIUM' THEN 2
			ELSE 3
		END, created_at DESC, id`
)

// AlertRepository handles database operations for alerts
type AlertRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *database.Database, logger logger.Logger) *AlertRepository {
	return &AlertRepository{db: db, logger: logger}
}

func (r *AlertRepository) createInTx(ctx context.Context, tx *sqlx.Tx, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (
			:id, :type, :severity, :title, :message, :order_id, :manufacturer_id,
			:resolved, :resolved_at, :resolved_by, :created_at
		)
	`

	if _, err := tx.NamedExecContext(ctx, query, alert); err != nil {
		r.logger.Error("Failed to create alert", "error", err, "alertID", alert.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an alert by its ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert

	err := r.db.DB.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("alert %s", id))
	}

	return &alert, nil
}

func (r *AlertRepository) getForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Alert, error) {
	var alert models.Alert

	err := tx.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("alert %s", id))
	}

	return &alert, nil
}

// openForOrder returns the unresolved alerts of an order inside tx
func (r *AlertRepository) openForOrder(ctx context.Context, tx *sqlx.Tx, orderID string) ([]*models.Alert, error) {
	alerts := []*models.Alert{}

	err := tx.SelectContext(ctx, &alerts, `SELECT `+alertColumns+` FROM alerts WHERE order_id = $1 AND resolved = FALSE`, orderID)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return alerts, nil
}

func (r *AlertRepository) resolveInTx(ctx context.Context, tx *sqlx.Tx, alert *models.Alert) error {
	query := `
		UPDATE alerts
		SET resolved = $1, resolved_at = $2, resolved_by = $3
		WHERE id = $4
	`

	if _, err := tx.ExecContext(ctx, query, alert.Resolved, alert.ResolvedAt, alert.ResolvedBy, alert.ID); err != nil {
		r.logger.Error("Failed to resolve alert", "error", err, "alertID", alert.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// List retrieves alerts matching filter, most severe and newest first
func (r *AlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	w := alertWhere(filter)
	query := `SELECT ` + alertColumns + ` FROM alerts` + w.String() + alertOrder + w.page(filter.Limit, 0)

	alerts := []*models.Alert{}

	if err := r.db.DB.SelectContext(ctx, &alerts, query, w.args...); err != nil {
		r.logger.Error("Failed to list alerts", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return alerts, nil
}

// Count counts alerts matching filter
func (r *AlertRepository) Count(ctx context.Context, filter models.AlertFilter) (int, error) {
	w := alertWhere(filter)

	var count int

	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts`+w.String(), w.args...); err != nil {
		r.logger.Error("Failed to count alerts", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// HasOpen reports whether an order has an unresolved alert of type t
func (r *AlertRepository) HasOpen(ctx context.Context, orderID string, t models.AlertType) (bool, error) {
	var exists bool

	query := `SELECT EXISTS (SELECT 1 FROM alerts WHERE order_id = $1 AND type = $2 AND resolved = FALSE)`

	if err := r.db.DB.GetContext(ctx, &exists, query, orderID, t); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return exists, nil
}

func alertWhere(f models.AlertFilter) *where {
	w := &where{}

	if f.Resolved != nil {
		w.add("resolved = $%d", *f.Resolved)
	}
	if f.Type != "" {
		w.add("type = $%d", f.Type)
	}
	if f.OrderID != "" {
		w.add("order_id = $%d", f.OrderID)
	}
	if f.ManufacturerID != "" {
		w.add("manufacturer_id = $%d", f.ManufacturerID)
	}

	return w
}
