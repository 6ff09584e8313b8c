package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

const orderColumns = `
	id, order_number, customer_name, customer_email, customer_phone, shipping_address,
	quantity, total_price, source, priority, status, carrier, tracking_number, notes,
	created_at, assigned_at, notified_at, shipped_at, delivered_at, estimated_ship,
	product_id, manufacturer_id, version, updated_at`

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// NextSequence draws the next order number sequence value
func (r *OrderRepository) NextSequence(ctx context.Context) (int64, error) {
	var seq int64

	if err := r.db.DB.GetContext(ctx, &seq, `SELECT nextval('order_number_seq')`); err != nil {
		r.logger.Error("Failed to draw order number", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return seq, nil
}

// createInTx inserts a new order
func (r *OrderRepository) createInTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (
			:id, :order_number, :customer_name, :customer_email, :customer_phone, :shipping_address,
			:quantity, :total_price, :source, :priority, :status, :carrier, :tracking_number, :notes,
			:created_at, :assigned_at, :notified_at, :shipped_at, :delivered_at, :estimated_ship,
			:product_id, :manufacturer_id, :version, :updated_at
		)
	`

	if _, err := tx.NamedExecContext(ctx, query, order); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewConflictError(fmt.Sprintf("order %s already exists", order.OrderNumber))
		}
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order

	err := r.db.DB.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("order %s", id))
	}

	return &order, nil
}

// getForUpdate loads an order and locks its row until tx ends
func (r *OrderRepository) getForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Order, error) {
	var order models.Order

	err := tx.GetContext(ctx, &order, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("order %s", id))
	}

	return &order, nil
}

// updateInTx writes every mutable column, guarded by the version the order was read at
func (r *OrderRepository) updateInTx(ctx context.Context, tx *sqlx.Tx, order *models.Order, readVersion int) error {
	query := `
		UPDATE orders SET
			priority = $1, status = $2, carrier = $3, tracking_number = $4,
			assigned_at = $5, notified_at = $6, shipped_at = $7, delivered_at = $8,
			manufacturer_id = $9, version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	result, err := tx.ExecContext(
		ctx,
		query,
		order.Priority,
		order.Status,
		order.Carrier,
		order.TrackingNumber,
		order.AssignedAt,
		order.NotifiedAt,
		order.ShippedAt,
		order.DeliveredAt,
		order.ManufacturerID,
		order.Version,
		order.UpdatedAt,
		order.ID,
		readVersion,
	)

	if err != nil {
		r.logger.Error("Failed to update order", "error", err, "orderID", order.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return apperrors.NewConcurrentModificationError(fmt.Sprintf("order %s was modified concurrently", order.ID))
	}

	return nil
}

// List retrieves the orders matching filter
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	w := orderWhere(filter)
	query := `SELECT ` + orderColumns + ` FROM orders` + w.String() + orderBy(filter.Sort)
	query += w.page(filter.Limit, filter.Offset)

	orders := []*models.Order{}

	if err := r.db.DB.SelectContext(ctx, &orders, query, w.args...); err != nil {
		r.logger.Error("Failed to list orders", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return orders, nil
}

// Count counts the orders matching filter, ignoring paging
func (r *OrderRepository) Count(ctx context.Context, filter models.OrderFilter) (int, error) {
	w := orderWhere(filter)

	var count int

	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM orders`+w.String(), w.args...); err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

func orderWhere(f models.OrderFilter) *where {
	w := &where{}

	if len(f.Statuses) > 0 {
		w.add("status = ANY($%d)", pq.Array(stringsOf(f.Statuses)))
	}
	if f.Source != "" {
		w.add("source = $%d", f.Source)
	}
	if f.ManufacturerID != "" {
		w.add("manufacturer_id = $%d", f.ManufacturerID)
	}
	if f.CreatedFrom != nil {
		w.add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		w.add("created_at < $%d", *f.CreatedTo)
	}
	if f.DeliveredFrom != nil {
		w.add("delivered_at >= $%d", *f.DeliveredFrom)
	}
	if f.DeliveredTo != nil {
		w.add("delivered_at < $%d", *f.DeliveredTo)
	}
	if f.ShippedOnly {
		w.raw("shipped_at IS NOT NULL AND assigned_at IS NOT NULL")
	}

	return w
}

func orderBy(sort models.OrderSort) string {
	switch sort {
	case models.SortAssignedAsc:
		return " ORDER BY assigned_at ASC NULLS LAST, id"
	case models.SortShippedDesc:
		return " ORDER BY shipped_at DESC NULLS LAST, id"
	default:
		return " ORDER BY created_at DESC, id"
	}
}
