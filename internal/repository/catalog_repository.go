package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

const (
	manufacturerColumns = `
		id, name, location, contact_name, contact_email, contact_phone, rating, status,
		avg_fulfillment_days, on_time_rate, created_at, updated_at`

	productColumns = `id, name, sku, category, price, manufacturer_id, created_at`
)

// ManufacturerRepository handles database operations for manufacturers
type ManufacturerRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewManufacturerRepository creates a new ManufacturerRepository
func NewManufacturerRepository(db *database.Database, logger logger.Logger) *ManufacturerRepository {
	return &ManufacturerRepository{db: db, logger: logger}
}

// Upsert inserts a manufacturer or refreshes its descriptive columns.
// The cached performance columns are left alone.
func (r *ManufacturerRepository) Upsert(ctx context.Context, m *models.Manufacturer) error {
	query := `
		INSERT INTO manufacturers (` + manufacturerColumns + `)
		VALUES (
			:id, :name, :location, :contact_name, :contact_email, :contact_phone, :rating, :status,
			:avg_fulfillment_days, :on_time_rate, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			contact_name = EXCLUDED.contact_name,
			contact_email = EXCLUDED.contact_email,
			contact_phone = EXCLUDED.contact_phone,
			rating = EXCLUDED.rating,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.DB.NamedExecContext(ctx, query, m); err != nil {
		r.logger.Error("Failed to upsert manufacturer", "error", err, "manufacturerID", m.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves a manufacturer by its ID
func (r *ManufacturerRepository) GetByID(ctx context.Context, id string) (*models.Manufacturer, error) {
	var m models.Manufacturer

	err := r.db.DB.GetContext(ctx, &m, `SELECT `+manufacturerColumns+` FROM manufacturers WHERE id = $1`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("manufacturer %s", id))
	}

	return &m, nil
}

// List retrieves every manufacturer ordered by name
func (r *ManufacturerRepository) List(ctx context.Context) ([]*models.Manufacturer, error) {
	manufacturers := []*models.Manufacturer{}

	err := r.db.DB.SelectContext(ctx, &manufacturers, `SELECT `+manufacturerColumns+` FROM manufacturers ORDER BY name, id`)

	if err != nil {
		r.logger.Error("Failed to list manufacturers", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return manufacturers, nil
}

// UpdatePerformance stores recomputed aggregates on the manufacturer row
func (r *ManufacturerRepository) UpdatePerformance(ctx context.Context, id string, avgFulfillmentDays, onTimeRate float64, at time.Time) error {
	query := `
		UPDATE manufacturers
		SET avg_fulfillment_days = $1, on_time_rate = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.DB.ExecContext(ctx, query, avgFulfillmentDays, onTimeRate, at, id)

	if err != nil {
		r.logger.Error("Failed to update manufacturer performance", "error", err, "manufacturerID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("manufacturer %s not found", id))
	}

	return nil
}

// ProductRepository handles database operations for products
type ProductRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewProductRepository creates a new ProductRepository
func NewProductRepository(db *database.Database, logger logger.Logger) *ProductRepository {
	return &ProductRepository{db: db, logger: logger}
}

// Upsert inserts a product unless one with the same id exists
func (r *ProductRepository) Upsert(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES (:id, :name, :sku, :category, :price, :manufacturer_id, :created_at)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.DB.NamedExecContext(ctx, query, p); err != nil {
		r.logger.Error("Failed to upsert product", "error", err, "productID", p.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetByID retrieves a product by its ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product

	err := r.db.DB.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("product %s", id))
	}

	return &p, nil
}

// List retrieves products, optionally only those of one manufacturer
func (r *ProductRepository) List(ctx context.Context, manufacturerID string) ([]*models.Product, error) {
	w := &where{}
	if manufacturerID != "" {
		w.add("manufacturer_id = $%d", manufacturerID)
	}

	products := []*models.Product{}

	err := r.db.DB.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products`+w.String()+` ORDER BY name, id`, w.args...)

	if err != nil {
		r.logger.Error("Failed to list products", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return products, nil
}
