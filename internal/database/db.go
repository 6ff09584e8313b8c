package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/vaidashi/fulfillment-tracker/internal/config"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection
func New(cfg *config.Config, logger logger.Logger) (*Database, error) {
	db, err := sqlx.Connect("postgres", cfg.GetDBConnString())

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// NewFromDB wraps an already opened handle
func NewFromDB(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// BeginTx starts a transaction
func (d *Database) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := d.DB.BeginTxx(ctx, nil)

	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return tx, nil
}

// RunMigrations creates the schema when it does not exist yet
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS manufacturers (
	id VARCHAR(50) PRIMARY KEY,
	name VARCHAR(200) NOT NULL,
	location VARCHAR(200) NOT NULL DEFAULT '',
	contact_name VARCHAR(200) NOT NULL DEFAULT '',
	contact_email VARCHAR(200) NOT NULL,
	contact_phone VARCHAR(50) NOT NULL DEFAULT '',
	rating VARCHAR(20) NOT NULL DEFAULT 'GOOD',
	status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
	avg_fulfillment_days DOUBLE PRECISION NOT NULL DEFAULT 0,
	on_time_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS products (
	id VARCHAR(50) PRIMARY KEY,
	name VARCHAR(200) NOT NULL,
	sku VARCHAR(100) NOT NULL UNIQUE,
	category VARCHAR(20) NOT NULL,
	price DECIMAL(12, 2) NOT NULL,
	manufacturer_id VARCHAR(50) NOT NULL REFERENCES manufacturers(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE SEQUENCE IF NOT EXISTS order_number_seq;

CREATE TABLE IF NOT EXISTS orders (
	id VARCHAR(50) PRIMARY KEY,
	order_number VARCHAR(30) NOT NULL UNIQUE,
	customer_name VARCHAR(200) NOT NULL,
	customer_email VARCHAR(200) NOT NULL,
	customer_phone VARCHAR(50) NOT NULL DEFAULT '',
	shipping_address TEXT NOT NULL,
	quantity INT NOT NULL CHECK (quantity > 0),
	total_price DECIMAL(12, 2) NOT NULL,
	source VARCHAR(20) NOT NULL,
	priority VARCHAR(20) NOT NULL,
	status VARCHAR(20) NOT NULL,
	carrier VARCHAR(100) NOT NULL DEFAULT '',
	tracking_number VARCHAR(100) NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	assigned_at TIMESTAMPTZ,
	notified_at TIMESTAMPTZ,
	shipped_at TIMESTAMPTZ,
	delivered_at TIMESTAMPTZ,
	estimated_ship TIMESTAMPTZ,
	product_id VARCHAR(50) NOT NULL REFERENCES products(id),
	manufacturer_id VARCHAR(50) REFERENCES manufacturers(id),
	version INT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_manufacturer_id ON orders(manufacturer_id);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);

CREATE TABLE IF NOT EXISTS alerts (
	id VARCHAR(50) PRIMARY KEY,
	type VARCHAR(20) NOT NULL,
	severity VARCHAR(20) NOT NULL,
	title VARCHAR(300) NOT NULL,
	message TEXT NOT NULL,
	order_id VARCHAR(50) REFERENCES orders(id),
	manufacturer_id VARCHAR(50) REFERENCES manufacturers(id),
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	resolved_at TIMESTAMPTZ,
	resolved_by VARCHAR(100),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_open ON alerts(resolved, type);
CREATE INDEX IF NOT EXISTS idx_alerts_order_id ON alerts(order_id);

CREATE TABLE IF NOT EXISTS email_logs (
	id VARCHAR(50) PRIMARY KEY,
	type VARCHAR(30) NOT NULL,
	subject VARCHAR(300) NOT NULL,
	body TEXT NOT NULL,
	recipient VARCHAR(200) NOT NULL,
	status VARCHAR(20) NOT NULL,
	order_id VARCHAR(50) REFERENCES orders(id),
	manufacturer_id VARCHAR(50) REFERENCES manufacturers(id),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_logs_order_id ON email_logs(order_id);

CREATE TABLE IF NOT EXISTS activity_logs (
	id VARCHAR(50) PRIMARY KEY,
	action VARCHAR(30) NOT NULL,
	details TEXT NOT NULL,
	order_id VARCHAR(50) REFERENCES orders(id),
	user_id VARCHAR(100),
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_logs_order_id ON activity_logs(order_id);

-- Outbox table for message publishing
CREATE TABLE IF NOT EXISTS outbox_messages (
	id SERIAL PRIMARY KEY,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at TIMESTAMPTZ,
	processing_attempts INT NOT NULL DEFAULT 0,
	last_error TEXT,
	status VARCHAR(20) NOT NULL DEFAULT 'pending'
);

CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);

CREATE TABLE IF NOT EXISTS dead_letter_messages (
	id SERIAL PRIMARY KEY,
	original_message_id INT NOT NULL,
	aggregate_type VARCHAR(50) NOT NULL,
	aggregate_id VARCHAR(50) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	payload JSONB NOT NULL,
	error_message TEXT NOT NULL,
	failure_reason TEXT NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMPTZ,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_dead_letter_status ON dead_letter_messages(status);
`
