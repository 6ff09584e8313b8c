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
	emailColumns    = `id, type, subject, body, recipient, status, order_id, manufacturer_id, created_at`
	activityColumns = `id, action, details, order_id, user_id, created_at`
)

// AuditRepository handles the append-only email and activity logs
type AuditRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Database, logger logger.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

func (r *AuditRepository) createEmailInTx(ctx context.Context, tx *sqlx.Tx, email *models.EmailLog) error {
	query := `
		INSERT INTO email_logs (` + emailColumns + `)
		VALUES (:id, :type, :subject, :body, :recipient, :status, :order_id, :manufacturer_id, :created_at)
	`

	if _, err := tx.NamedExecContext(ctx, query, email); err != nil {
		r.logger.Error("Failed to create email log", "error", err, "emailID", email.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

func (r *AuditRepository) createActivityInTx(ctx context.Context, tx *sqlx.Tx, activity *models.ActivityLog) error {
	query := `
		INSERT INTO activity_logs (` + activityColumns + `)
		VALUES (:id, :action, :details, :order_id, :user_id, :created_at)
	`

	if _, err := tx.NamedExecContext(ctx, query, activity); err != nil {
		r.logger.Error("Failed to create activity log", "error", err, "activityID", activity.ID)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// ListEmails retrieves email logs newest first
func (r *AuditRepository) ListEmails(ctx context.Context, filter models.EmailFilter) ([]*models.EmailLog, error) {
	w := &where{}
	if filter.Type != "" {
		w.add("type = $%d", filter.Type)
	}
	if filter.OrderID != "" {
		w.add("order_id = $%d", filter.OrderID)
	}
	if filter.ManufacturerID != "" {
		w.add("manufacturer_id = $%d", filter.ManufacturerID)
	}

	query := `SELECT ` + emailColumns + ` FROM email_logs` + w.String() + ` ORDER BY created_at DESC, id DESC` + w.page(filter.Limit, 0)

	emails := []*models.EmailLog{}

	if err := r.db.DB.SelectContext(ctx, &emails, query, w.args...); err != nil {
		r.logger.Error("Failed to list email logs", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return emails, nil
}

// ListActivities retrieves activity logs newest first
func (r *AuditRepository) ListActivities(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityLog, error) {
	w := &where{}
	if filter.OrderID != "" {
		w.add("order_id = $%d", filter.OrderID)
	}
	if filter.Action != "" {
		w.add("action = $%d", filter.Action)
	}

	query := `SELECT ` + activityColumns + ` FROM activity_logs` + w.String() + ` ORDER BY created_at DESC, id DESC` + w.page(filter.Limit, 0)

	activities := []*models.ActivityLog{}

	if err := r.db.DB.SelectContext(ctx, &activities, query, w.args...); err != nil {
		r.logger.Error("Failed to list activity logs", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return activities, nil
}
