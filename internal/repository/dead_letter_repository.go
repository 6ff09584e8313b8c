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

const deadLetterColumns = `
	id, original_message_id, aggregate_type, aggregate_id, event_type, payload,
	error_message, failure_reason, retry_count, last_retry_at, status, created_at, resolved_at`

// DeadLetterRepository handles database operations related to dead letter messages
type DeadLetterRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewDeadLetterRepository creates a new DeadLetterRepository
func NewDeadLetterRepository(db *database.Database, logger logger.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new dead letter message
func (r *DeadLetterRepository) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	query := `
		INSERT INTO dead_letter_messages (
			original_message_id, aggregate_type, aggregate_id, event_type, payload,
			error_message, failure_reason, retry_count, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		) RETURNING id
	`

	var id int64

	err := r.db.DB.QueryRowContext(
		ctx,
		query,
		message.OriginalMessageID,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.ErrorMessage,
		message.FailureReason,
		message.RetryCount,
		message.Status,
		message.CreatedAt,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create dead letter message", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending dead letter messages, oldest first
func (r *DeadLetterRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return r.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

// List retrieves dead letter messages, optionally of one status, oldest first
func (r *DeadLetterRepository) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	w := &where{}
	if status != "" {
		w.add("status = $%d", string(status))
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letter_messages` + w.String() + ` ORDER BY created_at ASC, id ASC`
	query += w.page(limit, offset)

	var messages []*models.DeadLetterMessage

	if err := r.db.DB.SelectContext(ctx, &messages, query, w.args...); err != nil {
		r.logger.Error("Failed to list dead letter messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// Count counts dead letter messages, optionally of one status
func (r *DeadLetterRepository) Count(ctx context.Context, status models.DeadLetterStatus) (int, error) {
	w := &where{}
	if status != "" {
		w.add("status = $%d", string(status))
	}

	var count int

	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM dead_letter_messages`+w.String(), w.args...); err != nil {
		r.logger.Error("Failed to count dead letter messages", "error", err)
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return count, nil
}

// MarkAsRetrying marks a message as being retried
func (r *DeadLetterRepository) MarkAsRetrying(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET
			status = $1,
			retry_count = retry_count + 1,
			last_retry_at = $2
		WHERE
			id = $3
	`

	return r.exec(ctx, "retrying", id, query, string(models.DeadLetterStatusRetrying), time.Now().UTC(), id)
}

// MarkAsResolved marks a message as resolved
func (r *DeadLetterRepository) MarkAsResolved(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET
			status = $1,
			resolved_at = $2
		WHERE
			id = $3
	`

	return r.exec(ctx, "resolved", id, query, string(models.DeadLetterStatusResolved), time.Now().UTC(), id)
}

// MarkAsDiscarded marks a message as permanently discarded
func (r *DeadLetterRepository) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE dead_letter_messages
		SET
			status = $1,
			failure_reason = CONCAT(failure_reason, ' | Discarded: ', $2::text),
			resolved_at = $3
		WHERE
			id = $4
	`

	return r.exec(ctx, "discarded", id, query, string(models.DeadLetterStatusDiscarded), reason, time.Now().UTC(), id)
}

// ResetToPending moves a retrying message back to pending
func (r *DeadLetterRepository) ResetToPending(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_messages
		SET
			status = $1
		WHERE
			id = $2 AND status = $3
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		query,
		string(models.DeadLetterStatusPending),
		id,
		string(models.DeadLetterStatusRetrying),
	)

	if err != nil {
		r.logger.Error("Failed to reset dead letter message to pending", "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// GetMessage retrieves a message by ID
func (r *DeadLetterRepository) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	var message models.DeadLetterMessage

	err := r.db.DB.GetContext(ctx, &message, `SELECT `+deadLetterColumns+` FROM dead_letter_messages WHERE id = $1`, id)

	if err != nil {
		return nil, notFound(err, fmt.Sprintf("dead letter message %d", id))
	}

	return &message, nil
}

func (r *DeadLetterRepository) exec(ctx context.Context, state string, id int64, query string, args ...interface{}) error {
	result, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to mark dead letter message as "+state, "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id))
	}

	return nil
}
