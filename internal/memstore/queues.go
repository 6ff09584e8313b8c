package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// OutboxQueue holds outbox messages in insertion order
type OutboxQueue struct {
	mu       sync.Mutex
	nextID   int64
	messages []*models.OutboxMessage
}

func (q *OutboxQueue) append(msg *models.OutboxMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	msg.ID = q.nextID

	c := *msg
	q.messages = append(q.messages, &c)
}

// Messages returns a snapshot of every message
func (q *OutboxQueue) Messages() []*models.OutboxMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*models.OutboxMessage, len(q.messages))
	for i, m := range q.messages {
		c := *m
		out[i] = &c
	}
	return out
}

func (q *OutboxQueue) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.OutboxMessage
	for _, m := range q.messages {
		if m.Status != models.OutboxStatusPending {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (q *OutboxQueue) MarkAsProcessing(ctx context.Context, id int64) error {
	return q.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

func (q *OutboxQueue) MarkAsCompleted(ctx context.Context, id int64) error {
	return q.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = models.TimePtr(time.Now().UTC())
	})
}

func (q *OutboxQueue) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return q.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

func (q *OutboxQueue) ResetToPending(ctx context.Context, id int64, errorMessage string) error {
	return q.update(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

func (q *OutboxQueue) update(id int64, fn func(*models.OutboxMessage)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("outbox message %d not found", id))
}

// DeadLetterQueue holds dead letter messages in insertion order
type DeadLetterQueue struct {
	mu       sync.Mutex
	nextID   int64
	messages []*models.DeadLetterMessage
}

func (q *DeadLetterQueue) Create(ctx context.Context, message *models.DeadLetterMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	message.ID = q.nextID

	c := *message
	q.messages = append(q.messages, &c)
	return nil
}

func (q *DeadLetterQueue) GetPendingMessages(ctx context.Context, limit int) ([]*models.DeadLetterMessage, error) {
	return q.List(ctx, models.DeadLetterStatusPending, limit, 0)
}

func (q *DeadLetterQueue) List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*models.DeadLetterMessage
	for _, m := range q.messages {
		if status == "" || m.Status == status {
			c := *m
			out = append(out, &c)
		}
	}
	return page(out, limit, offset), nil
}

func (q *DeadLetterQueue) Count(ctx context.Context, status models.DeadLetterStatus) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, m := range q.messages {
		if status == "" || m.Status == status {
			n++
		}
	}
	return n, nil
}

func (q *DeadLetterQueue) GetMessage(ctx context.Context, id int64) (*models.DeadLetterMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.ID == id {
			c := *m
			return &c, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id))
}

func (q *DeadLetterQueue) MarkAsRetrying(ctx context.Context, id int64) error {
	return q.update(id, func(m *models.DeadLetterMessage) {
		m.Status = models.DeadLetterStatusRetrying
		m.RetryCount++
		m.LastRetryAt = models.TimePtr(time.Now().UTC())
	})
}

func (q *DeadLetterQueue) MarkAsResolved(ctx context.Context, id int64) error {
	return q.update(id, func(m *models.DeadLetterMessage) {
		m.Status = models.DeadLetterStatusResolved
		m.ResolvedAt = models.TimePtr(time.Now().UTC())
	})
}

func (q *DeadLetterQueue) MarkAsDiscarded(ctx context.Context, id int64, reason string) error {
	return q.update(id, func(m *models.DeadLetterMessage) {
		m.Status = models.DeadLetterStatusDiscarded
		m.FailureReason = m.FailureReason + " | Discarded: " + reason
		m.ResolvedAt = models.TimePtr(time.Now().UTC())
	})
}

func (q *DeadLetterQueue) ResetToPending(ctx context.Context, id int64) error {
	return q.update(id, func(m *models.DeadLetterMessage) {
		if m.Status == models.DeadLetterStatusRetrying {
			m.Status = models.DeadLetterStatusPending
		}
	})
}

func (q *DeadLetterQueue) update(id int64, fn func(*models.DeadLetterMessage)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, m := range q.messages {
		if m.ID == id {
			fn(m)
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("dead letter message %d not found", id))
}
