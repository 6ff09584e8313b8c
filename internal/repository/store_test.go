package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

var storeEpoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

var orderRowColumns = []string{
	"id", "order_number", "customer_name", "customer_email", "customer_phone", "shipping_address",
	"quantity", "total_price", "source", "priority", "status", "carrier", "tracking_number", "notes",
	"created_at", "assigned_at", "notified_at", "shipped_at", "delivered_at", "estimated_ship",
	"product_id", "manufacturer_id", "version", "updated_at",
}

var alertRowColumns = []string{
	"id", "type", "severity", "title", "message", "order_id", "manufacturer_id",
	"resolved", "resolved_at", "resolved_by", "created_at",
}

const (
	lockOrderSQL   = `FROM orders WHERE id = \$1 FOR UPDATE`
	openAlertsSQL  = `FROM alerts WHERE order_id = \$1 AND resolved = FALSE`
	updateOrderSQL = `UPDATE orders SET`
	lockAlertSQL   = `FROM alerts WHERE id = \$1 FOR UPDATE`
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(database.NewFromDB(sqlx.NewDb(db, "postgres"), logger.NewNop()), logger.NewNop()), mock
}

func receivedOrderRow(version int) *sqlmock.Rows {
	return sqlmock.NewRows(orderRowColumns).AddRow(
		"ord-1", "FI-2403-0001", "Jordan Avery", "jordan@example.com", "", "400 Market St, Denver, CO",
		200, "850.00", "WEBSITE", "NORMAL", "RECEIVED", "", "", "",
		storeEpoch, nil, nil, nil, nil, nil,
		"prd-oak", nil, version, storeEpoch,
	)
}

func openAlertRow(resolved bool) *sqlmock.Rows {
	return sqlmock.NewRows(alertRowColumns).AddRow(
		"alt-1", "DELAY", "HIGH", "Order delayed", "FI-2403-0001 is running late", "ord-1", "mfr-oak",
		resolved, nil, nil, storeEpoch,
	)
}

// assignTo is the store-side half of an assign: it mutates the order and
// returns the records that must commit with it
func assignTo(manufacturerID string) lifecycle.TransitionFunc {
	return func(o *models.Order, _ []*models.Alert) (*lifecycle.Effects, error) {
		if o.Status != models.OrderStatusReceived {
			return nil, &lifecycle.TransitionError{Operation: lifecycle.OpAssign, Status: o.Status, Reason: "only received orders can be assigned"}
		}

		old := o.Status
		at := storeEpoch.Add(time.Hour)
		o.Status = models.OrderStatusAssigned
		o.ManufacturerID = models.StringPtr(manufacturerID)
		o.AssignedAt = models.TimePtr(at)
		o.UpdatedAt = at

		event, err := models.NewOrderStatusChangedEvent(o, old, lifecycle.OpAssign, at)
		if err != nil {
			return nil, err
		}

		return &lifecycle.Effects{
			Alerts: []*models.Alert{{
				ID:        "alt-2",
				Type:      models.AlertTypeQuality,
				Severity:  models.SeverityLow,
				Title:     "Check finish",
				OrderID:   models.StringPtr(o.ID),
				CreatedAt: at,
			}},
			Activities: []*models.ActivityLog{{
				ID:        "act-1",
				Action:    models.ActionOrderAssigned,
				Details:   "Order FI-2403-0001 assigned",
				OrderID:   models.StringPtr(o.ID),
				CreatedAt: at,
			}},
			Events: []*models.OutboxMessage{event},
		}, nil
	}
}

func TestTransitionCommitsOrderWithEffects(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-1").WillReturnRows(receivedOrderRow(3))
	mock.ExpectQuery(openAlertsSQL).WithArgs("ord-1").WillReturnRows(sqlmock.NewRows(alertRowColumns))
	mock.ExpectExec(updateOrderSQL).
		WithArgs("NORMAL", "ASSIGNED", "", "", sqlmock.AnyArg(), nil, nil, nil, "mfr-oak", 4, sqlmock.AnyArg(), "ord-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alerts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activity_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO outbox_messages`).
		WithArgs(models.AggregateOrder, "ord-1", models.EventOrderStatusChanged, sqlmock.AnyArg(), sqlmock.AnyArg(), models.OutboxStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	var effects *lifecycle.Effects
	assign := assignTo("mfr-oak")
	order, err := store.Transition(context.Background(), "ord-1", func(o *models.Order, open []*models.Alert) (*lifecycle.Effects, error) {
		var err error
		effects, err = assign(o, open)
		return effects, err
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, order.Status)
	assert.Equal(t, 4, order.Version)
	assert.True(t, order.TotalPrice.Equal(decimal.RequireFromString("850")))
	require.Len(t, effects.Events, 1)
	assert.Equal(t, int64(42), effects.Events[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRollsBackFailedPrecondition(t *testing.T) {
	store, mock := newMockStore(t)

	row := sqlmock.NewRows(orderRowColumns).AddRow(
		"ord-1", "FI-2403-0001", "Jordan Avery", "jordan@example.com", "", "400 Market St, Denver, CO",
		200, "850.00", "WEBSITE", "NORMAL", "ASSIGNED", "", "", "",
		storeEpoch, storeEpoch, nil, nil, nil, nil,
		"prd-oak", "mfr-oak", 4, storeEpoch,
	)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-1").WillReturnRows(row)
	mock.ExpectQuery(openAlertsSQL).WithArgs("ord-1").WillReturnRows(sqlmock.NewRows(alertRowColumns))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "ord-1", assignTo("mfr-stone"))

	var transitionErr *lifecycle.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, models.OrderStatusAssigned, transitionErr.Status)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStaleVersionIsConcurrentModification(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-1").WillReturnRows(receivedOrderRow(3))
	mock.ExpectQuery(openAlertsSQL).WithArgs("ord-1").WillReturnRows(sqlmock.NewRows(alertRowColumns))
	mock.ExpectExec(updateOrderSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "ord-1", assignTo("mfr-oak"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentModification))
	assert.Equal(t, 409, apperrors.StatusCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRollsBackWhenAnEffectFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-1").WillReturnRows(receivedOrderRow(3))
	mock.ExpectQuery(openAlertsSQL).WithArgs("ord-1").WillReturnRows(sqlmock.NewRows(alertRowColumns))
	mock.ExpectExec(updateOrderSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO alerts`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "ord-1", assignTo("mfr-oak"))

	assert.True(t, errors.Is(err, ErrDatabase))
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionUnknownOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.Transition(context.Background(), "ord-missing", assignTo("mfr-oak"))

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithoutEffectsSkipsWrites(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrderSQL).WithArgs("ord-1").WillReturnRows(receivedOrderRow(3))
	mock.ExpectQuery(openAlertsSQL).WithArgs("ord-1").WillReturnRows(openAlertRow(false))
	mock.ExpectCommit()

	var seen []*models.Alert
	order, err := store.Transition(context.Background(), "ord-1", func(o *models.Order, open []*models.Alert) (*lifecycle.Effects, error) {
		seen = open
		o.Status = models.OrderStatusCancelled
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReceived, order.Status)
	assert.Equal(t, 3, order.Version)
	require.Len(t, seen, 1)
	assert.Equal(t, "alt-1", seen[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func resolveBy(user string) lifecycle.AlertFunc {
	return func(a *models.Alert) (*lifecycle.Effects, error) {
		if a.Resolved {
			return nil, nil
		}

		at := storeEpoch.Add(2 * time.Hour)
		a.Resolved = true
		a.ResolvedAt = models.TimePtr(at)
		a.ResolvedBy = models.StringPtr(user)

		event, err := models.NewAlertResolvedEvent(a, at)
		if err != nil {
			return nil, err
		}

		return &lifecycle.Effects{
			Activities: []*models.ActivityLog{{ID: "act-2", Action: models.ActionAlertResolved, OrderID: a.OrderID, CreatedAt: at}},
			Events:     []*models.OutboxMessage{event},
		}, nil
	}
}

func TestResolveAlertCommitsWithEffects(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAlertSQL).WithArgs("alt-1").WillReturnRows(openAlertRow(false))
	mock.ExpectExec(`UPDATE alerts`).
		WithArgs(true, sqlmock.AnyArg(), "dana", "alt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activity_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO outbox_messages`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	alert, err := store.ResolveAlert(context.Background(), "alt-1", resolveBy("dana"))

	require.NoError(t, err)
	assert.True(t, alert.Resolved)
	assert.Equal(t, "dana", *alert.ResolvedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlertAlreadyResolvedWritesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAlertSQL).WithArgs("alt-1").WillReturnRows(openAlertRow(true))
	mock.ExpectCommit()

	alert, err := store.ResolveAlert(context.Background(), "alt-1", resolveBy("sam"))

	require.NoError(t, err)
	assert.True(t, alert.Resolved)
	assert.Nil(t, alert.ResolvedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlertRollsBackOnWriteFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAlertSQL).WithArgs("alt-1").WillReturnRows(openAlertRow(false))
	mock.ExpectExec(`UPDATE alerts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO activity_logs`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.ResolveAlert(context.Background(), "alt-1", resolveBy("dana"))

	assert.True(t, errors.Is(err, ErrDatabase))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUnknownAlert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockAlertSQL).WithArgs("alt-missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.ResolveAlert(context.Background(), "alt-missing", resolveBy("dana"))

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
