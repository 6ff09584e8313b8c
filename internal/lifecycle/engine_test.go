package lifecycle_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/fulfillment-tracker/internal/fixtures"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/memstore"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

type recorder struct {
	mu      sync.Mutex
	changes []lifecycle.Change
}

func (r *recorder) OrderChanged(_ context.Context, c lifecycle.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]string, len(r.changes))
	for i, c := range r.changes {
		ops[i] = c.Operation
	}
	return ops
}

type harness struct {
	engine  *lifecycle.Engine
	store   *memstore.Store
	clock   clockwork.FakeClock
	catalog fixtures.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memstore.New()
	clk := clockwork.NewFakeClockAt(fixtures.Epoch)

	return &harness{
		engine:  lifecycle.NewEngine(store, clk, lifecycle.DefaultThresholds(), logger.NewNop()),
		store:   store,
		clock:   clk,
		catalog: fixtures.Seed(store),
	}
}

func (h *harness) intake(t *testing.T) *models.Order {
	t.Helper()

	order, err := h.engine.Intake(context.Background(), fixtures.OrderInput(h.catalog.Product.ID))
	require.NoError(t, err)
	return order
}

func (h *harness) assigned(t *testing.T) *models.Order {
	t.Helper()

	order := h.intake(t)
	order, err := h.engine.Assign(context.Background(), order.ID, h.catalog.Active.ID)
	require.NoError(t, err)
	return order
}

func (h *harness) activities(t *testing.T, orderID string) []*models.ActivityLog {
	t.Helper()

	acts, err := h.store.ListActivityLogs(context.Background(), models.ActivityFilter{OrderID: orderID})
	require.NoError(t, err)
	return acts
}

func (h *harness) alerts(t *testing.T, orderID string) []*models.Alert {
	t.Helper()

	alerts, err := h.store.ListAlerts(context.Background(), models.AlertFilter{OrderID: orderID})
	require.NoError(t, err)
	return alerts
}

func TestIntakeDefaults(t *testing.T) {
	h := newHarness(t)

	order := h.intake(t)

	assert.Equal(t, models.OrderStatusReceived, order.Status)
	assert.Equal(t, models.PriorityNormal, order.Priority)
	assert.Equal(t, "FI-2403-0001", order.OrderNumber)
	assert.Equal(t, "850", order.TotalPrice.String())
	assert.True(t, order.CreatedAt.Equal(fixtures.Epoch))
	assert.Nil(t, order.ManufacturerID)

	acts := h.activities(t, order.ID)
	require.Len(t, acts, 1)
	assert.Equal(t, models.ActionOrderCreated, acts[0].Action)
	assert.Equal(t, "Order FI-2403-0001 created from WEBSITE - Jordan Avery", acts[0].Details)

	msgs := h.store.Outbox().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.EventOrderCreated, msgs[0].EventType)
}

func TestIntakeRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	in := fixtures.OrderInput(h.catalog.Product.ID)
	in.Quantity = 0
	_, err := h.engine.Intake(context.Background(), in)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.engine.Intake(context.Background(), fixtures.OrderInput("prd-missing"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	n, err := h.store.CountOrders(context.Background(), models.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHappyPathToDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := fixtures.OrderInput(h.catalog.Product.ID)
	in.EstimatedShip = models.TimePtr(fixtures.Epoch.Add(72 * time.Hour))
	order, err := h.engine.Intake(ctx, in)
	require.NoError(t, err)

	order, err = h.engine.Assign(ctx, order.ID, h.catalog.Active.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, order.Status)

	order, err = h.engine.Notify(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusNotified, order.Status)

	h.clock.Advance(24 * time.Hour)
	order, err = h.engine.Ship(ctx, order.ID, "UPS", "1Z999")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Equal(t, "UPS", order.Carrier)
	assert.Equal(t, "1Z999", order.TrackingNumber)

	h.clock.Advance(24 * time.Hour)
	order, err = h.engine.Deliver(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)

	require.NotNil(t, order.DeliveredAt)
	assert.False(t, order.DeliveredAt.After(*order.EstimatedShip))

	assert.False(t, order.AssignedAt.Before(order.CreatedAt))
	assert.False(t, order.NotifiedAt.Before(*order.AssignedAt))
	assert.False(t, order.ShippedAt.Before(*order.NotifiedAt))
	assert.False(t, order.DeliveredAt.Before(*order.ShippedAt))

	shipping, err := h.store.ListEmailLogs(ctx, models.EmailFilter{OrderID: order.ID, Type: models.EmailShippingNotification})
	require.NoError(t, err)
	require.Len(t, shipping, 1)
	assert.Equal(t, "jordan@example.com", shipping[0].Recipient)
	assert.Equal(t, "Order "+order.OrderNumber+" has shipped", shipping[0].Subject)

	confirmations, err := h.store.ListEmailLogs(ctx, models.EmailFilter{OrderID: order.ID, Type: models.EmailOrderConfirmation})
	require.NoError(t, err)
	require.Len(t, confirmations, 1)
	assert.Equal(t, h.catalog.Active.ContactEmail, confirmations[0].Recipient)

	actions := map[models.ActivityAction]int{}
	for _, a := range h.activities(t, order.ID) {
		actions[a.Action]++
	}
	assert.Equal(t, map[models.ActivityAction]int{
		models.ActionOrderCreated:   1,
		models.ActionOrderAssigned:  1,
		models.ActionOrderNotified:  1,
		models.ActionOrderShipped:   1,
		models.ActionOrderDelivered: 1,
	}, actions)

	assert.Equal(t, 5, order.Version)
	assert.Empty(t, h.alerts(t, order.ID))
}

func TestAssignRequiresReceived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	_, err := h.engine.Assign(ctx, order.ID, h.catalog.Second.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	var terr *lifecycle.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, lifecycle.OpAssign, terr.Operation)
	assert.Equal(t, models.OrderStatusAssigned, terr.Status)

	got, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, h.catalog.Active.ID, got.ManufacturerRef())
	assert.Equal(t, order.Version, got.Version)
}

func TestAssignManufacturerChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.intake(t)

	_, err := h.engine.Assign(ctx, order.ID, h.catalog.Inactive.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = h.engine.Assign(ctx, order.ID, "mfr-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = h.engine.Assign(ctx, order.ID, " ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = h.engine.Assign(ctx, "ord-missing", h.catalog.Active.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReceived, got.Status)
}

func TestNotifyRequiresAssigned(t *testing.T) {
	h := newHarness(t)
	order := h.intake(t)

	_, err := h.engine.Notify(context.Background(), order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestShipValidatesBeforeMutating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	_, err := h.engine.Ship(ctx, order.ID, "", "  ")

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)

	got, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, got.Status)
	assert.Nil(t, got.ShippedAt)
	assert.Empty(t, got.Carrier)
}

func TestShipFromReceivedIsInvalid(t *testing.T) {
	h := newHarness(t)
	order := h.intake(t)

	_, err := h.engine.Ship(context.Background(), order.ID, "UPS", "1Z")
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestShipForManufacturerHidesForeignOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	_, err := h.engine.ShipForManufacturer(ctx, h.catalog.Second.ID, order.ID, "FedEx", "7788")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	shipped, err := h.engine.ShipForManufacturer(ctx, h.catalog.Active.ID, order.ID, "FedEx", "7788")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
}

func TestMarkDelayedThenShip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	order, err := h.engine.MarkDelayed(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelayed, order.Status)
	assert.Equal(t, models.PriorityUrgent, order.Priority)

	alerts := h.alerts(t, order.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeDelay, alerts[0].Type)
	assert.Equal(t, models.SeverityHigh, alerts[0].Severity)
	assert.Equal(t, "Order "+order.OrderNumber+" is delayed", alerts[0].Title)
	assert.False(t, alerts[0].Resolved)

	delayEmails, err := h.store.ListEmailLogs(ctx, models.EmailFilter{OrderID: order.ID, Type: models.EmailDelayAlert})
	require.NoError(t, err)
	assert.Len(t, delayEmails, 1)

	_, err = h.engine.MarkDelayed(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	order, err = h.engine.Ship(ctx, order.ID, "UPS", "1Z1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Len(t, h.alerts(t, order.ID), 1)
}

func TestMarkDelayedSeverity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	late := h.assigned(t)
	h.clock.Advance(4 * 24 * time.Hour)
	_, err := h.engine.MarkDelayed(ctx, late.ID)
	require.NoError(t, err)

	alerts := h.alerts(t, late.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)

	in := fixtures.OrderInput(h.catalog.Product.ID)
	in.Priority = models.PriorityHigh
	high, err := h.engine.Intake(ctx, in)
	require.NoError(t, err)
	_, err = h.engine.Assign(ctx, high.ID, h.catalog.Active.ID)
	require.NoError(t, err)
	_, err = h.engine.MarkDelayed(ctx, high.ID)
	require.NoError(t, err)

	alerts = h.alerts(t, high.ID)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestEscalate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.assigned(t)
	_, err := h.engine.Ship(ctx, order.ID, "UPS", "1Z2")
	require.NoError(t, err)

	alert, err := h.engine.Escalate(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertTypeEscalation, alert.Type)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Order "+order.OrderNumber+" Escalated", alert.Title)

	got, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)
	assert.Len(t, h.alerts(t, order.ID), 1)

	_, err = h.engine.Deliver(ctx, order.ID)
	require.NoError(t, err)

	_, err = h.engine.Escalate(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Len(t, h.alerts(t, order.ID), 1)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	order, err := h.engine.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)

	_, err = h.engine.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = h.engine.Assign(ctx, order.ID, h.catalog.Active.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestFlagOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	h.clock.Advance(5 * 24 * time.Hour)
	_, err := h.engine.FlagOverdue(ctx, order.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	h.clock.Advance(time.Hour)
	alert, err := h.engine.FlagOverdue(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertTypeOverdue, alert.Type)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
	assert.Equal(t, h.catalog.Active.ID, *alert.ManufacturerID)

	reminders, err := h.store.ListEmailLogs(ctx, models.EmailFilter{OrderID: order.ID, Type: models.EmailReminder})
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "Reminder: Ship Order "+order.OrderNumber, reminders[0].Subject)

	versionBefore, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)

	again, err := h.engine.FlagOverdue(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, h.alerts(t, order.ID), 1)

	versionAfter, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, versionBefore.Version, versionAfter.Version)

	got, err := h.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAssigned, got.Status)
}

func TestFlagOverdueCriticalPastTwiceThreshold(t *testing.T) {
	h := newHarness(t)
	order := h.assigned(t)

	h.clock.Advance(11 * 24 * time.Hour)
	alert, err := h.engine.FlagOverdue(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestFlagDelay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	_, err := h.engine.FlagDelay(ctx, order.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = h.engine.MarkDelayed(ctx, order.ID)
	require.NoError(t, err)

	h.clock.Advance(4 * 24 * time.Hour)
	alert, err := h.engine.FlagDelay(ctx, order.ID)
	require.NoError(t, err)
	assert.Nil(t, alert, "delay alert from MarkDelayed is still open")

	open := h.alerts(t, order.ID)
	require.Len(t, open, 1)
	_, err = h.store.ResolveAlert(ctx, open[0].ID, func(a *models.Alert) (*lifecycle.Effects, error) {
		a.Resolved = true
		return &lifecycle.Effects{}, nil
	})
	require.NoError(t, err)

	alert, err = h.engine.FlagDelay(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertTypeDelay, alert.Type)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
}

func TestConcurrentAssignHasOneWinner(t *testing.T) {
	h := newHarness(t)
	order := h.intake(t)

	manufacturers := []string{h.catalog.Active.ID, h.catalog.Second.ID, h.catalog.Active.ID, h.catalog.Second.ID}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		rejected int
	)

	for _, id := range manufacturers {
		wg.Add(1)
		go func(mfrID string) {
			defer wg.Done()

			_, err := h.engine.Assign(context.Background(), order.ID, mfrID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, apperrors.ErrInvalidTransition):
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, len(manufacturers)-1, rejected)

	acts, err := h.store.ListActivityLogs(context.Background(), models.ActivityFilter{OrderID: order.ID, Action: models.ActionOrderAssigned})
	require.NoError(t, err)
	assert.Len(t, acts, 1)
}

func TestListenersSeeCommittedChanges(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	h.engine.AddListener(rec)

	order := h.assigned(t)
	_, err := h.engine.Notify(context.Background(), "ord-missing")
	require.Error(t, err)

	_, err = h.engine.Escalate(context.Background(), order.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{lifecycle.OpIntake, lifecycle.OpAssign, lifecycle.OpEscalate}, rec.operations())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, models.OrderStatusReceived, rec.changes[1].OldStatus)
	assert.Len(t, rec.changes[2].Alerts, 1)
}

func TestOutboxEventsFollowTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	_, err := h.engine.Notify(ctx, order.ID)
	require.NoError(t, err)

	var types []string
	for _, m := range h.store.Outbox().Messages() {
		types = append(types, m.EventType)
	}
	assert.Equal(t, []string{
		models.EventOrderCreated,
		models.EventOrderStatusChanged,
		models.EventOrderStatusChanged,
		models.EventEmailLogged,
	}, types)

	msgs := h.store.Outbox().Messages()
	var event models.OutboxMessageEvent
	require.NoError(t, json.Unmarshal(msgs[2].Payload, &event))

	var data models.OrderStatusChangedData
	require.NoError(t, event.DecodeData(&data))
	assert.Equal(t, lifecycle.OpNotify, data.Operation)
	assert.Equal(t, models.OrderStatusAssigned, data.OldStatus)
	assert.Equal(t, models.OrderStatusNotified, data.NewStatus)
}

func TestActorRecordedOnActivities(t *testing.T) {
	h := newHarness(t)
	order := h.intake(t)

	ctx := lifecycle.WithActor(context.Background(), "usr-ops")
	_, err := h.engine.Assign(ctx, order.ID, h.catalog.Active.ID)
	require.NoError(t, err)

	acts, err := h.store.ListActivityLogs(context.Background(), models.ActivityFilter{OrderID: order.ID, Action: models.ActionOrderAssigned})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.NotNil(t, acts[0].UserID)
	assert.Equal(t, "usr-ops", *acts[0].UserID)
	assert.Equal(t, "Order "+order.OrderNumber+" assigned to Oak Ridge Mills", acts[0].Details)
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.assigned(t)

	skewed := lifecycle.NewEngine(h.store, clockwork.NewFakeClockAt(fixtures.Epoch.Add(-time.Hour)), lifecycle.DefaultThresholds(), logger.NewNop())
	order, err := skewed.Notify(ctx, order.ID)
	require.NoError(t, err)

	assert.False(t, order.NotifiedAt.Before(*order.AssignedAt))
}
