package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

type mockRefresher struct{ mock.Mock }

func (m *mockRefresher) RefreshManufacturer(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, error) {
	args := m.Called(ctx, manufacturerID)
	perf, _ := args.Get(0).(*models.ManufacturerPerformance)
	return perf, args.Error(1)
}

func record(t *testing.T, msg *models.OutboxMessage) *sarama.ConsumerMessage {
	t.Helper()
	return &sarama.ConsumerMessage{Topic: "fulfillment.orders", Key: []byte(msg.AggregateID), Value: msg.Payload}
}

func shippedEvent(t *testing.T, manufacturerID *string) *models.OutboxMessage {
	t.Helper()

	order := &models.Order{
		ID:             "ord-1",
		OrderNumber:    "FI-2403-0001",
		Status:         models.OrderStatusShipped,
		ManufacturerID: manufacturerID,
	}

	msg, err := models.NewOrderStatusChangedEvent(order, models.OrderStatusNotified, "ship", time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return msg
}

func TestStatusChangeRefreshesManufacturer(t *testing.T) {
	ctx := context.Background()
	refresher := &mockRefresher{}
	refresher.On("RefreshManufacturer", ctx, "mfr-oak").
		Return(&models.ManufacturerPerformance{ManufacturerID: "mfr-oak", OnTimeRate: 100}, nil)

	h := NewOrderEventsHandler(refresher, logger.NewNop())

	require.NoError(t, h.HandleMessage(ctx, record(t, shippedEvent(t, models.StringPtr("mfr-oak")))))
	refresher.AssertExpectations(t)
}

func TestStatusChangeWithoutManufacturerIsIgnored(t *testing.T) {
	refresher := &mockRefresher{}
	h := NewOrderEventsHandler(refresher, logger.NewNop())

	require.NoError(t, h.HandleMessage(context.Background(), record(t, shippedEvent(t, nil))))
	refresher.AssertNotCalled(t, "RefreshManufacturer", mock.Anything, mock.Anything)
}

func TestRefreshFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	refresher := &mockRefresher{}
	refresher.On("RefreshManufacturer", ctx, "mfr-oak").Return(nil, errors.New("db down"))

	err := NewOrderEventsHandler(refresher, logger.NewNop()).
		HandleMessage(ctx, record(t, shippedEvent(t, models.StringPtr("mfr-oak"))))

	assert.ErrorContains(t, err, "db down")
}

func TestOtherEventsAreAcknowledged(t *testing.T) {
	refresher := &mockRefresher{}
	h := NewOrderEventsHandler(refresher, logger.NewNop())

	created, err := models.NewOrderCreatedEvent(&models.Order{ID: "ord-2"}, time.Now())
	require.NoError(t, err)
	assert.NoError(t, h.HandleMessage(context.Background(), record(t, created)))

	unknown, err := json.Marshal(models.OutboxMessageEvent{EventType: "order_archived", EventID: "evt-1"})
	require.NoError(t, err)
	assert.NoError(t, h.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: unknown}))

	refresher.AssertNotCalled(t, "RefreshManufacturer", mock.Anything, mock.Anything)
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	h := NewOrderEventsHandler(&mockRefresher{}, logger.NewNop())

	assert.Error(t, h.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}))

	bad, err := json.Marshal(models.OutboxMessageEvent{EventType: models.EventOrderStatusChanged, Data: json.RawMessage(`"nope"`)})
	require.NoError(t, err)
	assert.Error(t, h.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: bad}))
}
