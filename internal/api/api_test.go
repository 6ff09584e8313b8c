package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/fulfillment-tracker/internal/alerts"
	"github.com/vaidashi/fulfillment-tracker/internal/config"
	"github.com/vaidashi/fulfillment-tracker/internal/fixtures"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/memstore"
	"github.com/vaidashi/fulfillment-tracker/internal/metrics"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/internal/outbox"
	"github.com/vaidashi/fulfillment-tracker/internal/service"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
	"github.com/vaidashi/fulfillment-tracker/pkg/retry"
)

type testEnv struct {
	server  *Server
	store   *memstore.Store
	clock   clockwork.FakeClock
	catalog fixtures.Catalog
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memstore.New()
	clk := clockwork.NewFakeClockAt(fixtures.Epoch)
	log := logger.NewNop()
	thresholds := lifecycle.DefaultThresholds()

	engine := lifecycle.NewEngine(store, clk, thresholds, log)
	metricsService := metrics.NewService(store, nil, clk, time.UTC, log)
	engine.AddListener(metricsService)

	dlqProcessor := outbox.NewDeadLetterProcessor(store.DeadLetters(), log, &outbox.DeadLetterProcessorConfig{
		PollingInterval: time.Minute,
		BatchSize:       5,
		MaxRetries:      1,
		BackoffStrategy: &retry.ConstantBackoff{Interval: time.Millisecond},
		Clock:           clk,
	})
	dlqProcessor.RegisterHandler(models.EventOrderStatusChanged, outbox.NewLoggingHandler(log))

	cfg := &config.Config{Port: 0, Storage: config.StorageMemory}

	s := newServer(cfg, Services{
		Engine:  engine,
		Orders:  service.NewOrderService(store, log),
		Catalog: service.NewCatalogService(store, log),
		Alerts:  alerts.NewService(store, clk, log),
		Scanner: alerts.NewScanner(store, engine, alerts.ScannerConfig{
			Interval:   time.Hour,
			Thresholds: thresholds,
			Clock:      clk,
		}, log),
		Metrics:             metricsService,
		DeadLetters:         store.DeadLetters(),
		DeadLetterProcessor: dlqProcessor,
	}, log)
	t.Cleanup(s.rateLimiter.Stop)

	return &testEnv{server: s, store: store, clock: clk, catalog: fixtures.Seed(store)}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (e *testEnv) intake(t *testing.T) *models.Order {
	t.Helper()
	code, env := e.do(t, http.MethodPost, "/api/v1/orders", fixtures.OrderInput(e.catalog.Product.ID))
	require.Equal(t, http.StatusCreated, code, env.Error)
	return decode[*models.Order](t, env.Data)
}

func (e *testEnv) assign(t *testing.T, orderID, manufacturerID string) {
	t.Helper()
	code, env := e.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/assign", map[string]string{"manufacturerId": manufacturerID})
	require.Equal(t, http.StatusOK, code, env.Error)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, code)
	health := decode[Health](t, env.Data)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, config.StorageMemory, health.Storage)

	e.server.checks["database"] = func(context.Context) error { return errors.New("connection refused") }

	code, env = e.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	health = decode[Health](t, env.Data)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "unavailable", health.Dependencies["database"])
}

func TestOrderLifecycle(t *testing.T) {
	e := newTestEnv(t)

	order := e.intake(t)
	assert.Equal(t, "FI-2403-0001", order.OrderNumber)
	assert.Equal(t, models.OrderStatusReceived, order.Status)

	e.clock.Advance(time.Hour)
	code, env := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/assign",
		map[string]string{"manufacturerId": e.catalog.Active.ID}, UserIDHeader, "ops-7")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, models.OrderStatusAssigned, decode[*models.Order](t, env.Data).Status)

	e.clock.Advance(time.Hour)
	code, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/notify", nil)
	require.Equal(t, http.StatusOK, code)

	e.clock.Advance(time.Hour)
	code, env = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/ship", map[string]string{"carrier": "UPS"})
	require.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	problems := decode[map[string][]string](t, env.Details)
	assert.Equal(t, []string{"trackingNumber is required"}, problems["problems"])

	stored, err := e.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusNotified, stored.Status)

	code, env = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/ship",
		map[string]string{"carrier": "UPS", "trackingNumber": "1Z999"})
	require.Equal(t, http.StatusOK, code, env.Error)
	shipped := decode[*models.Order](t, env.Data)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
	assert.Equal(t, "1Z999", shipped.TrackingNumber)

	e.clock.Advance(24 * time.Hour)
	code, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/deliver", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/orders/"+order.ID, nil)
	require.Equal(t, http.StatusOK, code)
	detail := decode[models.OrderDetail](t, env.Data)
	assert.Equal(t, models.OrderStatusDelivered, detail.Status)
	require.NotNil(t, detail.Manufacturer)
	assert.Equal(t, e.catalog.Active.ID, detail.Manufacturer.ID)
	assert.Len(t, detail.Emails, 2)
	require.Len(t, detail.Activities, 5)

	var assignedBy *string
	for _, a := range detail.Activities {
		if a.Action == models.ActionOrderAssigned {
			assignedBy = a.UserID
		}
	}
	require.NotNil(t, assignedBy)
	assert.Equal(t, "ops-7", *assignedBy)
}

func TestInvalidTransitionReportsStatus(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)
	e.assign(t, order.ID, e.catalog.Active.ID)

	code, env := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/assign", map[string]string{"manufacturerId": e.catalog.Second.ID})

	assert.Equal(t, http.StatusConflict, code)
	details := decode[map[string]string](t, env.Details)
	assert.Equal(t, "ASSIGNED", details["status"])
	assert.Equal(t, "assign", details["operation"])

	stored, err := e.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, e.catalog.Active.ID, *stored.ManufacturerID)
}

func TestCancelIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)

	code, env := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil, UserIDHeader, "ops-2")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, models.OrderStatusCancelled, decode[*models.Order](t, env.Data).Status)

	code, env = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CANCELLED", decode[map[string]string](t, env.Details)["status"])

	code, _ = e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/escalate", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestOrderErrors(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(t, http.MethodGet, "/api/v1/orders/ord-missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, env.Error)

	code, _ = e.do(t, http.MethodPost, "/api/v1/orders/ord-missing/deliver", nil)
	assert.Equal(t, http.StatusNotFound, code)

	input := fixtures.OrderInput(e.catalog.Product.ID)
	input.Quantity = 0
	input.CustomerEmail = ""
	code, env = e.do(t, http.MethodPost, "/api/v1/orders", input)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Len(t, decode[map[string][]string](t, env.Details)["problems"], 2)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders(t *testing.T) {
	e := newTestEnv(t)

	first := e.intake(t)
	e.clock.Advance(time.Minute)
	e.intake(t)
	e.clock.Advance(time.Minute)
	e.intake(t)
	e.assign(t, first.ID, e.catalog.Active.ID)

	code, env := e.do(t, http.MethodGet, "/api/v1/orders?limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[service.OrderPage](t, env.Data)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, "FI-2403-0003", page.Orders[0].OrderNumber)

	code, env = e.do(t, http.MethodGet, "/api/v1/orders?status=assigned,delayed&manufacturer="+e.catalog.Active.ID, nil)
	require.Equal(t, http.StatusOK, code)
	page = decode[service.OrderPage](t, env.Data)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, first.ID, page.Orders[0].ID)

	code, _ = e.do(t, http.MethodGet, "/api/v1/orders?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/orders?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/orders?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlerts(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)
	e.assign(t, order.ID, e.catalog.Active.ID)

	code, _ := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/delay", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/escalate", nil)
	require.Equal(t, http.StatusCreated, code)
	escalation := decode[*models.Alert](t, env.Data)
	assert.Equal(t, models.AlertTypeEscalation, escalation.Type)

	code, env = e.do(t, http.MethodGet, "/api/v1/alerts?resolved=false&type=delay", nil)
	require.Equal(t, http.StatusOK, code)
	open := decode[[]*models.Alert](t, env.Data)
	require.Len(t, open, 1)
	delayAlert := open[0]

	code, _ = e.do(t, http.MethodPatch, "/api/v1/alerts/"+delayAlert.ID, map[string]interface{}{"resolved": false})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodPatch, "/api/v1/alerts/"+delayAlert.ID, map[string]interface{}{"resolved": true, "resolvedBy": "dana"})
	require.Equal(t, http.StatusOK, code, env.Error)
	resolved := decode[*models.Alert](t, env.Data)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "dana", *resolved.ResolvedBy)

	e.clock.Advance(time.Hour)
	code, env = e.do(t, http.MethodPatch, "/api/v1/alerts/"+delayAlert.ID, map[string]interface{}{"resolved": true, "resolvedBy": "sam"})
	require.Equal(t, http.StatusOK, code)
	again := decode[*models.Alert](t, env.Data)
	assert.Equal(t, "dana", *again.ResolvedBy)
	assert.Equal(t, resolved.ResolvedAt.UTC(), again.ResolvedAt.UTC())

	code, _ = e.do(t, http.MethodGet, "/api/v1/alerts?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodGet, "/api/v1/alerts/alt-missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestManualScanRaisesOverdueAlert(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)
	e.assign(t, order.ID, e.catalog.Active.ID)

	e.clock.Advance(6 * 24 * time.Hour)

	code, env := e.do(t, http.MethodPost, "/api/v1/admin/alerts/scan", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	result := decode[alerts.ScanResult](t, env.Data)
	require.Len(t, result.Raised, 1)
	assert.Equal(t, models.AlertTypeOverdue, result.Raised[0].Type)

	code, env = e.do(t, http.MethodPost, "/api/v1/admin/alerts/scan", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[alerts.ScanResult](t, env.Data).Raised)
}

func TestPortal(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)
	e.assign(t, order.ID, e.catalog.Active.ID)
	e.clock.Advance(30 * time.Hour)

	code, env := e.do(t, http.MethodGet, "/api/v1/portal/manufacturers/"+e.catalog.Active.ID+"/orders", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	queue := decode[metrics.PortalQueue](t, env.Data)
	require.Len(t, queue.Orders, 1)
	assert.Equal(t, order.ID, queue.Orders[0].ID)
	assert.Equal(t, 30.0, queue.Orders[0].HoursWaiting)

	ship := map[string]string{"carrier": "FedEx", "trackingNumber": "FX-1"}

	code, _ = e.do(t, http.MethodPost, "/api/v1/portal/manufacturers/"+e.catalog.Second.ID+"/orders/"+order.ID+"/ship", ship)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(t, http.MethodPost, "/api/v1/portal/manufacturers/"+e.catalog.Active.ID+"/orders/"+order.ID+"/ship", ship)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, models.OrderStatusShipped, decode[*models.Order](t, env.Data).Status)

	code, _ = e.do(t, http.MethodGet, "/api/v1/portal/manufacturers/mfr-missing/orders", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCatalogAndReports(t *testing.T) {
	e := newTestEnv(t)
	order := e.intake(t)
	e.assign(t, order.ID, e.catalog.Active.ID)
	code, _ := e.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/notify", nil)
	require.Equal(t, http.StatusOK, code)

	code, env := e.do(t, http.MethodGet, "/api/v1/manufacturers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]*models.Manufacturer](t, env.Data), 3)

	code, _ = e.do(t, http.MethodGet, "/api/v1/manufacturers/"+e.catalog.Active.ID, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/manufacturers/"+e.catalog.Active.ID+"/performance", nil)
	require.Equal(t, http.StatusOK, code)
	perf := decode[models.ManufacturerPerformance](t, env.Data)
	assert.Equal(t, 1, perf.PendingOrders)

	code, env = e.do(t, http.MethodGet, "/api/v1/products?manufacturer="+e.catalog.Second.ID, nil)
	require.Equal(t, http.StatusOK, code)
	products := decode[[]*models.Product](t, env.Data)
	require.Len(t, products, 1)
	assert.Equal(t, e.catalog.Tile.ID, products[0].ID)

	code, _ = e.do(t, http.MethodGet, "/api/v1/products/prd-missing", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/emails?type=order_confirmation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]*models.EmailLog](t, env.Data), 1)

	code, _ = e.do(t, http.MethodGet, "/api/v1/emails?type=fax", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/activity?order="+order.ID+"&action=order_notified", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]*models.ActivityLog](t, env.Data), 1)

	code, env = e.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, code)
	dashboard := decode[metrics.Dashboard](t, env.Data)
	assert.Equal(t, 1, dashboard.Stats.TotalOrders)
}

func TestDeadLetterAdmin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	order := &models.Order{ID: "ord-1", OrderNumber: "FI-2403-0001", Status: models.OrderStatusAssigned}
	event, err := models.NewOrderStatusChangedEvent(order, models.OrderStatusReceived, lifecycle.OpAssign, fixtures.Epoch)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.store.DeadLetters().Create(ctx, models.NewDeadLetterMessage(event, "broker down", "failed after 3 attempts", fixtures.Epoch)))
	}

	code, env := e.do(t, http.MethodGet, "/api/v1/admin/dead-letters?pageSize=2", nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[struct {
		Items      []*models.DeadLetterMessage `json:"items"`
		TotalCount int                         `json:"totalCount"`
	}](t, env.Data)
	assert.Equal(t, 3, page.TotalCount)
	assert.Len(t, page.Items, 2)

	code, env = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/1/retry", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	result := decode[RetryResult](t, env.Data)
	assert.True(t, result.Delivered)
	assert.Equal(t, models.DeadLetterStatusResolved, result.Message.Status)

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/1/retry", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/2/discard", map[string]string{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, code)

	discarded, err := e.store.DeadLetters().GetMessage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.DeadLetterStatusDiscarded, discarded.Status)
	assert.Contains(t, discarded.FailureReason, "duplicate")

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/2/discard", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/99/discard", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/dead-letters/abc/retry", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/admin/dead-letters?status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[PaginationResponse](t, env.Data).TotalCount)

	code, _ = e.do(t, http.MethodGet, "/api/v1/admin/dead-letters?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestResilienceAdmin(t *testing.T) {
	e := newTestEnv(t)

	code, env := e.do(t, http.MethodPut, "/api/v1/admin/rate-limits",
		map[string]interface{}{"endpoint": "POST:/api/v1/orders", "max_tokens": 5, "refill_rate": 1})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = e.do(t, http.MethodGet, "/api/v1/admin/rate-limits", nil)
	require.Equal(t, http.StatusOK, code)
	limits := decode[struct {
		EndpointLimits map[string]map[string]float64 `json:"endpoint_limits"`
	}](t, env.Data)
	assert.Equal(t, 5.0, limits.EndpointLimits["POST:/api/v1/orders"]["max_tokens"])

	code, _ = e.do(t, http.MethodPut, "/api/v1/admin/rate-limits", map[string]interface{}{"endpoint": "", "max_tokens": 5, "refill_rate": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(t, http.MethodPut, "/api/v1/admin/rate-limits", map[string]interface{}{"endpoint": "orders", "max_tokens": 5, "refill_rate": 1})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = e.do(t, http.MethodGet, "/api/v1/admin/circuit-breaker", nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[struct {
		EssentialRoutes []string `json:"essentialRoutes"`
	}](t, env.Data)
	assert.Contains(t, status.EssentialRoutes, "/api/v1/admin")

	code, _ = e.do(t, http.MethodPost, "/api/v1/admin/circuit-breaker/reset", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestNewServerInMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"manufacturers": [{"id": "mfr-oak", "name": "Oak Ridge Mills", "contactEmail": "orders@oakridge.example.com"}],
		"products": [{"id": "prd-oak", "name": "White Oak Plank", "category": "HARDWOOD", "price": "4.25", "manufacturerId": "mfr-oak"}]
	}`), 0o600))

	cfg := &config.Config{
		Port:        0,
		Storage:     config.StorageMemory,
		CatalogFile: path,
		Timezone:    time.UTC,
		Alerts: config.AlertsConfig{
			FulfillmentThreshold: 5 * 24 * time.Hour,
			DelayThreshold:       3 * 24 * time.Hour,
		},
		Outbox: config.OutboxConfig{
			PollingInterval:    time.Second,
			BatchSize:          10,
			MaxRetries:         3,
			DLQPollingInterval: time.Minute,
			DLQMaxRetries:      2,
		},
	}

	s, err := NewServer(cfg, logger.NewNop())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.Nil(t, s.consumer)
	assert.Len(t, s.background, 2)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/prd-oak", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg.CatalogFile = filepath.Join(t.TempDir(), "missing.json")
	_, err = NewServer(cfg, logger.NewNop())
	assert.Error(t, err)
}
