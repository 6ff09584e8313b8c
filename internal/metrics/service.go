package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vaidashi/fulfillment-tracker/internal/cache"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

const recentlyShippedLimit = 10

var (
	pendingStatuses = []models.OrderStatus{models.OrderStatusReceived, models.OrderStatusAssigned}
	portalStatuses  = []models.OrderStatus{models.OrderStatusAssigned, models.OrderStatusNotified, models.OrderStatusDelayed}
)

// Stats are the dashboard headline figures
type Stats struct {
	TotalOrders    int     `json:"totalOrders"`
	PendingOrders  int     `json:"pendingOrders"`
	ActiveAlerts   int     `json:"activeAlerts"`
	AvgFulfillment float64 `json:"avgFulfillment"`
	OnTimeRate     int     `json:"onTimeRate"`
}

// Charts are the dashboard series
type Charts struct {
	OrdersBySource   []Count       `json:"ordersBySource"`
	OrdersByStatus   []Count       `json:"ordersByStatus"`
	FulfillmentTrend []TrendPoint  `json:"fulfillmentTrend"`
	OrderVolume      []VolumePoint `json:"orderVolume"`
}

// Dashboard is the admin overview
type Dashboard struct {
	Stats  Stats  `json:"stats"`
	Charts Charts `json:"charts"`
}

// PendingOrder is an order waiting on its manufacturer, annotated with urgency
type PendingOrder struct {
	*models.Order
	Urgency      Urgency `json:"urgency"`
	HoursWaiting float64 `json:"hoursWaiting"`
}

// PortalStats are the headline figures of a manufacturer's queue
type PortalStats struct {
	TotalOrders      int     `json:"totalOrders"`
	ShippedToday     int     `json:"shippedToday"`
	PendingCount     int     `json:"pendingCount"`
	AvgResponseHours float64 `json:"avgResponseHours"`
}

// PortalQueue is what a manufacturer sees of its own work
type PortalQueue struct {
	Manufacturer    *models.Manufacturer `json:"manufacturer"`
	Orders          []PendingOrder       `json:"orders"`
	RecentlyShipped []*models.Order      `json:"recentlyShipped"`
	Stats           PortalStats          `json:"stats"`
}

// Service computes dashboard and manufacturer figures on demand
type Service struct {
	store    lifecycle.Store
	cache    cache.PerformanceCache
	clock    clockwork.Clock
	location *time.Location
	logger   logger.Logger

	// generations counts evictions per manufacturer; a compute that overlaps
	// one must not repopulate the cache
	mu          sync.Mutex
	generations map[string]uint64
}

// NewService creates a new metrics service. A nil cache disables caching and a
// nil location buckets days in UTC.
func NewService(store lifecycle.Store, perfCache cache.PerformanceCache, clk clockwork.Clock, loc *time.Location, logger logger.Logger) *Service {
	if perfCache == nil {
		perfCache = cache.NopPerformanceCache{}
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}

	return &Service{
		store:       store,
		cache:       perfCache,
		clock:       clk,
		location:    loc,
		logger:      logger,
		generations: make(map[string]uint64),
	}
}

// Dashboard computes the admin overview
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.clock.Now().UTC()

	total, err := s.store.CountOrders(ctx, models.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	pending, err := s.store.CountOrders(ctx, models.OrderFilter{Statuses: pendingStatuses})
	if err != nil {
		return nil, fmt.Errorf("failed to count pending orders: %w", err)
	}

	unresolved := false
	activeAlerts, err := s.store.CountAlerts(ctx, models.AlertFilter{Resolved: &unresolved})
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	deliveredOrders, err := s.store.ListOrders(ctx, models.OrderFilter{Statuses: []models.OrderStatus{models.OrderStatusDelivered}})
	if err != nil {
		return nil, fmt.Errorf("failed to list delivered orders: %w", err)
	}

	bySource, err := s.countEach(ctx, len(models.OrderSources), func(i int) (string, models.OrderFilter) {
		src := models.OrderSources[i]
		return string(src), models.OrderFilter{Source: src}
	})
	if err != nil {
		return nil, err
	}

	byStatus, err := s.countEach(ctx, len(models.OrderStatuses), func(i int) (string, models.OrderFilter) {
		st := models.OrderStatuses[i]
		return string(st), models.OrderFilter{Statuses: []models.OrderStatus{st}}
	})
	if err != nil {
		return nil, err
	}

	from, to := Window(now, DefaultTrendDays, s.location)

	deliveredInWindow, err := s.store.ListOrders(ctx, models.OrderFilter{DeliveredFrom: &from, DeliveredTo: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent deliveries: %w", err)
	}

	createdInWindow, err := s.store.ListOrders(ctx, models.OrderFilter{CreatedFrom: &from, CreatedTo: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent orders: %w", err)
	}

	return &Dashboard{
		Stats: Stats{
			TotalOrders:    total,
			PendingOrders:  pending,
			ActiveAlerts:   activeAlerts,
			AvgFulfillment: RoundTenth(AverageFulfillmentDays(deliveredOrders)),
			OnTimeRate:     OnTimeRate(deliveredOrders),
		},
		Charts: Charts{
			OrdersBySource:   bySource,
			OrdersByStatus:   byStatus,
			FulfillmentTrend: DailyFulfillmentTrend(deliveredInWindow, now, DefaultTrendDays, s.location),
			OrderVolume:      DailyOrderVolume(createdInWindow, now, DefaultTrendDays, s.location),
		},
	}, nil
}

// countEach counts n filters and keeps the non-empty buckets
func (s *Service) countEach(ctx context.Context, n int, at func(i int) (string, models.OrderFilter)) ([]Count, error) {
	var out []Count

	for i := 0; i < n; i++ {
		name, filter := at(i)

		c, err := s.store.CountOrders(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s orders: %w", name, err)
		}

		if c > 0 {
			out = append(out, Count{Name: name, Value: c})
		}
	}

	return out, nil
}

// ManufacturerPerformance returns the scorecard of a manufacturer, from cache when fresh
func (s *Service) ManufacturerPerformance(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, error) {
	if _, err := s.store.GetManufacturer(ctx, manufacturerID); err != nil {
		return nil, err
	}

	perf, ok, err := s.cache.Get(ctx, manufacturerID)

	if err != nil {
		s.logger.Warn("Performance cache read failed", "manufacturerID", manufacturerID, "error", err)
	} else if ok {
		return perf, nil
	}

	gen := s.generation(manufacturerID)
	perf, err = s.compute(ctx, manufacturerID)

	if err != nil {
		return nil, err
	}

	s.fill(ctx, perf, gen)
	return perf, nil
}

// RefreshManufacturer recomputes a scorecard and stores it on the manufacturer and in the cache
func (s *Service) RefreshManufacturer(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, error) {
	gen := s.generation(manufacturerID)
	perf, err := s.compute(ctx, manufacturerID)

	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateManufacturerPerformance(ctx, manufacturerID, perf.AvgFulfillmentDays, float64(perf.OnTimeRate), perf.ComputedAt); err != nil {
		return nil, fmt.Errorf("failed to store manufacturer performance: %w", err)
	}

	s.fill(ctx, perf, gen)

	s.logger.Debug("Manufacturer performance refreshed",
		"manufacturerID", manufacturerID,
		"avgFulfillmentDays", perf.AvgFulfillmentDays,
		"onTimeRate", perf.OnTimeRate)

	return perf, nil
}

func (s *Service) generation(manufacturerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[manufacturerID]
}

// fill caches perf unless the manufacturer was evicted since gen was read
func (s *Service) fill(ctx context.Context, perf *models.ManufacturerPerformance, gen uint64) {
	if s.generation(perf.ManufacturerID) != gen {
		s.logger.Debug("Skipping cache fill after concurrent eviction", "manufacturerID", perf.ManufacturerID)
		return
	}

	if err := s.cache.Set(ctx, perf); err != nil {
		s.logger.Warn("Performance cache write failed", "manufacturerID", perf.ManufacturerID, "error", err)
	}
}

func (s *Service) compute(ctx context.Context, manufacturerID string) (*models.ManufacturerPerformance, error) {
	delivered, err := s.store.ListOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		Statuses:       []models.OrderStatus{models.OrderStatusDelivered},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list delivered orders: %w", err)
	}

	shipped, err := s.store.ListOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		ShippedOnly:    true,
		Sort:           models.SortShippedDesc,
		Limit:          DefaultResponseSample,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shipped orders: %w", err)
	}

	pending, err := s.store.CountOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		Statuses:       portalStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count pending orders: %w", err)
	}

	return &models.ManufacturerPerformance{
		ManufacturerID:     manufacturerID,
		AvgFulfillmentDays: RoundTenth(AverageFulfillmentDays(delivered)),
		OnTimeRate:         OnTimeRate(delivered),
		AvgResponseHours:   RoundTenth(AverageResponseHours(shipped, DefaultResponseSample)),
		DeliveredOrders:    len(delivered),
		PendingOrders:      pending,
		ComputedAt:         s.clock.Now().UTC(),
	}, nil
}

// Portal returns a manufacturer's pending queue oldest assignment first, with
// its recent shipments and headline figures
func (s *Service) Portal(ctx context.Context, manufacturerID string) (*PortalQueue, error) {
	m, err := s.store.GetManufacturer(ctx, manufacturerID)

	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()

	pending, err := s.store.ListOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		Statuses:       portalStatuses,
		Sort:           models.SortAssignedAsc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}

	recent, err := s.store.ListOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		Statuses:       []models.OrderStatus{models.OrderStatusShipped, models.OrderStatusDelivered},
		Sort:           models.SortShippedDesc,
		Limit:          recentlyShippedLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shipped orders: %w", err)
	}

	total, err := s.store.CountOrders(ctx, models.OrderFilter{ManufacturerID: manufacturerID})
	if err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	perf, err := s.ManufacturerPerformance(ctx, manufacturerID)
	if err != nil {
		return nil, err
	}

	queue := &PortalQueue{
		Manufacturer:    m,
		Orders:          make([]PendingOrder, 0, len(pending)),
		RecentlyShipped: recent,
		Stats: PortalStats{
			TotalOrders:      total,
			PendingCount:     len(pending),
			AvgResponseHours: perf.AvgResponseHours,
		},
	}

	for _, o := range pending {
		item := PendingOrder{Order: o, Urgency: UrgencyOnTime}
		if o.AssignedAt != nil {
			item.Urgency = ClassifyUrgency(*o.AssignedAt, now)
			item.HoursWaiting = RoundTenth(now.Sub(*o.AssignedAt).Hours())
		}
		queue.Orders = append(queue.Orders, item)
	}

	shipped, err := s.store.ListOrders(ctx, models.OrderFilter{
		ManufacturerID: manufacturerID,
		Statuses:       []models.OrderStatus{models.OrderStatusShipped},
		Sort:           models.SortShippedDesc,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shipped orders: %w", err)
	}

	today, _ := Window(now, 1, s.location)
	for _, o := range shipped {
		if o.ShippedAt == nil || o.ShippedAt.Before(today) {
			break
		}
		queue.Stats.ShippedToday++
	}

	return queue, nil
}

// OrderChanged evicts the cached scorecard of the order's manufacturer when
// the order changed status
func (s *Service) OrderChanged(ctx context.Context, change lifecycle.Change) {
	if change.Order == nil || change.Order.ManufacturerID == nil || change.Order.Status == change.OldStatus {
		return
	}

	id := *change.Order.ManufacturerID

	s.mu.Lock()
	s.generations[id]++
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("Performance cache eviction failed", "manufacturerID", id, "error", err)
	}
}
