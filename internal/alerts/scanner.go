package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// Flagger raises age-based alerts on a single order
type Flagger interface {
	FlagOverdue(ctx context.Context, orderID string) (*models.Alert, error)
	FlagDelay(ctx context.Context, orderID string) (*models.Alert, error)
}

// ScanResult summarizes one pass over the open orders
type ScanResult struct {
	Checked int             `json:"checked"`
	Raised  []*models.Alert `json:"raised"`
	Failed  int             `json:"failed"`
}

// Scanner periodically checks in-progress orders against the alert thresholds
type Scanner struct {
	store      lifecycle.Store
	flagger    Flagger
	thresholds lifecycle.Thresholds
	interval   time.Duration
	clock      clockwork.Clock
	logger     logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	scanMu     sync.Mutex
}

// ScannerConfig holds the configuration for the Scanner
type ScannerConfig struct {
	Interval   time.Duration
	Thresholds lifecycle.Thresholds
	Clock      clockwork.Clock
}

// NewScanner creates a new Scanner
func NewScanner(store lifecycle.Store, flagger Flagger, config ScannerConfig, logger logger.Logger) *Scanner {
	ctx, cancel := context.WithCancel(context.Background())

	clk := config.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Scanner{
		store:      store,
		flagger:    flagger,
		thresholds: config.Thresholds,
		interval:   config.Interval,
		clock:      clk,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the periodic scan
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	s.logger.Info("Alert scanner started",
		"interval", s.interval,
		"fulfillmentThreshold", s.thresholds.Fulfillment,
		"delayThreshold", s.thresholds.Delay)
}

// Stop stops the periodic scan and waits for a running pass to finish
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("Alert scanner stopped")
}

func (s *Scanner) loop() {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := s.ScanOnce(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Alert scan failed", "error", err)
			}
		}
	}
}

// ScanOnce evaluates every assigned, notified and delayed order once. Orders
// that already carry an open alert of the matching type are skipped.
func (s *Scanner) ScanOnce(ctx context.Context) (*ScanResult, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	now := s.clock.Now().UTC()
	result := &ScanResult{Raised: []*models.Alert{}}

	waiting, err := s.store.ListOrders(ctx, models.OrderFilter{
		Statuses: []models.OrderStatus{models.OrderStatusAssigned, models.OrderStatusNotified},
		Sort:     models.SortAssignedAsc,
	})
	if err != nil {
		return nil, err
	}

	for _, o := range waiting {
		if o.AssignedAt == nil || now.Sub(*o.AssignedAt) <= s.thresholds.Fulfillment {
			continue
		}
		s.flag(ctx, result, o, models.AlertTypeOverdue, s.flagger.FlagOverdue)
	}

	delayed, err := s.store.ListOrders(ctx, models.OrderFilter{
		Statuses: []models.OrderStatus{models.OrderStatusDelayed},
		Sort:     models.SortAssignedAsc,
	})
	if err != nil {
		return nil, err
	}

	for _, o := range delayed {
		if o.AssignedAt == nil || now.Sub(*o.AssignedAt) <= s.thresholds.Delay {
			continue
		}
		s.flag(ctx, result, o, models.AlertTypeDelay, s.flagger.FlagDelay)
	}

	if len(result.Raised) > 0 || result.Failed > 0 {
		s.logger.Info("Alert scan completed",
			"checked", result.Checked,
			"raised", len(result.Raised),
			"failed", result.Failed)
	}

	return result, nil
}

func (s *Scanner) flag(ctx context.Context, result *ScanResult, o *models.Order, t models.AlertType, fn func(context.Context, string) (*models.Alert, error)) {
	result.Checked++

	open, err := s.store.HasOpenAlert(ctx, o.ID, t)
	if err != nil {
		result.Failed++
		s.logger.Error("Failed to check open alerts", "orderID", o.ID, "type", t, "error", err)
		return
	}
	if open {
		return
	}

	alert, err := fn(ctx, o.ID)

	switch {
	case errors.Is(err, apperrors.ErrInvalidTransition):
		// the order moved on between the listing and the transition
		s.logger.Debug("Order no longer eligible for alert", "orderID", o.ID, "type", t, "error", err)
	case err != nil:
		result.Failed++
		s.logger.Error("Failed to raise alert", "orderID", o.ID, "type", t, "error", err)
	case alert != nil:
		result.Raised = append(result.Raised, alert)
	}
}
