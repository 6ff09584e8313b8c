// Package memstore is a mutex-guarded in-memory implementation of the entity
// store, outbox and dead letter queue.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

// Store keeps every entity in maps behind a single mutex
type Store struct {
	mu            sync.RWMutex
	seq           int64
	orders        map[string]*models.Order
	manufacturers map[string]*models.Manufacturer
	products      map[string]*models.Product
	alerts        map[string]*models.Alert
	emails        []*models.EmailLog
	activities    []*models.ActivityLog

	outbox      *OutboxQueue
	deadLetters *DeadLetterQueue
}

var _ lifecycle.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		orders:        make(map[string]*models.Order),
		manufacturers: make(map[string]*models.Manufacturer),
		products:      make(map[string]*models.Product),
		alerts:        make(map[string]*models.Alert),
		outbox:        &OutboxQueue{},
		deadLetters:   &DeadLetterQueue{},
	}
}

// Outbox returns the queue that receives transition events
func (s *Store) Outbox() *OutboxQueue { return s.outbox }

// DeadLetters returns the dead letter queue
func (s *Store) DeadLetters() *DeadLetterQueue { return s.deadLetters }

// PutManufacturer inserts or replaces a manufacturer
func (s *Store) PutManufacturer(m *models.Manufacturer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *m
	s.manufacturers[m.ID] = &c
}

// PutProduct inserts or replaces a product
func (s *Store) PutProduct(p *models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	s.products[p.ID] = &c
}

// PutAlert inserts an alert raised outside the lifecycle, such as a quality report
func (s *Store) PutAlert(a *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts[a.ID] = a.Clone()
}

// NextOrderSequence hands out the next order number sequence value
func (s *Store) NextOrderSequence(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	return s.seq, nil
}

// CreateOrder stores a new order together with its effects
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, effects *lifecycle.Effects) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return apperrors.NewConflictError(fmt.Sprintf("order %s already exists", order.ID))
	}

	for _, o := range s.orders {
		if o.OrderNumber == order.OrderNumber {
			return apperrors.NewConflictError(fmt.Sprintf("order number %s already exists", order.OrderNumber))
		}
	}

	s.orders[order.ID] = order.Clone()
	s.applyLocked(effects)
	return nil
}

// GetOrder retrieves an order by its ID
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}

	return o.Clone(), nil
}

// ListOrders returns the orders matching filter
func (s *Store) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Order
	for _, o := range s.orders {
		if filter.Matches(o) {
			out = append(out, o.Clone())
		}
	}

	sortOrders(out, filter.Sort)
	return page(out, filter.Limit, filter.Offset), nil
}

// CountOrders counts the orders matching filter, ignoring paging
func (s *Store) CountOrders(ctx context.Context, filter models.OrderFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, o := range s.orders {
		if filter.Matches(o) {
			n++
		}
	}
	return n, nil
}

// Transition applies fn to a copy of the order under the store lock and
// commits the copy with its effects when fn reports a change
func (s *Store) Transition(ctx context.Context, orderID string, fn lifecycle.TransitionFunc) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[orderID]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", orderID))
	}

	working := current.Clone()
	effects, err := fn(working, s.openAlertsLocked(orderID))

	if err != nil {
		return nil, err
	}

	if effects == nil {
		return current.Clone(), nil
	}

	working.Version = current.Version + 1
	s.orders[orderID] = working
	s.applyLocked(effects)

	return working.Clone(), nil
}

// GetManufacturer retrieves a manufacturer by its ID
func (s *Store) GetManufacturer(ctx context.Context, id string) (*models.Manufacturer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.manufacturers[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("manufacturer %s not found", id))
	}

	c := *m
	return &c, nil
}

// ListManufacturers returns every manufacturer sorted by name
func (s *Store) ListManufacturers(ctx context.Context) ([]*models.Manufacturer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Manufacturer, 0, len(s.manufacturers))
	for _, m := range s.manufacturers {
		c := *m
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateManufacturerPerformance stores a recomputed scorecard on the manufacturer
func (s *Store) UpdateManufacturerPerformance(ctx context.Context, id string, avgFulfillmentDays, onTimeRate float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.manufacturers[id]

	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("manufacturer %s not found", id))
	}

	m.AvgFulfillmentDays = avgFulfillmentDays
	m.OnTimeRate = onTimeRate
	m.UpdatedAt = at
	return nil
}

// GetProduct retrieves a product by its ID
func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product %s not found", id))
	}

	c := *p
	return &c, nil
}

// ListProducts returns the catalog, optionally for one manufacturer
func (s *Store) ListProducts(ctx context.Context, manufacturerID string) ([]*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Product
	for _, p := range s.products {
		if manufacturerID == "" || p.ManufacturerID == manufacturerID {
			c := *p
			out = append(out, &c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetAlert retrieves an alert by its ID
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("alert %s not found", id))
	}

	return a.Clone(), nil
}

// ListAlerts returns alerts matching filter
func (s *Store) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, a := range s.alerts {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}

	models.SortAlerts(out)
	return page(out, filter.Limit, 0), nil
}

// CountAlerts counts alerts matching filter
func (s *Store) CountAlerts(ctx context.Context, filter models.AlertFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.alerts {
		if filter.Matches(a) {
			n++
		}
	}
	return n, nil
}

// HasOpenAlert reports whether the order has an unresolved alert of the given type
func (s *Store) HasOpenAlert(ctx context.Context, orderID string, alertType models.AlertType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.openAlertsLocked(orderID) {
		if a.Type == alertType {
			return true, nil
		}
	}
	return false, nil
}

// ResolveAlert applies fn to a copy of the alert and commits it with its effects
func (s *Store) ResolveAlert(ctx context.Context, id string, fn lifecycle.AlertFunc) (*models.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.alerts[id]

	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("alert %s not found", id))
	}

	working := current.Clone()
	effects, err := fn(working)

	if err != nil {
		return nil, err
	}

	if effects == nil {
		return current.Clone(), nil
	}

	s.alerts[id] = working
	s.applyLocked(effects)

	return working.Clone(), nil
}

// ListEmailLogs returns logged emails, newest first
func (s *Store) ListEmailLogs(ctx context.Context, filter models.EmailFilter) ([]*models.EmailLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EmailLog
	for i := len(s.emails) - 1; i >= 0; i-- {
		if e := s.emails[i]; filter.Matches(e) {
			c := *e
			out = append(out, &c)
		}
	}
	return page(out, filter.Limit, 0), nil
}

// ListActivityLogs returns the activity trail, newest first
func (s *Store) ListActivityLogs(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ActivityLog
	for i := len(s.activities) - 1; i >= 0; i-- {
		if a := s.activities[i]; filter.Matches(a) {
			c := *a
			out = append(out, &c)
		}
	}
	return page(out, filter.Limit, 0), nil
}

func (s *Store) openAlertsLocked(orderID string) []*models.Alert {
	var open []*models.Alert
	for _, a := range s.alerts {
		if !a.Resolved && a.OrderID != nil && *a.OrderID == orderID {
			open = append(open, a.Clone())
		}
	}
	return open
}

func (s *Store) applyLocked(effects *lifecycle.Effects) {
	if effects == nil {
		return
	}

	for _, a := range effects.Alerts {
		s.alerts[a.ID] = a.Clone()
	}

	for _, e := range effects.Emails {
		c := *e
		s.emails = append(s.emails, &c)
	}

	for _, a := range effects.Activities {
		c := *a
		s.activities = append(s.activities, &c)
	}

	for _, msg := range effects.Events {
		s.outbox.append(msg)
	}
}

func sortOrders(orders []*models.Order, by models.OrderSort) {
	switch by {
	case models.SortAssignedAsc:
		sort.SliceStable(orders, func(i, j int) bool {
			return timeBefore(orders[i].AssignedAt, orders[j].AssignedAt, orders[i].ID < orders[j].ID)
		})
	case models.SortShippedDesc:
		sort.SliceStable(orders, func(i, j int) bool {
			a, b := orders[i].ShippedAt, orders[j].ShippedAt
			if a != nil && b != nil && !a.Equal(*b) {
				return a.After(*b)
			}
			return timeBefore(a, b, orders[i].ID < orders[j].ID)
		})
	default:
		sort.SliceStable(orders, func(i, j int) bool {
			if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
				return orders[i].CreatedAt.After(orders[j].CreatedAt)
			}
			return orders[i].ID < orders[j].ID
		})
	}
}

// timeBefore sorts nil stamps last and returns tie for equal stamps
func timeBefore(a, b *time.Time, tie bool) bool {
	switch {
	case a == nil && b == nil:
		return tie
	case a == nil:
		return false
	case b == nil:
		return true
	case a.Equal(*b):
		return tie
	default:
		return a.Before(*b)
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items
}
