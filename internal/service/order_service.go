// Package service assembles the read models served by the API
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// OrderPage is one page of an order listing with the unpaged total
type OrderPage struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// OrderService handles order queries
type OrderService struct {
	store  lifecycle.Store
	logger logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(store lifecycle.Store, logger logger.Logger) *OrderService {
	return &OrderService{
		store:  store,
		logger: logger,
	}
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.store.GetOrder(ctx, id)
}

// ListOrders retrieves a page of orders and the total matching filter
func (s *OrderService) ListOrders(ctx context.Context, filter models.OrderFilter) (*OrderPage, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperrors.NewInvalidInputError("limit and offset must not be negative")
	}

	filter.Limit = pageSize(filter.Limit)

	orders, err := nonNil(s.store.ListOrders(ctx, filter))

	if err != nil {
		return nil, err
	}

	total, err := s.store.CountOrders(ctx, filter)

	if err != nil {
		return nil, err
	}

	return &OrderPage{Orders: orders, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// GetOrderDetail retrieves an order with its product, manufacturer and audit trail
func (s *OrderService) GetOrderDetail(ctx context.Context, id string) (*models.OrderDetail, error) {
	order, err := s.store.GetOrder(ctx, id)

	if err != nil {
		return nil, err
	}

	detail := &models.OrderDetail{Order: order}

	// A dangling product or manufacturer reference is logged, not fatal
	if detail.Product, err = s.store.GetProduct(ctx, order.ProductID); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn("Order references a missing product", "orderID", order.ID, "productID", order.ProductID)
	}

	if ref := order.ManufacturerRef(); ref != "" {
		if detail.Manufacturer, err = s.store.GetManufacturer(ctx, ref); err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				return nil, err
			}
			s.logger.Warn("Order references a missing manufacturer", "orderID", order.ID, "manufacturerID", ref)
		}
	}

	if detail.Alerts, err = nonNil(s.store.ListAlerts(ctx, models.AlertFilter{OrderID: id})); err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	// Children are newest first
	sort.SliceStable(detail.Alerts, func(i, j int) bool {
		return detail.Alerts[i].CreatedAt.After(detail.Alerts[j].CreatedAt)
	})

	if detail.Emails, err = nonNil(s.store.ListEmailLogs(ctx, models.EmailFilter{OrderID: id})); err != nil {
		return nil, fmt.Errorf("failed to load email logs: %w", err)
	}

	if detail.Activities, err = nonNil(s.store.ListActivityLogs(ctx, models.ActivityFilter{OrderID: id})); err != nil {
		return nil, fmt.Errorf("failed to load activity logs: %w", err)
	}

	return detail, nil
}
