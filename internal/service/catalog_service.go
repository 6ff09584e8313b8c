package service

import (
	"context"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// CatalogService serves manufacturers, products and the audit logs
type CatalogService struct {
	store  lifecycle.Store
	logger logger.Logger
}

// NewCatalogService creates a new CatalogService
func NewCatalogService(store lifecycle.Store, logger logger.Logger) *CatalogService {
	return &CatalogService{store: store, logger: logger}
}

func (s *CatalogService) GetManufacturer(ctx context.Context, id string) (*models.Manufacturer, error) {
	return s.store.GetManufacturer(ctx, id)
}

func (s *CatalogService) ListManufacturers(ctx context.Context) ([]*models.Manufacturer, error) {
	return nonNil(s.store.ListManufacturers(ctx))
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// ListProducts lists every product, or those of one manufacturer when manufacturerID is set
func (s *CatalogService) ListProducts(ctx context.Context, manufacturerID string) ([]*models.Product, error) {
	if manufacturerID != "" {
		if _, err := s.store.GetManufacturer(ctx, manufacturerID); err != nil {
			return nil, err
		}
	}
	return nonNil(s.store.ListProducts(ctx, manufacturerID))
}

// ListEmailLogs lists email logs newest first
func (s *CatalogService) ListEmailLogs(ctx context.Context, filter models.EmailFilter) ([]*models.EmailLog, error) {
	filter.Limit = pageSize(filter.Limit)
	return nonNil(s.store.ListEmailLogs(ctx, filter))
}

// ListActivityLogs lists activity logs newest first
func (s *CatalogService) ListActivityLogs(ctx context.Context, filter models.ActivityFilter) ([]*models.ActivityLog, error) {
	filter.Limit = pageSize(filter.Limit)
	return nonNil(s.store.ListActivityLogs(ctx, filter))
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// nonNil keeps empty listings serializing as [] rather than null
func nonNil[T any](items []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
