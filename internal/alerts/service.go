// Package alerts lists, resolves and periodically raises exception alerts
package alerts

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
)

// Service handles alert queries and resolution
type Service struct {
	store  lifecycle.Store
	clock  clockwork.Clock
	logger logger.Logger
}

// NewService creates a new alert service
func NewService(store lifecycle.Store, clk clockwork.Clock, logger logger.Logger) *Service {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Service{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// List returns alerts most severe first, newest first within a severity
func (s *Service) List(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	return s.store.ListAlerts(ctx, filter)
}

// Get returns one alert
func (s *Service) Get(ctx context.Context, id string) (*models.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// Resolve marks an alert resolved. Resolving an already resolved alert
// returns it unchanged. resolvedBy falls back to the actor carried by ctx.
func (s *Service) Resolve(ctx context.Context, id, resolvedBy string) (*models.Alert, error) {
	if resolvedBy == "" {
		resolvedBy = lifecycle.ActorFrom(ctx)
	}

	changed := false

	alert, err := s.store.ResolveAlert(ctx, id, func(a *models.Alert) (*lifecycle.Effects, error) {
		if a.Resolved {
			return nil, nil
		}

		now := s.clock.Now().UTC()
		if now.Before(a.CreatedAt) {
			now = a.CreatedAt
		}

		a.Resolved = true
		a.ResolvedAt = models.TimePtr(now)
		a.ResolvedBy = models.StringPtr(resolvedBy)

		event, err := models.NewAlertResolvedEvent(a, now)

		if err != nil {
			return nil, err
		}

		changed = true

		return &lifecycle.Effects{
			Activities: []*models.ActivityLog{{
				ID:        models.GenerateID(models.PrefixActivity),
				Action:    models.ActionAlertResolved,
				Details:   fmt.Sprintf("Alert resolved: %s", a.Title),
				OrderID:   a.OrderID,
				UserID:    models.StringPtr(resolvedBy),
				CreatedAt: now,
			}},
			Events: []*models.OutboxMessage{event},
		}, nil
	})

	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("Alert resolved", "alertID", alert.ID, "type", alert.Type, "resolvedBy", resolvedBy)
	}

	return alert, nil
}
