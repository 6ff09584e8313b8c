// Package api serves the admin and manufacturer portal HTTP API
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vaidashi/fulfillment-tracker/internal/alerts"
	"github.com/vaidashi/fulfillment-tracker/internal/config"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/metrics"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/internal/outbox"
	"github.com/vaidashi/fulfillment-tracker/internal/service"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
	"github.com/vaidashi/fulfillment-tracker/pkg/middleware"
)

// UserIDHeader attributes lifecycle operations to a user
const UserIDHeader = "X-User-ID"

// DeadLetterStore is the dead letter queue as the admin endpoints see it
type DeadLetterStore interface {
	outbox.DeadLetterStore
	List(ctx context.Context, status models.DeadLetterStatus, limit, offset int) ([]*models.DeadLetterMessage, error)
	Count(ctx context.Context, status models.DeadLetterStatus) (int, error)
}

// Services are the collaborators behind the HTTP handlers
type Services struct {
	Engine              *lifecycle.Engine
	Orders              *service.OrderService
	Catalog             *service.CatalogService
	Alerts              *alerts.Service
	Scanner             *alerts.Scanner
	Metrics             *metrics.Service
	DeadLetters         DeadLetterStore
	DeadLetterProcessor *outbox.DeadLetterProcessor
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Background is a component that runs alongside the HTTP server
type Background interface {
	Start()
	Stop()
}

type Server struct {
	config              *config.Config
	logger              logger.Logger
	router              *mux.Router
	httpServer          *http.Server
	services            Services
	rateLimiter         *middleware.RateLimiterMiddleware
	endpointRateLimiter *middleware.EndpointRateLimiterMiddleware
	gracefulDegradation *middleware.GracefulDegradation
	checks              map[string]HealthCheck
	background          []Background
	consumer            consumer
	closers             []func() error
}

// consumer is the Kafka consumer group, absent when Kafka is disabled
type consumer interface {
	Start() error
	Stop() error
}

// newServer builds the router over services. Background components and
// health checks are attached by the caller.
func newServer(cfg *config.Config, services Services, logger logger.Logger) *Server {
	r := mux.NewRouter()

	s := &Server{
		config:   cfg,
		logger:   logger,
		router:   r,
		services: services,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		rateLimiter: middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			GlobalMaxTokens: 200,
			GlobalMaxRate:   100,
			GlobalMinRate:   10,
			GlobalThreshold: 0.8,
			IPMaxTokens:     50,
			IPRefillRate:    10,
		}, logger),
		endpointRateLimiter: middleware.NewEndpointRateLimiterMiddleware(100, 50, logger),
		gracefulDegradation: middleware.NewGracefulDegradation(logger, "/api/v1/health", "/api/v1/admin"),
		checks:              make(map[string]HealthCheck),
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the background components and then the HTTP server
func (s *Server) Start() error {
	for _, b := range s.background {
		b.Start()
	}

	if s.consumer != nil {
		if err := s.consumer.Start(); err != nil {
			s.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	for i := len(s.background) - 1; i >= 0; i-- {
		s.background[i].Stop()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	s.rateLimiter.Stop()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i](); cerr != nil {
			s.logger.Error("Error releasing resource", "error", cerr)
		}
	}

	return err
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(s.endpointRateLimiter.Middleware)
	s.router.Use(s.gracefulDegradation.Middleware)
	s.router.Use(actorMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.createOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/assign", s.assignOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/notify", s.transitionHandler(s.services.Engine.Notify)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/ship", s.shipOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/deliver", s.transitionHandler(s.services.Engine.Deliver)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/delay", s.transitionHandler(s.services.Engine.MarkDelayed)).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/escalate", s.escalateOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.transitionHandler(s.services.Engine.Cancel)).Methods(http.MethodPost)

	api.HandleFunc("/manufacturers", s.getManufacturersHandler).Methods(http.MethodGet)
	api.HandleFunc("/manufacturers/{id}", s.getManufacturerHandler).Methods(http.MethodGet)
	api.HandleFunc("/manufacturers/{id}/performance", s.getManufacturerPerformanceHandler).Methods(http.MethodGet)
	api.HandleFunc("/products", s.getProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", s.getProductHandler).Methods(http.MethodGet)

	api.HandleFunc("/alerts", s.getAlertsHandler).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.getAlertHandler).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.updateAlertHandler).Methods(http.MethodPatch)

	api.HandleFunc("/emails", s.getEmailsHandler).Methods(http.MethodGet)
	api.HandleFunc("/activity", s.getActivityHandler).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.getDashboardHandler).Methods(http.MethodGet)

	portal := api.PathPrefix("/portal/manufacturers/{id}").Subrouter()
	portal.HandleFunc("/orders", s.getPortalOrdersHandler).Methods(http.MethodGet)
	portal.HandleFunc("/orders/{orderId}/ship", s.portalShipHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/alerts/scan", s.scanAlertsHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreakerHandler).Methods(http.MethodPost)
	admin.HandleFunc("/rate-limits", s.getRateLimitsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/rate-limits", s.setEndpointRateLimitHandler).Methods(http.MethodPut)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}

// actorMiddleware carries the calling user into the lifecycle engine
func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(UserIDHeader); userID != "" {
			r = r.WithContext(lifecycle.WithActor(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}
