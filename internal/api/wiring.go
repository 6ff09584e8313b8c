package api

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vaidashi/fulfillment-tracker/internal/alerts"
	"github.com/vaidashi/fulfillment-tracker/internal/cache"
	"github.com/vaidashi/fulfillment-tracker/internal/catalog"
	"github.com/vaidashi/fulfillment-tracker/internal/clients"
	"github.com/vaidashi/fulfillment-tracker/internal/config"
	"github.com/vaidashi/fulfillment-tracker/internal/database"
	"github.com/vaidashi/fulfillment-tracker/internal/handlers"
	"github.com/vaidashi/fulfillment-tracker/internal/lifecycle"
	"github.com/vaidashi/fulfillment-tracker/internal/memstore"
	"github.com/vaidashi/fulfillment-tracker/internal/metrics"
	"github.com/vaidashi/fulfillment-tracker/internal/models"
	"github.com/vaidashi/fulfillment-tracker/internal/outbox"
	"github.com/vaidashi/fulfillment-tracker/internal/repository"
	"github.com/vaidashi/fulfillment-tracker/internal/service"
	"github.com/vaidashi/fulfillment-tracker/pkg/kafka"
	"github.com/vaidashi/fulfillment-tracker/pkg/logger"
	"github.com/vaidashi/fulfillment-tracker/pkg/retry"
)

var outboxEvents = []string{
	models.EventOrderCreated,
	models.EventOrderStatusChanged,
	models.EventAlertCreated,
	models.EventAlertResolved,
	models.EventEmailLogged,
}

// backend is the storage a server runs on
type backend struct {
	store       lifecycle.Store
	outbox      outbox.MessageStore
	deadLetters DeadLetterStore
	checks      map[string]HealthCheck
	closers     []func() error
}

// NewServer wires the whole service from cfg: storage, cache, lifecycle engine,
// outbox relay, Kafka and the alert scanner. Nothing runs until Start.
func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clk := clockwork.NewRealClock()

	b, err := openBackend(ctx, cfg, clk, log)

	if err != nil {
		return nil, err
	}

	var perfCache cache.PerformanceCache = cache.NopPerformanceCache{}

	if cfg.Redis.Enabled {
		rdb := cache.NewRedisClient(cfg.Redis)
		redisCache := cache.NewRedisPerformanceCache(rdb, cfg.Redis.MetricsTTL)

		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("Redis is unreachable, performance scorecards will be recomputed", "addr", cfg.Redis.Addr, "error", err)
		}

		perfCache = redisCache
		b.checks["redis"] = redisCache.Ping
		b.closers = append(b.closers, rdb.Close)
	}

	thresholds := lifecycle.Thresholds{
		Fulfillment: cfg.Alerts.FulfillmentThreshold,
		Delay:       cfg.Alerts.DelayThreshold,
	}

	engine := lifecycle.NewEngine(b.store, clk, thresholds, log)
	metricsService := metrics.NewService(b.store, perfCache, clk, cfg.Timezone, log)
	engine.AddListener(metricsService)

	scanner := alerts.NewScanner(b.store, engine, alerts.ScannerConfig{
		Interval:   cfg.Alerts.ScanInterval,
		Thresholds: thresholds,
		Clock:      clk,
	}, log)

	var publisher outbox.MessageHandler = outbox.NewLoggingHandler(log)
	var kafkaConsumer *kafka.Consumer

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, log)

		if err != nil {
			b.close(log)
			return nil, err
		}

		b.closers = append(b.closers, producer.Close)
		publisher = outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, log)

		kafkaConsumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			ClientID:      cfg.Kafka.ClientID,
		}, log)

		if err != nil {
			b.close(log)
			return nil, err
		}

		kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, handlers.NewOrderEventsHandler(metricsService, log))
	} else {
		log.Info("Kafka disabled, outbox events will be logged only")
	}

	emailHandler := publisher

	if cfg.MailRelay.BaseURL != "" {
		relay := clients.NewMailRelayClient(cfg.MailRelay.BaseURL, cfg.MailRelay.Timeout, log)
		emailHandler = outbox.Chain{outbox.NewEmailDispatchHandler(relay, log), publisher}
	}

	outboxProcessor := outbox.NewProcessor(b.outbox, b.deadLetters, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		Clock:           clk,
	}, log)

	deadLetterProcessor := outbox.NewDeadLetterProcessor(b.deadLetters, log, &outbox.DeadLetterProcessorConfig{
		PollingInterval: cfg.Outbox.DLQPollingInterval,
		BatchSize:       5,
		MaxRetries:      cfg.Outbox.DLQMaxRetries,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 1 * time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		Clock: clk,
	})

	for _, eventType := range outboxEvents {
		h := publisher
		if eventType == models.EventEmailLogged {
			h = emailHandler
		}
		outboxProcessor.RegisterHandler(eventType, h)
		deadLetterProcessor.RegisterHandler(eventType, h)
	}

	s := newServer(cfg, Services{
		Engine:              engine,
		Orders:              service.NewOrderService(b.store, log),
		Catalog:             service.NewCatalogService(b.store, log),
		Alerts:              alerts.NewService(b.store, clk, log),
		Scanner:             scanner,
		Metrics:             metricsService,
		DeadLetters:         b.deadLetters,
		DeadLetterProcessor: deadLetterProcessor,
	}, log)

	s.checks = b.checks
	s.closers = b.closers
	s.background = []Background{outboxProcessor}

	if cfg.Outbox.DLQPollingInterval > 0 {
		s.background = append(s.background, deadLetterProcessor)
	}

	if cfg.Alerts.ScanInterval > 0 {
		s.background = append(s.background, scanner)
	}

	if kafkaConsumer != nil {
		s.consumer = kafkaConsumer
	}

	return s, nil
}

// openBackend connects the configured storage and loads the catalog into it
func openBackend(ctx context.Context, cfg *config.Config, clk clockwork.Clock, log logger.Logger) (*backend, error) {
	var file *catalog.File

	if cfg.CatalogFile != "" {
		f, err := catalog.Load(cfg.CatalogFile, clk.Now().UTC())

		if err != nil {
			return nil, err
		}

		file = f
	}

	if cfg.Storage == config.StorageMemory {
		mem := memstore.New()

		if file != nil {
			for _, m := range file.Manufacturers {
				mem.PutManufacturer(m)
			}
			for _, p := range file.Products {
				mem.PutProduct(p)
			}
		}

		log.Warn("Using in-memory storage, data is lost on restart", "catalog", cfg.CatalogFile)

		return &backend{
			store:       mem,
			outbox:      mem.Outbox(),
			deadLetters: mem.DeadLetters(),
			checks:      make(map[string]HealthCheck),
		}, nil
	}

	db, err := database.New(cfg, log)

	if err != nil {
		return nil, err
	}

	b := &backend{
		checks:  map[string]HealthCheck{"database": db.Ping},
		closers: []func() error{db.Close},
	}

	if err := db.RunMigrations(ctx); err != nil {
		b.close(log)
		return nil, err
	}

	store := repository.NewStore(db, log)

	if file != nil {
		if err := importCatalog(ctx, store, file); err != nil {
			b.close(log)
			return nil, err
		}

		log.Info("Catalog imported", "manufacturers", len(file.Manufacturers), "products", len(file.Products))
	}

	b.store = store
	b.outbox = store.Outbox()
	b.deadLetters = store.DeadLetters()

	return b, nil
}

func importCatalog(ctx context.Context, store *repository.Store, file *catalog.File) error {
	for _, m := range file.Manufacturers {
		if err := store.Manufacturers().Upsert(ctx, m); err != nil {
			return fmt.Errorf("failed to import manufacturer %s: %w", m.ID, err)
		}
	}

	for _, p := range file.Products {
		if err := store.Products().Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to import product %s: %w", p.ID, err)
		}
	}

	return nil
}

func (b *backend) close(log logger.Logger) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Error("Error releasing resource", "error", err)
		}
	}
}
