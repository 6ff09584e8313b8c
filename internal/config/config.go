package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string
	Storage  string
	// CatalogFile is a JSON manufacturer and product catalog loaded at startup
	CatalogFile string
	Timezone    *time.Location
	DB          DBConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Alerts      AlertsConfig
	Outbox      OutboxConfig
	MailRelay   MailRelayConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// KafkaConfig holds the event bus configuration
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	OrdersTopic   string
	ConsumerGroup string
	ClientID      string
}

// RedisConfig holds the metrics cache configuration
type RedisConfig struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	MetricsTTL time.Duration
}

// AlertsConfig holds the alert policy thresholds
type AlertsConfig struct {
	FulfillmentThreshold time.Duration
	DelayThreshold       time.Duration
	// ScanInterval of zero disables the background scanner
	ScanInterval time.Duration
}

// OutboxConfig holds the outbox relay settings
type OutboxConfig struct {
	PollingInterval    time.Duration
	BatchSize          int
	MaxRetries         int
	DLQPollingInterval time.Duration
	DLQMaxRetries      int
}

// MailRelayConfig holds the outbound mail relay settings. An empty BaseURL disables delivery.
type MailRelayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

// envParser accumulates the first parse error so Load reads linearly
type envParser struct {
	err error
}

func (p *envParser) int(key, def string) int {
	v, err := strconv.Atoi(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) bool(key, def string) bool {
	v, err := strconv.ParseBool(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) duration(key, def string) time.Duration {
	v, err := time.ParseDuration(getEnv(key, def))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return v
}

func (p *envParser) days(key, def string) time.Duration {
	v, err := strconv.ParseFloat(getEnv(key, def), 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(v * float64(24*time.Hour))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads the configuration from environment variables and returns a Config struct.
// A .env file in the working directory is applied first when present; variables
// already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	p := &envParser{}

	cfg := &Config{
		Port:        p.int("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Env:         getEnv("APP_ENV", "development"),
		Storage:     strings.ToLower(getEnv("STORAGE", StoragePostgres)),
		CatalogFile: getEnv("CATALOG_FILE", ""),
		DB: DBConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         p.int("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "fulfillment"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: p.int("DB_MAX_OPEN_CONNS", "25"),
			MaxIdleConns: p.int("DB_MAX_IDLE_CONNS", "5"),
		},
		Kafka: KafkaConfig{
			Enabled:       p.bool("KAFKA_ENABLED", "false"),
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			OrdersTopic:   getEnv("KAFKA_ORDERS_TOPIC", "fulfillment.orders"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "fulfillment-tracker"),
			ClientID:      getEnv("KAFKA_CLIENT_ID", "fulfillment-tracker"),
		},
		Redis: RedisConfig{
			Enabled:    p.bool("REDIS_ENABLED", "false"),
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         p.int("REDIS_DB", "0"),
			MetricsTTL: p.duration("REDIS_METRICS_TTL", "10m"),
		},
		Alerts: AlertsConfig{
			FulfillmentThreshold: p.days("ALERT_FULFILLMENT_THRESHOLD_DAYS", "5"),
			DelayThreshold:       p.days("ALERT_DELAY_THRESHOLD_DAYS", "3"),
			ScanInterval:         p.duration("ALERT_SCAN_INTERVAL", "15m"),
		},
		Outbox: OutboxConfig{
			PollingInterval:    p.duration("OUTBOX_POLLING_INTERVAL", "5s"),
			BatchSize:          p.int("OUTBOX_BATCH_SIZE", "10"),
			MaxRetries:         p.int("OUTBOX_MAX_RETRIES", "3"),
			DLQPollingInterval: p.duration("DLQ_POLLING_INTERVAL", "30s"),
			DLQMaxRetries:      p.int("DLQ_MAX_RETRIES", "5"),
		},
		MailRelay: MailRelayConfig{
			BaseURL: strings.TrimRight(getEnv("MAIL_RELAY_URL", ""), "/"),
			Timeout: p.duration("MAIL_RELAY_TIMEOUT", "5s"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	loc, err := time.LoadLocation(getEnv("TZ_NAME", "Local"))

	if err != nil {
		return nil, fmt.Errorf("invalid TZ_NAME: %w", err)
	}

	cfg.Timezone = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE driver %q", c.Storage)
	}

	if c.Alerts.FulfillmentThreshold <= 0 {
		return fmt.Errorf("fulfillment threshold must be positive")
	}

	if c.Alerts.DelayThreshold <= 0 {
		return fmt.Errorf("delay threshold must be positive")
	}

	if c.Alerts.ScanInterval < 0 {
		return fmt.Errorf("alert scan interval must not be negative")
	}

	if c.Outbox.BatchSize <= 0 || c.Outbox.PollingInterval <= 0 {
		return fmt.Errorf("outbox batch size and polling interval must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when Kafka is enabled")
	}

	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
