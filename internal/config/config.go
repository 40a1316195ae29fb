package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Env      string `envconfig:"APP_ENV" default:"development"`

	DB       DBConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Market   MarketConfig
	Outbox   OutboxConfig
	WhatsApp WhatsAppConfig
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"marketplace"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// RedisConfig holds the notification de-duplication store settings
type RedisConfig struct {
	URL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// KafkaConfig holds the event publishing settings
type KafkaConfig struct {
	Brokers     []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	OrdersTopic string   `envconfig:"KAFKA_ORDERS_TOPIC" default:"order-events"`

	// PaymentsTopic carries the payment provider's confirmations
	PaymentsTopic string `envconfig:"KAFKA_PAYMENTS_TOPIC" default:"payment-events"`
	ConsumerGroup string `envconfig:"KAFKA_CONSUMER_GROUP" default:"marketplace-orders"`
}

// MarketConfig holds the money and payout rules
type MarketConfig struct {
	FeeRatePercent      decimal.Decimal `envconfig:"PLATFORM_FEE_PERCENT" default:"5"`
	MinOrderTotal       int64           `envconfig:"MIN_ORDER_TOTAL" default:"400000"`
	PayoutHold          time.Duration   `envconfig:"PAYOUT_HOLD" default:"24h"`
	PayoutSweepInterval time.Duration   `envconfig:"PAYOUT_SWEEP_INTERVAL" default:"1m"`
}

// OutboxConfig holds the outbox processor settings
type OutboxConfig struct {
	PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"10"`
	MaxRetries   int           `envconfig:"OUTBOX_MAX_RETRIES" default:"3"`
	ClaimLease   time.Duration `envconfig:"OUTBOX_CLAIM_LEASE" default:"5m"`
}

// WhatsAppConfig holds the messaging gateway settings
type WhatsAppConfig struct {
	APIURL   string `envconfig:"WHATSAPP_API_URL"`
	Username string `envconfig:"WHATSAPP_USERNAME"`
	Password string `envconfig:"WHATSAPP_PASSWORD"`
	Path     string `envconfig:"WHATSAPP_PATH" default:"/send/message"`
	DryRun   *bool  `envconfig:"NOTIFY_DRY_RUN"`
}

// Load reads .env (if present) and the environment into a Config
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	rate := c.Market.FeeRatePercent
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %s", rate)
	}

	// orders.platform_fee_rate keeps two decimal places
	if !rate.Equal(rate.Round(2)) {
		return fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %s has more than 2 decimal places", rate)
	}

	if c.Market.MinOrderTotal < 0 {
		return fmt.Errorf("invalid MIN_ORDER_TOTAL: %d", c.Market.MinOrderTotal)
	}

	if c.Outbox.PollInterval <= 0 || c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox poll interval and batch size must be positive")
	}

	if c.Outbox.ClaimLease <= 2*c.Outbox.PollInterval+30*time.Second {
		return fmt.Errorf("OUTBOX_CLAIM_LEASE must be longer than a batch (%s)", 2*c.Outbox.PollInterval+30*time.Second)
	}

	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// NotifyDryRun reports whether notifications should only be logged.
// Unset means dry run everywhere except production.
func (c *Config) NotifyDryRun() bool {
	if c.WhatsApp.DryRun != nil {
		return *c.WhatsApp.DryRun
	}

	return !c.IsProduction() || c.WhatsApp.APIURL == ""
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
