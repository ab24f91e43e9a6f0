package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Log         LogConfig         `yaml:"log"`
	Auth        AuthConfig        `yaml:"auth"`
	Reservation ReservationConfig `yaml:"reservation"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Events      EventsConfig      `yaml:"events"`
	Redis       RedisConfig       `yaml:"redis"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "pgx" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// AuthConfig holds the identity provider's token settings
type AuthConfig struct {
	Secret        string `yaml:"secret"`
	Issuer        string `yaml:"issuer"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type ReservationConfig struct {
	PaymentWindow   time.Duration `yaml:"payment_window"`
	DropOffBuffer   time.Duration `yaml:"drop_off_buffer"`
	MinEligibility  int           `yaml:"min_eligibility"`
	ExpiryBatchSize int           `yaml:"expiry_batch_size"`
}

// EligibilityConfig holds the settlement scoring constants
type EligibilityConfig struct {
	InitialScore int `yaml:"initial_score"`
	MinScore     int `yaml:"min_score"`
	MaxScore     int `yaml:"max_score"`
	MinDelta     int `yaml:"min_delta"`
	MaxDelta     int `yaml:"max_delta"`

	LatePenalty           int `yaml:"late_penalty"`
	FeePenalty            int `yaml:"fee_penalty"`
	DamagePenalty         int `yaml:"damage_penalty"`
	AccidentPenalty       int `yaml:"accident_penalty"`
	DamageLevelPenalty    int `yaml:"damage_level_penalty"`
	DirtinessLevelPenalty int `yaml:"dirtiness_level_penalty"`
	CleanReward           int `yaml:"clean_reward"`

	// One multiplier per category, ECONOMY first.
	CategoryMultipliers []float64 `yaml:"category_multipliers"`
	// Daily rate cut points in cents between consecutive categories.
	CategoryThresholds []int64 `yaml:"category_thresholds"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	Lease        time.Duration `yaml:"lease"`
	BaseBackoff  time.Duration `yaml:"base_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// GatewayConfig points at the external payment gateway
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type EventsConfig struct {
	Sink          string        `yaml:"sink"` // "kafka", "amqp" or "log"
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ConsumerGroup string        `yaml:"consumer_group"`
	AMQPURL       string        `yaml:"amqp_url"`
	Exchange      string        `yaml:"exchange"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	Lease         time.Duration `yaml:"lease"`
	Retention     time.Duration `yaml:"retention"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireStaleReservations string `yaml:"expire_stale_reservations"`
	PurgePublishedEvents    string `yaml:"purge_published_events"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Auth
	if val := os.Getenv("AUTH_SECRET"); val != "" {
		c.Auth.Secret = val
	}
	if val := os.Getenv("PAYMENT_WEBHOOK_SECRET"); val != "" {
		c.Auth.WebhookSecret = val
	}

	// Gateway
	if val := os.Getenv("PAYMENT_GATEWAY_URL"); val != "" {
		c.Gateway.BaseURL = val
	}
	if val := os.Getenv("PAYMENT_GATEWAY_API_KEY"); val != "" {
		c.Gateway.APIKey = val
	}

	// Events
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Events.Brokers = strings.Split(val, ",")
	}
	if val := os.Getenv("AMQP_URL"); val != "" {
		c.Events.AMQPURL = val
	}
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 20
	}

	// Auth validation
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required")
	}
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 characters")
	}

	if err := c.validateReservation(); err != nil {
		return err
	}
	if err := c.validateEligibility(); err != nil {
		return err
	}

	// Outbox defaults
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Outbox.Lease == 0 {
		c.Outbox.Lease = 30 * time.Second
	}
	if c.Outbox.BaseBackoff == 0 {
		c.Outbox.BaseBackoff = 2 * time.Second
	}
	if c.Outbox.MaxBackoff == 0 {
		c.Outbox.MaxBackoff = 5 * time.Minute
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 12
	}

	// Gateway
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("payment gateway base url is required")
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 10 * time.Second
	}

	// Events
	if c.Events.Sink == "" {
		c.Events.Sink = "log"
	}
	switch c.Events.Sink {
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required")
		}
	case "amqp":
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("amqp url is required")
		}
	case "log":
	default:
		return fmt.Errorf("unknown event sink: %s", c.Events.Sink)
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "reservation-events"
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "reservations"
	}
	if c.Events.ConsumerGroup == "" {
		c.Events.ConsumerGroup = "tracking"
	}
	if c.Events.PollInterval == 0 {
		c.Events.PollInterval = 500 * time.Millisecond
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 100
	}
	if c.Events.Lease == 0 {
		c.Events.Lease = 30 * time.Second
	}
	if c.Events.Retention == 0 {
		c.Events.Retention = 7 * 24 * time.Hour
	}

	// Redis
	if c.Redis.DedupTTL == 0 {
		c.Redis.DedupTTL = 24 * time.Hour
	}

	// Scheduler defaults
	if c.Scheduler.ExpireStaleReservations == "" {
		c.Scheduler.ExpireStaleReservations = "0 * * * * *" // Every minute
	}
	if c.Scheduler.PurgePublishedEvents == "" {
		c.Scheduler.PurgePublishedEvents = "0 30 3 * * *" // 3:30 AM UTC
	}

	return nil
}

func (c *Config) validateReservation() error {
	r := &c.Reservation
	if r.PaymentWindow == 0 {
		r.PaymentWindow = 15 * time.Minute
	}
	if r.DropOffBuffer == 0 {
		r.DropOffBuffer = 2 * time.Hour
	}
	if r.MinEligibility == 0 {
		r.MinEligibility = 20
	}
	if r.ExpiryBatchSize == 0 {
		r.ExpiryBatchSize = 500
	}
	if r.PaymentWindow < 0 || r.DropOffBuffer < 0 {
		return fmt.Errorf("reservation durations must be positive")
	}
	return nil
}

func (c *Config) validateEligibility() error {
	c.Eligibility.ApplyDefaults()
	e := c.Eligibility
	if e.MinScore >= e.MaxScore {
		return fmt.Errorf("eligibility min_score must be below max_score")
	}
	if e.InitialScore < e.MinScore || e.InitialScore > e.MaxScore {
		return fmt.Errorf("eligibility initial_score out of bounds")
	}
	if e.MinDelta > 0 || e.MaxDelta < 0 {
		return fmt.Errorf("eligibility delta bounds must contain zero")
	}
	if len(e.CategoryMultipliers) != 5 {
		return fmt.Errorf("eligibility needs 5 category multipliers, got %d", len(e.CategoryMultipliers))
	}
	for i := 1; i < len(e.CategoryMultipliers); i++ {
		if e.CategoryMultipliers[i] < e.CategoryMultipliers[i-1] {
			return fmt.Errorf("eligibility category multipliers must be non-decreasing")
		}
	}
	if len(e.CategoryThresholds) != 4 {
		return fmt.Errorf("eligibility needs 4 category thresholds, got %d", len(e.CategoryThresholds))
	}
	for i := 1; i < len(e.CategoryThresholds); i++ {
		if e.CategoryThresholds[i] <= e.CategoryThresholds[i-1] {
			return fmt.Errorf("eligibility category thresholds must be increasing")
		}
	}
	return nil
}

// ApplyDefaults fills zero values with the standard scoring policy.
func (e *EligibilityConfig) ApplyDefaults() {
	if e.MaxScore == 0 {
		e.MaxScore = 100
	}
	if e.InitialScore == 0 {
		e.InitialScore = 50
	}
	if e.MinDelta == 0 {
		e.MinDelta = -60
	}
	if e.MaxDelta == 0 {
		e.MaxDelta = 5
	}
	if e.LatePenalty == 0 {
		e.LatePenalty = 8
	}
	if e.FeePenalty == 0 {
		e.FeePenalty = 5
	}
	if e.DamagePenalty == 0 {
		e.DamagePenalty = 12
	}
	if e.AccidentPenalty == 0 {
		e.AccidentPenalty = 25
	}
	if e.DamageLevelPenalty == 0 {
		e.DamageLevelPenalty = 3
	}
	if e.DirtinessLevelPenalty == 0 {
		e.DirtinessLevelPenalty = 2
	}
	if e.CleanReward == 0 {
		e.CleanReward = 2
	}
	if len(e.CategoryMultipliers) == 0 {
		e.CategoryMultipliers = []float64{1.0, 1.25, 1.5, 1.75, 2.0}
	}
	if len(e.CategoryThresholds) == 0 {
		e.CategoryThresholds = []int64{4000, 6500, 9000, 15000}
	}
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
