package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"autoservice/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	HoldBackendMemory  = "memory"
	HoldBackendRedis   = "redis"
	HoldBackendDurable = "durable"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Holds         HoldsConfig         `yaml:"holds"`
	Booking       BookingConfig       `yaml:"booking"`
	API           APIConfig           `yaml:"api"`
	AMQP          AMQPConfig          `yaml:"amqp"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Fanout        FanoutConfig        `yaml:"fanout"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type HoldsConfig struct {
	Backend       string        `yaml:"backend"`
	Fallback      string        `yaml:"fallback"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	KeyPrefix     string        `yaml:"key_prefix"`
}

type BookingConfig struct {
	AutoConfirm     bool `yaml:"auto_confirm"`
	MaxAdvanceDays  int  `yaml:"max_advance_days"`
	CheckInLeadDays int  `yaml:"checkin_lead_days"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AMQPConfig struct {
	Enabled            bool   `yaml:"enabled"`
	URL                string `yaml:"url"`
	NotificationsQueue string `yaml:"notifications_queue"`
	PaymentsQueue      string `yaml:"payments_queue"`
}

type NotificationsConfig struct {
	Workers      int           `yaml:"workers"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type FanoutConfig struct {
	Buffer int `yaml:"buffer"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Holds.Backend {
	case HoldBackendMemory, HoldBackendDurable:
	case HoldBackendRedis:
		if c.Redis.Address == "" {
			return errors.New("holds.backend=redis requires redis.address")
		}
	default:
		return fmt.Errorf("unknown holds backend %q", c.Holds.Backend)
	}

	switch c.Holds.Fallback {
	case HoldBackendMemory, HoldBackendDurable:
	default:
		return fmt.Errorf("unknown holds fallback %q", c.Holds.Fallback)
	}

	if c.Holds.TTL <= 0 {
		return errors.New("holds.ttl must be positive")
	}

	if c.AMQP.Enabled && c.AMQP.URL == "" {
		return errors.New("amqp.enabled requires amqp.url")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Database.BusyTimeoutMS == 0 {
		c.Database.BusyTimeoutMS = 5000
	}

	if c.Holds.Backend == "" {
		c.Holds.Backend = HoldBackendMemory
		if c.Redis.Address != "" {
			c.Holds.Backend = HoldBackendRedis
		}
	}
	if c.Holds.Fallback == "" {
		c.Holds.Fallback = HoldBackendDurable
	}
	if c.Holds.TTL == 0 {
		c.Holds.TTL = models.DefaultHoldTTL * time.Second
	}
	if c.Holds.SweepInterval == 0 {
		c.Holds.SweepInterval = time.Minute
	}
	if c.Holds.KeyPrefix == "" {
		c.Holds.KeyPrefix = "slot_hold"
	}

	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.CheckInLeadDays == 0 {
		c.Booking.CheckInLeadDays = models.DefaultCheckInLeadDays
	}

	if c.AMQP.NotificationsQueue == "" {
		c.AMQP.NotificationsQueue = "notifications"
	}
	if c.AMQP.PaymentsQueue == "" {
		c.AMQP.PaymentsQueue = "payment.confirmed"
	}

	if c.Notifications.Workers == 0 {
		c.Notifications.Workers = 2
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}
	if c.Notifications.InitialDelay == 0 {
		c.Notifications.InitialDelay = time.Second
	}
	if c.Notifications.MaxDelay == 0 {
		c.Notifications.MaxDelay = 30 * time.Second
	}

	if c.Fanout.Buffer == 0 {
		c.Fanout.Buffer = models.DefaultFanoutBuffer
	}
}
