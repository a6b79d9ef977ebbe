// Package config loads and validates pipeline service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 30 * time.Second

	defaultProviderRate  = 5
	defaultProviderBurst = 10

	defaultLeadFetchConcurrency = 4
	defaultEmailSendConcurrency = 2
	defaultPromoteInterval      = time.Second
	defaultStaleJobAge          = 15 * time.Minute
	defaultReaperInterval       = time.Minute
)

// Config is the top-level configuration for both the api and worker binaries.
type Config struct {
	Debug    bool           `yaml:"debug"` // controls log level and format
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Provider ProviderConfig `yaml:"provider"`
	Sheet    SheetConfig    `yaml:"sheet"`
	Queue    QueueConfig    `yaml:"queue"`
	Runner   RunnerConfig   `yaml:"runner"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g. ":8090"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default 30s
}

// DatabaseConfig configures the Postgres connection.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// RedisConfig configures the queue's Redis backend.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig configures outbound calls to the lead-data provider.
type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	RatePerSecond int           `yaml:"rate_per_second"` // token refill rate
	Burst         int           `yaml:"burst"`           // bucket capacity
	Timeout       time.Duration `yaml:"timeout"`
}

// SheetConfig configures the external spreadsheet append service.
type SheetConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// QueueConfig configures the worker pools consuming the two named queues.
type QueueConfig struct {
	LeadFetchConcurrency int           `yaml:"lead_fetch_concurrency"`
	EmailSendConcurrency int           `yaml:"email_send_concurrency"`
	PromoteInterval      time.Duration `yaml:"promote_interval"` // delayed-task promotion tick
}

// RunnerConfig configures job execution housekeeping.
type RunnerConfig struct {
	StaleJobAge    time.Duration `yaml:"stale_job_age"`   // running jobs older than this are reset by the reaper
	ReaperInterval time.Duration `yaml:"reaper_interval"` // reaper tick
}

// DSN builds the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Validate checks the configuration and returns an error on the first
// problem found.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Provider.RatePerSecond <= 0 {
		return fmt.Errorf("provider.rate_per_second must be positive, got %d", c.Provider.RatePerSecond)
	}
	if c.Provider.Burst < 1 {
		// A burst below one token deadlocks every acquisition.
		return fmt.Errorf("provider.burst must be at least 1, got %d", c.Provider.Burst)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8090"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Provider.RatePerSecond == 0 {
		cfg.Provider.RatePerSecond = defaultProviderRate
	}
	if cfg.Provider.Burst == 0 {
		cfg.Provider.Burst = defaultProviderBurst
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Sheet.Timeout == 0 {
		cfg.Sheet.Timeout = 15 * time.Second
	}
	if cfg.Queue.LeadFetchConcurrency == 0 {
		cfg.Queue.LeadFetchConcurrency = defaultLeadFetchConcurrency
	}
	if cfg.Queue.EmailSendConcurrency == 0 {
		cfg.Queue.EmailSendConcurrency = defaultEmailSendConcurrency
	}
	if cfg.Queue.PromoteInterval == 0 {
		cfg.Queue.PromoteInterval = defaultPromoteInterval
	}
	if cfg.Runner.StaleJobAge == 0 {
		cfg.Runner.StaleJobAge = defaultStaleJobAge
	}
	if cfg.Runner.ReaperInterval == 0 {
		cfg.Runner.ReaperInterval = defaultReaperInterval
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
	if v := os.Getenv("LEAD_FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Queue.LeadFetchConcurrency = n
		}
	}
}

// Load reads the yaml config at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses common boolean string representations: "true", "1" and
// "yes" (case-insensitive) are true, everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
