// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SEVAL_HOST" yaml:"host"`
	Port int    `envconfig:"SEVAL_PORT" yaml:"port"`

	// Document store configuration
	Store StoreConfig `yaml:"store"`

	// Qdrant configuration (search backend)
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Evaluation configuration
	Evaluation EvaluationConfig `yaml:"evaluation"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	Type     string `envconfig:"SEVAL_STORE_TYPE" yaml:"type"`
	Path     string `envconfig:"SEVAL_STORE_PATH" yaml:"path"`
	RedisURL string `envconfig:"SEVAL_STORE_REDIS_URL" yaml:"redis_url"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL              string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey           string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	CollectionPrefix string `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SEVAL_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SEVAL_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"SEVAL_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"SEVAL_BUS_EVENT_LOG" yaml:"event_log"`
}

// EvaluationConfig holds evaluation defaults.
type EvaluationConfig struct {
	DefaultKs   []int `yaml:"default_ks"`
	DefaultSize int   `envconfig:"SEVAL_DEFAULT_SIZE" yaml:"default_size"`
	MaxSize     int   `envconfig:"SEVAL_MAX_SIZE" yaml:"max_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SEVAL_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SEVAL_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey      string `envconfig:"SEVAL_API_KEY" yaml:"api_key"`
	RateLimit   int    `envconfig:"SEVAL_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"SEVAL_CORS_ORIGINS" yaml:"cors_origins"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	MetricsEnabled bool   `envconfig:"SEVAL_METRICS_ENABLED" yaml:"metrics_enabled"`
	MetricsPath    string `envconfig:"SEVAL_METRICS_PATH" yaml:"metrics_path"`
	HistoryURL     string `envconfig:"SEVAL_METRICS_HISTORY_URL" yaml:"history_url"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Store = StoreConfig{
		Type:     "memory",
		Path:     "./data/indices",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Qdrant = QdrantConfig{
		URL:              "http://localhost:6333",
		CollectionPrefix: "seval_",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Evaluation = EvaluationConfig{
		DefaultKs:   []int{1, 3, 5, 10},
		DefaultSize: 10,
		MaxSize:     1000,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Observability = ObservabilityConfig{
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Store validation
	validStoreTypes := map[string]bool{"memory": true, "file": true, "redis": true}
	if !validStoreTypes[c.Store.Type] {
		errs = append(errs, fmt.Sprintf("invalid store type: %s (must be memory, file, or redis)", c.Store.Type))
	}

	if c.Store.Type == "file" && c.Store.Path == "" {
		errs = append(errs, "store path is required for file store")
	}

	if c.Store.Type == "redis" && c.Store.RedisURL == "" {
		errs = append(errs, "store redis_url is required for redis store")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	// Evaluation validation
	if c.Evaluation.DefaultSize < 1 {
		errs = append(errs, "default_size must be positive")
	}

	if c.Evaluation.MaxSize < c.Evaluation.DefaultSize {
		errs = append(errs, "max_size must be >= default_size")
	}

	for _, k := range c.Evaluation.DefaultKs {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("invalid metric k: %d (must be positive)", k))
			break
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
