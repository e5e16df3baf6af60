// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"QQ_HOST" yaml:"host"`
	Port int    `envconfig:"QQ_PORT" yaml:"port"`

	Log        LogConfig        `yaml:"log"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Cache      CacheConfig      `yaml:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Manager    ManagerConfig    `yaml:"manager"`
	KV         KVConfig         `yaml:"kv"`
	DocStore   DocStoreConfig   `yaml:"docstore"`
	Bus        BusConfig        `yaml:"bus"`
	Fallback   FallbackConfig   `yaml:"fallback"`
	Security   SecurityConfig   `yaml:"security"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"QQ_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"QQ_LOG_FORMAT" yaml:"format"`
}

// ClassifierConfig holds intent classifier settings.
type ClassifierConfig struct {
	// WeightIntentCap caps confidence of weight intents lacking a unit or filter.
	WeightIntentCap float64 `envconfig:"QQ_CLASSIFIER_WEIGHT_CAP" yaml:"weight_intent_cap"`
}

// ExecutorConfig holds data query execution settings.
type ExecutorConfig struct {
	MaxAttempts  int           `envconfig:"QQ_EXECUTOR_MAX_ATTEMPTS" yaml:"max_attempts"`
	RetryDelay   time.Duration `envconfig:"QQ_EXECUTOR_RETRY_DELAY" yaml:"retry_delay"`
	PreviewLimit int           `envconfig:"QQ_EXECUTOR_PREVIEW_LIMIT" yaml:"preview_limit"`
}

// CacheConfig holds similarity cache settings.
type CacheConfig struct {
	Enabled       bool          `envconfig:"QQ_CACHE_ENABLED" yaml:"enabled"`
	TTL           time.Duration `envconfig:"QQ_CACHE_TTL" yaml:"ttl"`
	MaxEntries    int           `envconfig:"QQ_CACHE_MAX_ENTRIES" yaml:"max_entries"`
	Threshold     float64       `envconfig:"QQ_CACHE_THRESHOLD" yaml:"threshold"`
	TruncateTo    int           `envconfig:"QQ_CACHE_TRUNCATE_TO" yaml:"truncate_to"`
	SweepInterval time.Duration `envconfig:"QQ_CACHE_SWEEP_INTERVAL" yaml:"sweep_interval"`
}

// MetricsConfig holds metrics collector settings.
type MetricsConfig struct {
	MaxRecords int  `envconfig:"QQ_METRICS_MAX_RECORDS" yaml:"max_records"`
	Prometheus bool `envconfig:"QQ_METRICS_PROMETHEUS" yaml:"prometheus"`
}

// ManagerConfig holds fast/fallback arbitration settings.
type ManagerConfig struct {
	ClarifyBelow      float64       `envconfig:"QQ_MANAGER_CLARIFY_BELOW" yaml:"clarify_below"`
	MinConfidence     float64       `envconfig:"QQ_MANAGER_MIN_CONFIDENCE" yaml:"min_confidence"`
	SlowResponse      time.Duration `envconfig:"QQ_MANAGER_SLOW_RESPONSE" yaml:"slow_response"`
	AllowedIntents    []string      `envconfig:"QQ_MANAGER_ALLOWED_INTENTS" yaml:"allowed_intents"`
	BackgroundWorkers int           `envconfig:"QQ_MANAGER_BACKGROUND_WORKERS" yaml:"background_workers"`
}

// KVConfig selects the durable key/value store for cache and metrics.
type KVConfig struct {
	Type       string `envconfig:"QQ_KV_TYPE" yaml:"type"`
	RedisURL   string `envconfig:"QQ_KV_REDIS_URL" yaml:"redis_url"`
	Prefix     string `envconfig:"QQ_KV_PREFIX" yaml:"prefix"`
	SQLitePath string `envconfig:"QQ_KV_SQLITE_PATH" yaml:"sqlite_path"`
	MaxBytes   int    `envconfig:"QQ_KV_MAX_BYTES" yaml:"max_bytes"` // 0 = unlimited
}

// DocStoreConfig selects the business document store.
type DocStoreConfig struct {
	Type       string `envconfig:"QQ_DOCSTORE_TYPE" yaml:"type"`
	SQLitePath string `envconfig:"QQ_DOCSTORE_SQLITE_PATH" yaml:"sqlite_path"`
	Fixture    string `envconfig:"QQ_DOCSTORE_FIXTURE" yaml:"fixture"`
}

// BusConfig holds telemetry event bus settings.
type BusConfig struct {
	Type         string `envconfig:"QQ_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"QQ_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"QQ_KAFKA_GROUP" yaml:"kafka_group"`
	EventLog     string `envconfig:"QQ_BUS_EVENT_LOG" yaml:"event_log"` // empty = disabled
}

// FallbackConfig configures the general-purpose answering endpoint.
type FallbackConfig struct {
	URL        string        `envconfig:"QQ_FALLBACK_URL" yaml:"url"`
	APIKey     string        `envconfig:"QQ_FALLBACK_API_KEY" yaml:"api_key"`
	AnswerPath string        `envconfig:"QQ_FALLBACK_ANSWER_PATH" yaml:"answer_path"`
	Timeout    time.Duration `envconfig:"QQ_FALLBACK_TIMEOUT" yaml:"timeout"`
}

// SecurityConfig holds HTTP security settings.
type SecurityConfig struct {
	RateLimit   float64 `envconfig:"QQ_RATE_LIMIT" yaml:"rate_limit"` // requests/sec per client, 0 = disabled
	RateBurst   int     `envconfig:"QQ_RATE_BURST" yaml:"rate_burst"`
	CORSOrigins string  `envconfig:"QQ_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from defaults, an optional YAML file and the
// environment, in increasing priority.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

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

// Default returns a configuration populated with defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Classifier = ClassifierConfig{
		WeightIntentCap: 0.6,
	}

	cfg.Executor = ExecutorConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Second,
		PreviewLimit: 10,
	}

	cfg.Cache = CacheConfig{
		Enabled:       true,
		TTL:           10 * time.Minute,
		MaxEntries:    100,
		Threshold:     0.75,
		TruncateTo:    50,
		SweepInterval: time.Minute,
	}

	cfg.Metrics = MetricsConfig{
		MaxRecords: 1000,
		Prometheus: true,
	}

	cfg.Manager = ManagerConfig{
		ClarifyBelow:      0.3,
		MinConfidence:     0.5,
		SlowResponse:      10 * time.Second,
		BackgroundWorkers: 4,
	}

	cfg.KV = KVConfig{
		Type:       "memory",
		RedisURL:   "redis://localhost:6379/0",
		Prefix:     "quickquery:",
		SQLitePath: "./data/quickquery-kv.db",
	}

	cfg.DocStore = DocStoreConfig{
		Type:       "memory",
		SQLitePath: "./data/quickquery-docs.db",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "quickquery",
	}

	cfg.Fallback = FallbackConfig{
		AnswerPath: "answer",
		Timeout:    60 * time.Second,
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		RateBurst:   20,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration and reports every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if c.Port < 1 || c.Port > 65535 {
		fail("port must be between 1 and 65535")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		fail("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		fail("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.Classifier.WeightIntentCap <= 0 || c.Classifier.WeightIntentCap > 1 {
		fail("classifier weight_intent_cap must be in (0, 1]")
	}

	if c.Executor.MaxAttempts < 1 {
		fail("executor max_attempts must be at least 1")
	}
	if c.Executor.RetryDelay < 0 {
		fail("executor retry_delay must not be negative")
	}

	if c.Cache.TTL <= 0 {
		fail("cache ttl must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		fail("cache max_entries must be positive")
	}
	if c.Cache.Threshold <= 0 || c.Cache.Threshold > 1 {
		fail("cache threshold must be in (0, 1]")
	}
	if c.Cache.TruncateTo < 1 || c.Cache.TruncateTo > c.Cache.MaxEntries {
		fail("cache truncate_to must be between 1 and max_entries")
	}

	if c.Metrics.MaxRecords < 1 {
		fail("metrics max_records must be positive")
	}

	if c.Manager.ClarifyBelow < 0 || c.Manager.ClarifyBelow > 1 {
		fail("manager clarify_below must be between 0 and 1")
	}
	if c.Manager.MinConfidence < c.Manager.ClarifyBelow || c.Manager.MinConfidence > 1 {
		fail("manager min_confidence must be between clarify_below and 1")
	}
	if c.Manager.BackgroundWorkers < 1 {
		fail("manager background_workers must be positive")
	}

	validKV := map[string]bool{"memory": true, "redis": true, "sqlite": true}
	if !validKV[c.KV.Type] {
		fail("invalid kv type: %s (must be memory, redis, or sqlite)", c.KV.Type)
	}

	validDocs := map[string]bool{"memory": true, "sqlite": true}
	if !validDocs[c.DocStore.Type] {
		fail("invalid docstore type: %s (must be memory or sqlite)", c.DocStore.Type)
	}

	validBus := map[string]bool{"memory": true, "kafka": true}
	if !validBus[c.Bus.Type] {
		fail("invalid bus type: %s (must be memory or kafka)", c.Bus.Type)
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		fail("kafka_brokers is required for the kafka bus")
	}

	if c.Security.RateLimit < 0 {
		fail("rate_limit must not be negative")
	}

	return result.ErrorOrNil()
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
