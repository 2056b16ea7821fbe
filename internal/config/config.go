package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete vitrina configuration.
type Config struct {
	Env       string          `yaml:"env" json:"env"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	KV        KVConfig        `yaml:"kv" json:"kv"`
	DB        DBConfig        `yaml:"db" json:"db"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Feed      FeedConfig      `yaml:"feed" json:"feed"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// CORSOrigins lists allowed origins for widget embedding.
	// Default: ["*"] (the widget runs on customer storefronts).
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// KVConfig configures the key-value store (Redis).
type KVConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// Addr returns the host:port address for the KV client.
func (k KVConfig) Addr() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// DBConfig configures the relational store (PostgreSQL).
type DBConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	Database string `yaml:"database" json:"database"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// URL returns a postgres:// connection string for the pool.
func (d DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

// SearchConfig configures query processing and result shaping.
type SearchConfig struct {
	// NGramSize is the rune window used for fuzzy fallback grams.
	NGramSize int `yaml:"ngram_size" json:"ngram_size"`

	// StopWords replaces the built-in stop-word set when non-empty.
	StopWords []string `yaml:"stop_words" json:"stop_words"`

	// DefaultLimit is the page size when the request omits limit.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit caps the requested page size.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// SuggestCap is the widget cap on suggested queries.
	SuggestCap int `yaml:"suggest_cap" json:"suggest_cap"`
}

// FeedConfig configures feed download and parsing.
type FeedConfig struct {
	// Timeout is the whole-download deadline, e.g. "300s".
	Timeout string `yaml:"timeout" json:"timeout"`

	// MaxSizeMB rejects feeds larger than this many megabytes.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`

	// MaxProducts caps offers accepted from a single feed.
	MaxProducts int `yaml:"max_products" json:"max_products"`

	// RetryCount and RetryDelay drive refresh attempts, e.g. 3 and "60s".
	RetryCount int    `yaml:"retry_count" json:"retry_count"`
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`
}

// TimeoutDuration parses Timeout, falling back to 300s.
func (f FeedConfig) TimeoutDuration() time.Duration {
	return parseDuration(f.Timeout, 300*time.Second)
}

// RetryDelayDuration parses RetryDelay, falling back to 60s.
func (f FeedConfig) RetryDelayDuration() time.Duration {
	return parseDuration(f.RetryDelay, 60*time.Second)
}

// MaxSizeBytes returns the feed size cap in bytes.
func (f FeedConfig) MaxSizeBytes() int64 {
	return int64(f.MaxSizeMB) * 1024 * 1024
}

// SchedulerConfig configures the background feed refresher.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// InitialDelay before the first cycle, e.g. "60s".
	InitialDelay string `yaml:"initial_delay" json:"initial_delay"`

	// CheckInterval between cycles, e.g. "15m".
	CheckInterval string `yaml:"check_interval" json:"check_interval"`

	// Staleness is the feed age that triggers a refresh, e.g. "4h".
	Staleness string `yaml:"staleness" json:"staleness"`

	// Concurrency bounds projects refreshed in flight.
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// InitialDelayDuration parses InitialDelay, falling back to 60s.
func (s SchedulerConfig) InitialDelayDuration() time.Duration {
	return parseDuration(s.InitialDelay, 60*time.Second)
}

// CheckIntervalDuration parses CheckInterval, falling back to 15m.
func (s SchedulerConfig) CheckIntervalDuration() time.Duration {
	return parseDuration(s.CheckInterval, 15*time.Minute)
}

// StalenessDuration parses Staleness, falling back to 4h.
func (s SchedulerConfig) StalenessDuration() time.Duration {
	return parseDuration(s.Staleness, 4*time.Hour)
}

// AuthConfig configures token signing and key generation.
type AuthConfig struct {
	// JWTSecret signs HS256 access tokens. Empty disables the auth
	// endpoints; set via JWT_SECRET in any real deployment.
	JWTSecret string `yaml:"jwt_secret" json:"-"`

	// APIKeyPrefix prefixes generated project keys.
	APIKeyPrefix string `yaml:"api_key_prefix" json:"api_key_prefix"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"` // empty uses ~/.vitrina/logs/server.log
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		KV: KVConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 20,
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "",
			Database: "vitrina",
			PoolSize: 10,
		},
		Search: SearchConfig{
			NGramSize:    3,
			StopWords:    nil, // built-in set
			DefaultLimit: 10,
			MaxLimit:     100,
			SuggestCap:   3,
		},
		Feed: FeedConfig{
			Timeout:     "300s",
			MaxSizeMB:   500,
			MaxProducts: 1_000_000,
			RetryCount:  3,
			RetryDelay:  "60s",
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			InitialDelay:  "60s",
			CheckInterval: "15m",
			Staleness:     "4h",
			Concurrency:   5,
		},
		Auth: AuthConfig{
			JWTSecret:    "",
			APIKeyPrefix: "sk_",
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
	}
}

// DefaultConfigPath is tried when --config is not given.
const DefaultConfigPath = "configs/vitrina.yaml"

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. YAML file (path argument, or configs/vitrina.yaml if present)
//  3. Environment variables (VITRINA_* plus REDIS_*/DB_*/JWT_SECRET)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if fileExists(DefaultConfigPath) {
		if err := cfg.loadYAML(DefaultConfigPath); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Parse into a fresh struct so type errors surface before merging.
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Env != "" {
		c.Env = other.Env
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if len(other.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = other.Server.CORSOrigins
	}

	// KV
	if other.KV.Host != "" {
		c.KV.Host = other.KV.Host
	}
	if other.KV.Port != 0 {
		c.KV.Port = other.KV.Port
	}
	if other.KV.Password != "" {
		c.KV.Password = other.KV.Password
	}
	if other.KV.DB != 0 {
		c.KV.DB = other.KV.DB
	}
	if other.KV.PoolSize != 0 {
		c.KV.PoolSize = other.KV.PoolSize
	}

	// DB
	if other.DB.Host != "" {
		c.DB.Host = other.DB.Host
	}
	if other.DB.Port != 0 {
		c.DB.Port = other.DB.Port
	}
	if other.DB.User != "" {
		c.DB.User = other.DB.User
	}
	if other.DB.Password != "" {
		c.DB.Password = other.DB.Password
	}
	if other.DB.Database != "" {
		c.DB.Database = other.DB.Database
	}
	if other.DB.PoolSize != 0 {
		c.DB.PoolSize = other.DB.PoolSize
	}

	// Search
	if other.Search.NGramSize != 0 {
		c.Search.NGramSize = other.Search.NGramSize
	}
	if len(other.Search.StopWords) > 0 {
		c.Search.StopWords = other.Search.StopWords
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.SuggestCap != 0 {
		c.Search.SuggestCap = other.Search.SuggestCap
	}

	// Feed
	if other.Feed.Timeout != "" {
		c.Feed.Timeout = other.Feed.Timeout
	}
	if other.Feed.MaxSizeMB != 0 {
		c.Feed.MaxSizeMB = other.Feed.MaxSizeMB
	}
	if other.Feed.MaxProducts != 0 {
		c.Feed.MaxProducts = other.Feed.MaxProducts
	}
	if other.Feed.RetryCount != 0 {
		c.Feed.RetryCount = other.Feed.RetryCount
	}
	if other.Feed.RetryDelay != "" {
		c.Feed.RetryDelay = other.Feed.RetryDelay
	}

	// Scheduler
	// Enabled is boolean; merge it only when some scheduler key was set,
	// since yaml zero-values are indistinguishable from "absent".
	if other.Scheduler.InitialDelay != "" || other.Scheduler.CheckInterval != "" ||
		other.Scheduler.Staleness != "" || other.Scheduler.Concurrency != 0 ||
		other.Scheduler.Enabled {
		c.Scheduler.Enabled = other.Scheduler.Enabled
	}
	if other.Scheduler.InitialDelay != "" {
		c.Scheduler.InitialDelay = other.Scheduler.InitialDelay
	}
	if other.Scheduler.CheckInterval != "" {
		c.Scheduler.CheckInterval = other.Scheduler.CheckInterval
	}
	if other.Scheduler.Staleness != "" {
		c.Scheduler.Staleness = other.Scheduler.Staleness
	}
	if other.Scheduler.Concurrency != 0 {
		c.Scheduler.Concurrency = other.Scheduler.Concurrency
	}

	// Auth
	if other.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = other.Auth.JWTSecret
	}
	if other.Auth.APIKeyPrefix != "" {
		c.Auth.APIKeyPrefix = other.Auth.APIKeyPrefix
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	if other.Logging.Level != "" || other.Logging.File != "" {
		c.Logging.Stderr = other.Logging.Stderr
	}
}

// applyEnvOverrides applies environment variable overrides.
// VITRINA_* names cover service tunables; REDIS_*, DB_* and JWT_SECRET
// follow the conventional names deployments already set.
func (c *Config) applyEnvOverrides() {
	// Server
	if v := os.Getenv("VITRINA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("VITRINA_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("VITRINA_ENV"); v != "" {
		c.Env = v
	}

	// KV
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.KV.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.KV.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.KV.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.KV.DB = n
		}
	}

	// DB
	if v := os.Getenv("DB_HOST"); v != "" {
		c.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.DB.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.DB.Database = v
	}

	// Search
	if v := os.Getenv("VITRINA_NGRAM_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 2 {
			c.Search.NGramSize = n
		}
	}
	if v := os.Getenv("VITRINA_STOP_WORDS"); v != "" {
		c.Search.StopWords = splitCSV(v)
	}
	if v := os.Getenv("VITRINA_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxLimit = n
		}
	}
	if v := os.Getenv("VITRINA_SUGGEST_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.SuggestCap = n
		}
	}

	// Feed
	if v := os.Getenv("VITRINA_FEED_TIMEOUT"); v != "" {
		c.Feed.Timeout = v
	}
	if v := os.Getenv("VITRINA_FEED_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Feed.MaxSizeMB = n
		}
	}

	// Scheduler
	if v := os.Getenv("VITRINA_SCHEDULER_ENABLED"); v != "" {
		c.Scheduler.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("VITRINA_CHECK_INTERVAL"); v != "" {
		c.Scheduler.CheckInterval = v
	}
	if v := os.Getenv("VITRINA_STALENESS"); v != "" {
		c.Scheduler.Staleness = v
	}
	if v := os.Getenv("VITRINA_SCHEDULER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scheduler.Concurrency = n
		}
	}

	// Auth
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("VITRINA_API_KEY_PREFIX"); v != "" {
		c.Auth.APIKeyPrefix = v
	}

	// Logging
	if v := os.Getenv("VITRINA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VITRINA_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.KV.Port <= 0 || c.KV.Port > 65535 {
		return fmt.Errorf("kv.port must be in 1..65535, got %d", c.KV.Port)
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("db.port must be in 1..65535, got %d", c.DB.Port)
	}

	if c.Search.NGramSize < 2 {
		return fmt.Errorf("search.ngram_size must be at least 2, got %d", c.Search.NGramSize)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be >= default_limit, got %d < %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.SuggestCap <= 0 {
		return fmt.Errorf("search.suggest_cap must be positive, got %d", c.Search.SuggestCap)
	}

	durations := map[string]string{
		"feed.timeout":             c.Feed.Timeout,
		"feed.retry_delay":         c.Feed.RetryDelay,
		"scheduler.initial_delay":  c.Scheduler.InitialDelay,
		"scheduler.check_interval": c.Scheduler.CheckInterval,
		"scheduler.staleness":      c.Scheduler.Staleness,
	}
	for name, s := range durations {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, s)
		}
	}

	if c.Feed.MaxSizeMB <= 0 {
		return fmt.Errorf("feed.max_size_mb must be positive, got %d", c.Feed.MaxSizeMB)
	}
	if c.Feed.MaxProducts <= 0 {
		return fmt.Errorf("feed.max_products must be positive, got %d", c.Feed.MaxProducts)
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be positive, got %d", c.Scheduler.Concurrency)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// parseDuration parses s, returning fallback when s is empty or invalid.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
