// Package config provides configuration management for the jobcrawl
// application. It handles loading, validation, and access to configuration
// values from YAML files and environment variables via Viper.
package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServerPort         = 8060
	defaultReadTimeoutSec     = 30
	defaultWriteTimeoutSec    = 30
	defaultIdleTimeoutSec     = 60
	defaultUserAgent          = "JobCrawl/1.0 (+https://github.com/jonesrussell/jobcrawl)"
	defaultDBHost             = "localhost"
	defaultDBPort             = 5432
	defaultDBUser             = "postgres"
	defaultDBName             = "jobcrawl"
	defaultDBSSLMode          = "disable"
	defaultDBMaxConns         = 25
	defaultDBMaxIdleConns     = 5
	defaultDBConnMaxLifetimeM = 5
	defaultESURL              = "http://localhost:9200"
	defaultESIndex            = "jobs"
	defaultESMaxRetries       = 5
	defaultESQueueSize        = 1024
	defaultLogLevel           = "info"
	defaultLogFormat          = "json"
)

// Config is the root configuration for all commands.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	RawStore      RawStoreConfig      `mapstructure:"rawstore"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Browser       BrowserConfig       `mapstructure:"browser"`
	Extraction    ExtractionConfig    `mapstructure:"extraction"`
	AI            AIConfig            `mapstructure:"ai"`
	Geocode       GeocodeConfig       `mapstructure:"geocode"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name            string `mapstructure:"name"`
	Environment     string `mapstructure:"environment"`
	Debug           bool   `mapstructure:"debug"`
	PipelineVersion string `mapstructure:"pipeline_version"`
}

// ServerConfig holds HTTP server settings for the admin surface.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// GetAddress returns the listen address, constructed from the port when
// no explicit address is set.
func (s *ServerConfig) GetAddress() string {
	if s.Address != "" {
		return s.Address
	}
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// ElasticsearchConfig holds search-index sink settings.
type ElasticsearchConfig struct {
	URL          string        `mapstructure:"url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"` // supports SECRET:NAME indirection
	APIKey       string        `mapstructure:"api_key"`  // supports SECRET:NAME indirection
	IndexName    string        `mapstructure:"index_name"`
	MaxRetries   int           `mapstructure:"max_retries"`
	QueueSize    int           `mapstructure:"queue_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// RawStoreConfig selects and configures the raw-page store backend.
type RawStoreConfig struct {
	Backend       string      `mapstructure:"backend"` // fs or minio
	Root          string      `mapstructure:"root"`    // fs backend root directory
	RetentionDays int         `mapstructure:"retention_days"`
	MinIO         MinIOConfig `mapstructure:"minio"`
}

// MinIOConfig holds object-store settings for the raw-page store.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// FetchConfig holds per-adapter fetch settings.
type FetchConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	HTMLTimeout   time.Duration `mapstructure:"html_timeout"`
	FeedTimeout   time.Duration `mapstructure:"feed_timeout"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	MaxHTMLBytes  int64         `mapstructure:"max_html_bytes"`
	MaxFeedBytes  int64         `mapstructure:"max_feed_bytes"`
	MaxJSONBytes  int64         `mapstructure:"max_json_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// BrowserConfig holds headless-browser rendering settings.
type BrowserConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	PoolSize           int           `mapstructure:"pool_size"`
	RenderTimeout      time.Duration `mapstructure:"render_timeout"`
	NetworkIdleWindow  time.Duration `mapstructure:"network_idle_window"`
	NetworkIdleCeiling time.Duration `mapstructure:"network_idle_ceiling"`
	ChromePath         string        `mapstructure:"chrome_path"`
}

// ExtractionConfig holds cascade settings.
type ExtractionConfig struct {
	DetailFetchCap int `mapstructure:"detail_fetch_cap"` // detail fetches per run
}

// AIConfig holds the AI fallback capability settings.
type AIConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIKey         string        `mapstructure:"api_key"` // supports SECRET:NAME indirection
	Model          string        `mapstructure:"model"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	TickBudget     int           `mapstructure:"tick_budget"` // AI calls per scheduler tick
	CacheSize      int           `mapstructure:"cache_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GeocodeConfig holds geocoding enrichment settings.
type GeocodeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ProviderURL string        `mapstructure:"provider_url"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	CacheSize   int           `mapstructure:"cache_size"`
	Email       string        `mapstructure:"email"` // contact for provider usage policy
}

// SchedulerConfig holds the run-dispatch settings.
type SchedulerConfig struct {
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	MaxDueSources        int           `mapstructure:"max_due_sources"`
	GlobalConcurrency    int           `mapstructure:"global_concurrency"`
	PerDomainConcurrency int           `mapstructure:"per_domain_concurrency"`
	RunTimeout           time.Duration `mapstructure:"run_timeout"`
	BackoffBase          time.Duration `mapstructure:"backoff_base"`
	BackoffMax           time.Duration `mapstructure:"backoff_max"`
	AutoPauseThreshold   int           `mapstructure:"auto_pause_threshold"`
	NochangeThreshold    int           `mapstructure:"nochange_threshold"`
	MaxFrequencyDays     int           `mapstructure:"max_frequency_days"`
	LeaseFactor          int           `mapstructure:"lease_factor"` // lease = factor x run timeout
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// Validate checks the configuration for a DB-backed command.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return &ValidationError{Field: "database.host", Reason: "is required"}
	}
	if c.Database.Database == "" {
		return &ValidationError{Field: "database.database", Reason: "is required"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Value: c.Server.Port, Reason: "must be a valid port"}
	}
	if c.RawStore.Backend != "fs" && c.RawStore.Backend != "minio" {
		return &ValidationError{Field: "rawstore.backend", Value: c.RawStore.Backend, Reason: "must be fs or minio"}
	}
	if c.Scheduler.GlobalConcurrency <= 0 {
		return &ValidationError{Field: "scheduler.global_concurrency", Value: c.Scheduler.GlobalConcurrency, Reason: "must be positive"}
	}
	if c.Scheduler.PerDomainConcurrency <= 0 {
		return &ValidationError{Field: "scheduler.per_domain_concurrency", Value: c.Scheduler.PerDomainConcurrency, Reason: "must be positive"}
	}
	return nil
}
