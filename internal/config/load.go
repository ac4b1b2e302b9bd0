package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Size cap defaults in bytes.
const (
	defaultMaxHTMLBytes = 5 * 1024 * 1024
	defaultMaxFeedBytes = 2 * 1024 * 1024
	defaultMaxJSONBytes = 10 * 1024 * 1024
)

// Load reads configuration from the optional path, config.yml in the
// search path, environment variables (JOBCRAWL_ prefix, section keys
// joined by underscores), and a best-effort .env file.
func Load(path string) (*Config, error) {
	// .env is a developer convenience; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JOBCRAWL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.jobcrawl")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine when no explicit path was given;
		// defaults plus env carry us.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, &LoadError{File: path, Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "jobcrawl")
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.pipeline_version", "1.0.0")

	// Server defaults
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeoutSec*time.Second)
	v.SetDefault("server.write_timeout", defaultWriteTimeoutSec*time.Second)
	v.SetDefault("server.idle_timeout", defaultIdleTimeoutSec*time.Second)

	// Database defaults
	v.SetDefault("database.host", defaultDBHost)
	v.SetDefault("database.port", defaultDBPort)
	v.SetDefault("database.user", defaultDBUser)
	v.SetDefault("database.database", defaultDBName)
	v.SetDefault("database.sslmode", defaultDBSSLMode)
	v.SetDefault("database.max_connections", defaultDBMaxConns)
	v.SetDefault("database.max_idle_connections", defaultDBMaxIdleConns)
	v.SetDefault("database.connection_max_lifetime", defaultDBConnMaxLifetimeM*time.Minute)

	// Elasticsearch defaults
	v.SetDefault("elasticsearch.url", defaultESURL)
	v.SetDefault("elasticsearch.index_name", defaultESIndex)
	v.SetDefault("elasticsearch.max_retries", defaultESMaxRetries)
	v.SetDefault("elasticsearch.queue_size", defaultESQueueSize)
	v.SetDefault("elasticsearch.timeout", 30*time.Second)
	v.SetDefault("elasticsearch.retry_backoff", time.Second)

	// Raw-page store defaults
	v.SetDefault("rawstore.backend", "fs")
	v.SetDefault("rawstore.root", "./rawpages")
	v.SetDefault("rawstore.retention_days", 90)
	v.SetDefault("rawstore.minio.endpoint", "localhost:9000")
	v.SetDefault("rawstore.minio.bucket_name", "jobcrawl-rawpages")
	v.SetDefault("rawstore.minio.use_ssl", false)

	// Fetch defaults
	v.SetDefault("fetch.user_agent", defaultUserAgent)
	v.SetDefault("fetch.html_timeout", 30*time.Second)
	v.SetDefault("fetch.feed_timeout", 15*time.Second)
	v.SetDefault("fetch.api_timeout", 20*time.Second)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.max_html_bytes", defaultMaxHTMLBytes)
	v.SetDefault("fetch.max_feed_bytes", defaultMaxFeedBytes)
	v.SetDefault("fetch.max_json_bytes", defaultMaxJSONBytes)
	v.SetDefault("fetch.respect_robots", true)

	// Browser defaults
	v.SetDefault("browser.enabled", false)
	v.SetDefault("browser.pool_size", 2)
	v.SetDefault("browser.render_timeout", 30*time.Second)
	v.SetDefault("browser.network_idle_window", 500*time.Millisecond)
	v.SetDefault("browser.network_idle_ceiling", 15*time.Second)

	// Extraction defaults
	v.SetDefault("extraction.detail_fetch_cap", 50)

	// AI defaults
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "claude-sonnet-4-5")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.temperature", 0.0)
	v.SetDefault("ai.tick_budget", 200)
	v.SetDefault("ai.cache_size", 1024)
	v.SetDefault("ai.request_timeout", 30*time.Second)

	// Geocode defaults
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.provider_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.rate_per_sec", 1.0)
	v.SetDefault("geocode.max_wait", 5*time.Second)
	v.SetDefault("geocode.cache_size", 2048)

	// Scheduler defaults
	v.SetDefault("scheduler.tick_interval", 60*time.Second)
	v.SetDefault("scheduler.max_due_sources", 10)
	v.SetDefault("scheduler.global_concurrency", 8)
	v.SetDefault("scheduler.per_domain_concurrency", 1)
	v.SetDefault("scheduler.run_timeout", 15*time.Minute)
	v.SetDefault("scheduler.backoff_base", 30*time.Minute)
	v.SetDefault("scheduler.backoff_max", 24*time.Hour)
	v.SetDefault("scheduler.auto_pause_threshold", 10)
	v.SetDefault("scheduler.nochange_threshold", 3)
	v.SetDefault("scheduler.max_frequency_days", 14)
	v.SetDefault("scheduler.lease_factor", 2)

	// Logging defaults
	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.format", defaultLogFormat)
	v.SetDefault("logging.development", false)
}
