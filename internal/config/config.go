// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/livechat-harvester/internal/archive"
	"github.com/JakeFAU/livechat-harvester/internal/chat"
	collyfetcher "github.com/JakeFAU/livechat-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/livechat-harvester/internal/livechat"
)

// EnvPrefix is prepended to every environment override, e.g. LIVECHAT_STORAGE_PROVIDER.
const EnvPrefix = "LIVECHAT"

// Storage and queue provider names.
const (
	ProviderGCS    = "gcs"
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Storage   StorageConfig   `mapstructure:"storage"`
	GCP       GCPConfig       `mapstructure:"gcp"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Queue     QueueConfig     `mapstructure:"queue"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	DB        DBConfig        `mapstructure:"db"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig selects the object store.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// GCPConfig holds project and credentials shared by GCS and Pub/Sub clients.
type GCPConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// PathsConfig names the object layout.
type PathsConfig struct {
	Channels string `mapstructure:"channels"`
	Videos   string `mapstructure:"videos"`
	Comments string `mapstructure:"comments"`
	BigQuery string `mapstructure:"bigquery"`
}

// QueueConfig selects the crawl request transport.
type QueueConfig struct {
	Provider    string `mapstructure:"provider"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	// Concurrency is the number of in-process workers draining the memory queue.
	Concurrency int `mapstructure:"concurrency"`
}

// PubSubConfig names the crawl request topic and pull subscription.
type PubSubConfig struct {
	TopicName      string `mapstructure:"topic_name"`
	Subscription   string `mapstructure:"subscription"`
	MaxOutstanding int    `mapstructure:"max_outstanding"`
}

// CrawlerConfig governs the replay crawl.
type CrawlerConfig struct {
	MaxDurationSeconds   int               `mapstructure:"max_duration_seconds"`
	UserAgent            string            `mapstructure:"user_agent"`
	Headers              map[string]string `mapstructure:"headers"`
	RequestsPerSecond    float64           `mapstructure:"requests_per_second"`
	Burst                int               `mapstructure:"burst"`
	ReplayLabels         []string          `mapstructure:"replay_labels"`
	SkipUnrecognizedRuns bool              `mapstructure:"skip_unrecognized_runs"`
	WatchURL             string            `mapstructure:"watch_url"`
	ReplayURL            string            `mapstructure:"replay_url"`
	MaxBodyBytes         int               `mapstructure:"max_body_bytes"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// YouTubeConfig authenticates catalog discovery.
type YouTubeConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DBConfig controls the optional run ledger database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	// Cloud Run and similar platforms inject PORT.
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	paths := archive.DefaultPaths()
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 600)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("storage.provider", ProviderGCS)
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("paths.channels", paths.Channels)
	v.SetDefault("paths.videos", paths.Videos)
	v.SetDefault("paths.comments", paths.Comments)
	v.SetDefault("paths.bigquery", paths.BigQuery)
	v.SetDefault("queue.provider", ProviderPubSub)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.concurrency", 1)
	v.SetDefault("pubsub.max_outstanding", 1)
	v.SetDefault("crawler.max_duration_seconds", 480)
	v.SetDefault("crawler.user_agent", collyfetcher.DefaultUserAgent)
	v.SetDefault("crawler.headers", map[string]string{"Accept-Language": "en-US,en;q=0.9"})
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.replay_labels", livechat.DefaultReplayLabels)
	v.SetDefault("crawler.skip_unrecognized_runs", false)
	v.SetDefault("crawler.watch_url", livechat.DefaultWatchURL)
	v.SetDefault("crawler.replay_url", livechat.DefaultReplayURL)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "livechat-harvester")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces values every command needs. Command-specific requirements
// are checked by the Require methods.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return chat.ConfigError("server.port", "must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return chat.ConfigError("http.timeout_seconds", "must be > 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return chat.ConfigError("crawler.requests_per_second", "must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderGCS, ProviderLocal, ProviderMemory:
	default:
		return chat.ConfigError("storage.provider", fmt.Sprintf("must be one of gcs, local, memory (got %q)", c.Storage.Provider))
	}
	switch c.Queue.Provider {
	case ProviderPubSub, ProviderMemory:
	default:
		return chat.ConfigError("queue.provider", fmt.Sprintf("must be pubsub or memory (got %q)", c.Queue.Provider))
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return chat.ConfigError("auth.api_key", "must be set when auth is enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return chat.ConfigError("telemetry.endpoint", "must be set when telemetry is enabled")
	}
	return nil
}

// RequireStorage checks the selected object store is fully configured.
func (c Config) RequireStorage() error {
	switch c.Storage.Provider {
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			return chat.ConfigError("storage.gcs_bucket", "is required for the gcs provider")
		}
	case ProviderLocal:
		if c.Storage.LocalDir == "" {
			return chat.ConfigError("storage.local_dir", "is required for the local provider")
		}
	}
	return nil
}

// RequirePublisher checks a crawl request topic is reachable.
func (c Config) RequirePublisher() error {
	if c.Queue.Provider != ProviderPubSub {
		return nil
	}
	if c.GCP.ProjectID == "" {
		return chat.ConfigError("gcp.project_id", "is required for the pubsub queue")
	}
	if c.PubSub.TopicName == "" {
		return chat.ConfigError("pubsub.topic_name", "is required for the pubsub queue")
	}
	return nil
}

// RequireSubscriber checks a pull subscription is configured.
func (c Config) RequireSubscriber() error {
	if err := c.RequirePublisher(); err != nil {
		return err
	}
	if c.Queue.Provider == ProviderPubSub && c.PubSub.Subscription == "" {
		return chat.ConfigError("pubsub.subscription", "is required to listen")
	}
	return nil
}

// RequireYouTube checks catalog discovery credentials.
func (c Config) RequireYouTube() error {
	if c.YouTube.APIKey == "" {
		return chat.ConfigError("youtube.api_key", "is required for catalog sync")
	}
	return nil
}

// CrawlBudget is the wall-clock limit for one crawl. Zero means unlimited.
func (c Config) CrawlBudget() time.Duration {
	if c.Crawler.MaxDurationSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Crawler.MaxDurationSeconds) * time.Second
}

// RequestTimeout bounds one HTTP request to the server. Zero selects the server default.
func (c Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// FetchTimeout bounds one HTTP fetch.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ArchivePaths converts the configured layout.
func (c Config) ArchivePaths() archive.Paths {
	return archive.Paths{
		Channels: c.Paths.Channels,
		Videos:   c.Paths.Videos,
		Comments: c.Paths.Comments,
		BigQuery: c.Paths.BigQuery,
	}
}

// FetchHeaders returns the static request headers in canonical form.
func (c Config) FetchHeaders() http.Header {
	h := make(http.Header, len(c.Crawler.Headers))
	for k, v := range c.Crawler.Headers {
		h.Set(k, v)
	}
	return h
}
