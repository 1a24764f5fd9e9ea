// Package config loads and validates linker configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Source   SourceConfig   `mapstructure:"source"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Match    MatchConfig    `mapstructure:"match"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Search   SearchConfig   `mapstructure:"search"`
	DB       DBConfig       `mapstructure:"db"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the sync trigger routes.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SourceConfig describes the remote site being reconciled.
type SourceConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	SiteName          string  `mapstructure:"site_name"`
	LinkType          string  `mapstructure:"link_type"`
	Language          string  `mapstructure:"language"`
	UserAgent         string  `mapstructure:"user_agent"`
	RequestDelayMs    int     `mapstructure:"request_delay_ms"`
	ClusterSize       int     `mapstructure:"cluster_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// MatchConfig tunes title matching.
type MatchConfig struct {
	Threshold          float64 `mapstructure:"threshold"`
	AmbiguityThreshold float64 `mapstructure:"ambiguity_threshold"`
	CandidateLimit     int     `mapstructure:"candidate_limit"`
}

// SweepConfig lists the library sections walked by a sweep.
type SweepConfig struct {
	Sections []linker.CrawlTarget `mapstructure:"sections"`
}

// SearchConfig bounds the search stream.
type SearchConfig struct {
	StartPage int `mapstructure:"start_page"`
	MaxPages  int `mapstructure:"max_pages"`
}

// DBConfig selects and configures the catalog store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
	// SeedFile is a JSON catalog loaded by the memory driver.
	SeedFile string `mapstructure:"seed_file"`
}

// StorageConfig selects where audit snapshots are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for link notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// AuditConfig sizes the audit hub.
type AuditConfig struct {
	BufferSize     int  `mapstructure:"buffer_size"`
	MaxBatchEvents int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int  `mapstructure:"max_batch_wait_ms"`
	Persist        bool `mapstructure:"persist"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Storage backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKER")
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
	if len(cfg.Sweep.Sections) == 0 {
		cfg.Sweep.Sections = linker.DefaultCrawlTargets()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("source.base_url", "https://animevietsub.fun")
	v.SetDefault("source.site_name", "AnimeVSub")
	v.SetDefault("source.link_type", string(linker.LinkTypeStreaming))
	v.SetDefault("source.language", "Vietnamese")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("source.request_delay_ms", 500)
	v.SetDefault("source.cluster_size", 5)
	v.SetDefault("source.requests_per_second", 0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("match.threshold", 0.6)
	v.SetDefault("match.ambiguity_threshold", 0)
	v.SetDefault("match.candidate_limit", 10)
	v.SetDefault("search.start_page", 1)
	v.SetDefault("search.max_pages", 0)
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.max_batch_events", 100)
	v.SetDefault("audit.max_batch_wait_ms", 1000)
	v.SetDefault("audit.persist", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if u, err := url.Parse(c.Source.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url %q must be an absolute URL", c.Source.BaseURL)
	}
	if c.Source.LinkType != "" && !linker.LinkType(c.Source.LinkType).Valid() {
		return fmt.Errorf("source.link_type %q is not supported", c.Source.LinkType)
	}
	if c.Source.ClusterSize <= 0 {
		return fmt.Errorf("source.cluster_size must be > 0")
	}
	if c.Source.RequestDelayMs < 0 {
		return fmt.Errorf("source.request_delay_ms must be >= 0")
	}
	if c.Source.RequestsPerSecond < 0 {
		return fmt.Errorf("source.requests_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Match.Threshold <= 0 || c.Match.Threshold > 1 {
		return fmt.Errorf("match.threshold must be within (0, 1]")
	}
	if c.Match.AmbiguityThreshold < 0 || c.Match.AmbiguityThreshold > 1 {
		return fmt.Errorf("match.ambiguity_threshold must be within 0..1")
	}
	for i, s := range c.Sweep.Sections {
		if s.SectionKey == "" {
			return fmt.Errorf("sweep.sections[%d].key is required", i)
		}
		if s.StartPage < 0 || s.PageCount < 0 {
			return fmt.Errorf("sweep.sections[%d] pages must be >= 0", i)
		}
		if s.PageCount > 0 && s.StartPage > s.PageCount {
			return fmt.Errorf("sweep.sections[%d] start_page %d is past page_count %d", i, s.StartPage, s.PageCount)
		}
	}
	if c.Search.MaxPages < 0 {
		return fmt.Errorf("search.max_pages must be >= 0")
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres driver")
		}
	case DriverMemory:
		if c.Audit.Persist {
			return fmt.Errorf("audit.persist requires the postgres driver")
		}
	default:
		return fmt.Errorf("db.driver %q is not supported", c.DB.Driver)
	}
	switch c.Storage.Backend {
	case "", BackendNone, BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// RequestDelay is the wait between consecutive listing pages.
func (c Config) RequestDelay() time.Duration {
	return time.Duration(c.Source.RequestDelayMs) * time.Millisecond
}

// FetchTimeout bounds a single document load.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
