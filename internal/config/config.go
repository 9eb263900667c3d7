// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/carcatalog-crawler/internal/crawler"
	"github.com/JakeFAU/carcatalog-crawler/internal/merge"
	"github.com/JakeFAU/carcatalog-crawler/internal/policy/retry"
)

// EnvPrefix namespaces environment overrides, e.g. CARCRAWL_FETCH_TIMEOUT.
const EnvPrefix = "CARCRAWL"

const appDir = "carcatalog-crawler"

// Config captures every knob loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Records    RecordsConfig    `mapstructure:"records"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Status     StatusConfig     `mapstructure:"status"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SiteConfig names the catalog being crawled.
type SiteConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// FetchConfig controls pacing, timeouts, and retries.
type FetchConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	RateLimitSeconds   float64       `mapstructure:"rate_limit_seconds"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	MaxBodySize        int           `mapstructure:"max_body_size"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMultiplier  float64       `mapstructure:"backoff_multiplier"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	RetryNetworkErrors bool          `mapstructure:"retry_network_errors"`
}

// CrawlConfig governs a run.
type CrawlConfig struct {
	// MaxDuration bounds a run; zero means no deadline.
	MaxDuration   time.Duration `mapstructure:"max_duration"`
	ReviewPolicy  string        `mapstructure:"review_policy"`
	FrontierEvery int           `mapstructure:"frontier_every"`
}

// RecordsConfig selects where model records are persisted.
type RecordsConfig struct {
	Backend     string            `mapstructure:"backend"`
	Dir         string            `mapstructure:"dir"`
	GCSBucket   string            `mapstructure:"gcs_bucket"`
	GCSPrefix   string            `mapstructure:"gcs_prefix"`
	MakeAliases map[string]string `mapstructure:"make_aliases"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend     string `mapstructure:"backend"`
	Dir         string `mapstructure:"dir"`
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// ArchiveConfig sets where raw HTML of unparsable pages is kept.
type ArchiveConfig struct {
	Dir string `mapstructure:"dir"`
}

// PubSubConfig enables record notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications are configured.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.Topic != ""
}

// StatusConfig controls the optional status server. An empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig controls OpenTelemetry spans for crawl items. Spans are
// exported to Cloud Trace only when ProjectID is set.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Record and checkpoint backends.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Load builds a Config from defaults, an optional file, and the environment.
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.netcarshow.com")
	v.SetDefault("fetch.user_agent", "carcatalog-crawler/1.0 (+https://github.com/JakeFAU/carcatalog-crawler)")
	v.SetDefault("fetch.rate_limit_seconds", 1.5)
	v.SetDefault("fetch.timeout", 20*time.Second)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.max_body_size", 10<<20)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_base", 500*time.Millisecond)
	v.SetDefault("fetch.backoff_multiplier", 2.0)
	v.SetDefault("fetch.backoff_max", 8*time.Second)
	v.SetDefault("fetch.retry_network_errors", false)
	v.SetDefault("crawl.max_duration", time.Duration(0))
	v.SetDefault("crawl.review_policy", string(merge.ReviewIncoming))
	v.SetDefault("crawl.frontier_every", 25)
	v.SetDefault("records.backend", BackendLocal)
	v.SetDefault("records.dir", "data")
	v.SetDefault("records.gcs_prefix", "records")
	v.SetDefault("checkpoint.backend", BackendFile)
	v.SetDefault("checkpoint.dir", filepath.Join(xdg.StateHome, appDir))
	v.SetDefault("checkpoint.table_prefix", "crawl_checkpoint")
	v.SetDefault("archive.dir", filepath.Join("logs", "errors"))
	v.SetDefault("status.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site.base_url must be an absolute http(s) url, got %q", c.Site.BaseURL)
	}
	if c.Fetch.RateLimitSeconds <= 0 {
		return errors.New("fetch.rate_limit_seconds must be > 0")
	}
	if c.Fetch.Timeout <= 0 {
		return errors.New("fetch.timeout must be > 0")
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("fetch retry settings: %w", err)
	}
	if c.Crawl.MaxDuration < 0 {
		return errors.New("crawl.max_duration must be >= 0")
	}
	if c.Crawl.MaxDuration > 0 && c.Crawl.MaxDuration <= c.Fetch.Timeout {
		return fmt.Errorf("crawl.max_duration (%s) must exceed fetch.timeout (%s)", c.Crawl.MaxDuration, c.Fetch.Timeout)
	}
	if _, err := merge.ParseReviewPolicy(c.Crawl.ReviewPolicy); err != nil {
		return fmt.Errorf("crawl.review_policy: %w", err)
	}

	switch c.Records.Backend {
	case BackendLocal:
		if c.Records.Dir == "" {
			return errors.New("records.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Records.GCSBucket == "" {
			return errors.New("records.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown records.backend %q", c.Records.Backend)
	}

	switch c.Checkpoint.Backend {
	case BackendFile, BackendSQLite:
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint.dir must be set for the %s backend", c.Checkpoint.Backend)
		}
	case BackendPostgres:
		if c.Checkpoint.DSN == "" {
			return errors.New("checkpoint.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}

	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// RetryPolicy converts the fetch settings into a retry.Policy.
func (c Config) RetryPolicy() retry.Policy {
	kinds := []crawler.FetchErrorKind{crawler.FetchTimeout, crawler.FetchServerError}
	if c.Fetch.RetryNetworkErrors {
		kinds = append(kinds, crawler.FetchNetworkError)
	}
	return retry.Policy{
		MaxAttempts:    c.Fetch.MaxAttempts,
		BaseDelay:      c.Fetch.BackoffBase,
		Multiplier:     c.Fetch.BackoffMultiplier,
		MaxDelay:       c.Fetch.BackoffMax,
		RetryableKinds: kinds,
	}
}

// RateInterval is the minimum spacing between request starts.
func (c Config) RateInterval() time.Duration {
	return time.Duration(c.Fetch.RateLimitSeconds * float64(time.Second))
}

// ReviewPolicy returns the validated review tie-break policy.
func (c Config) ReviewPolicy() merge.ReviewPolicy {
	p, _ := merge.ParseReviewPolicy(c.Crawl.ReviewPolicy)
	return p
}

// MakeAliases returns the default aliases overlaid with configured ones.
func (c Config) MakeAliases() map[string]string {
	out := make(map[string]string, len(crawler.DefaultMakeAliases)+len(c.Records.MakeAliases))
	for k, v := range crawler.DefaultMakeAliases {
		out[k] = v
	}
	for k, v := range c.Records.MakeAliases {
		out[crawler.NormalizeName(k)] = crawler.NormalizeName(v)
	}
	return out
}
