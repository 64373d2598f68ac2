// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/allforgood/datahub/internal/providers"
)

// Config captures every knob the batch tools read, loaded via Viper.
type Config struct {
	Logging   LoggingConfig           `mapstructure:"logging"`
	Geocode   GeocodeConfig           `mapstructure:"geocode"`
	LinkCheck LinkCheckConfig         `mapstructure:"linkcheck"`
	Crawl     CrawlConfig             `mapstructure:"crawl"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// GeocodeConfig identifies this consumer to the geocoding service and
// locates its caches.
type GeocodeConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	ClientID        string `mapstructure:"client_id"`
	PrivateKey      string `mapstructure:"private_key"`
	Region          string `mapstructure:"region"`
	CachePath       string `mapstructure:"cache_path"`
	ReverseCacheDir string `mapstructure:"reverse_cache_dir"`
	Attempts        int    `mapstructure:"attempts"`
	RetryDelaySec   int    `mapstructure:"retry_delay_seconds"`
}

// LinkCheckConfig locates the link cache and sets the probe timeout.
type LinkCheckConfig struct {
	Dir            string `mapstructure:"dir"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlConfig governs the bounded-pool page crawler.
type CrawlConfig struct {
	Workers        int     `mapstructure:"workers"`
	FetchAttempts  int     `mapstructure:"fetch_attempts"`
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	QueueDepth     int     `mapstructure:"queue_depth"`
	PollSeconds    int     `mapstructure:"poll_seconds"`
	QuiescentPolls int     `mapstructure:"quiescent_polls"`
	CachePath      string  `mapstructure:"cache_path"`
	MetroTablePath string  `mapstructure:"metro_table_path"`
}

// SourceConfig describes one external provider feed.
type SourceConfig struct {
	Kind         string `mapstructure:"kind"`
	ProviderID   string `mapstructure:"provider_id"`
	ProviderName string `mapstructure:"provider_name"`
	FeedID       string `mapstructure:"feed_id"`
	ProviderURL  string `mapstructure:"provider_url"`
	Input        string `mapstructure:"input"`
	MaxRecords   int    `mapstructure:"max_records"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DATAHUB")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com")
	v.SetDefault("geocode.region", "us")
	v.SetDefault("geocode.cache_path", "geocode_cache.txt")
	v.SetDefault("geocode.reverse_cache_dir", "revgeo")
	v.SetDefault("geocode.attempts", 4)
	v.SetDefault("geocode.retry_delay_seconds", 3)
	v.SetDefault("linkcheck.dir", ".")
	v.SetDefault("linkcheck.timeout_seconds", 6)
	v.SetDefault("crawl.workers", 10)
	v.SetDefault("crawl.fetch_attempts", 3)
	v.SetDefault("crawl.user_agent", "datahub-bot/0.1")
	v.SetDefault("crawl.timeout_seconds", 15)
	v.SetDefault("crawl.rate_per_second", 2.0)
	v.SetDefault("crawl.queue_depth", 4096)
	v.SetDefault("crawl.poll_seconds", 2)
	v.SetDefault("crawl.quiescent_polls", 100)
	v.SetDefault("crawl.cache_path", "crawl_cache.txt")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.FetchAttempts <= 0 {
		return fmt.Errorf("crawl.fetch_attempts must be > 0")
	}
	if c.Geocode.Attempts <= 0 {
		return fmt.Errorf("geocode.attempts must be > 0")
	}
	for name, src := range c.Sources {
		if !validKind(src.Kind) {
			return fmt.Errorf("sources.%s.kind %q is not one of %s",
				name, src.Kind, strings.Join(providers.Kinds(), ", "))
		}
		if src.ProviderID == "" {
			return fmt.Errorf("sources.%s.provider_id must be set", name)
		}
	}
	return nil
}

func validKind(kind string) bool {
	for _, k := range providers.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// RetryDelay converts the configured delay into a duration.
func (c GeocodeConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySec) * time.Second
}

// Timeout converts the configured probe timeout into a duration.
func (c LinkCheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
