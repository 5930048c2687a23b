package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Search     SearchConfig     `mapstructure:"search"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite path or :memory:
}

// HTTPConfig holds trigger/admin API settings
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SourcesConfig holds source adapter settings
type SourcesConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"` // Bound on every outbound call
	UserAgent    string        `mapstructure:"user_agent"`
	Feeds        []FeedSeed    `mapstructure:"feeds"` // Imported into the feed registry at startup
}

// FeedSeed is a feed registered from configuration at startup
type FeedSeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// SearchConfig holds the static search-target registry
type SearchConfig struct {
	Targets []SearchTarget `mapstructure:"targets"`
}

// SearchTarget is a statically configured active-search profile, addressed
// by key from API and scheduler callers. Read-only at runtime.
type SearchTarget struct {
	Key          string   `mapstructure:"key"`
	Name         string   `mapstructure:"name"`
	Query        string   `mapstructure:"query"`         // Search surface query
	SiteURL      string   `mapstructure:"site_url"`      // Optional listing page for scraping
	SiteSelector string   `mapstructure:"site_selector"` // goquery selector for listing links
	FeedURLs     []string `mapstructure:"feed_urls"`     // Feeds affiliated with the target
}

// SchedulerConfig holds job intervals. Zero disables a job.
type SchedulerConfig struct {
	ScrapeInterval time.Duration `mapstructure:"scrape_interval"` // Cron feed scraping
	SearchInterval time.Duration `mapstructure:"search_interval"` // Active search sweep
	EnrichInterval time.Duration `mapstructure:"enrich_interval"` // Enrichment sweep
	SweepTargets   []string      `mapstructure:"sweep_targets"`   // Target keys covered by the search sweep
	EnrichBatch    int           `mapstructure:"enrich_batch"`    // Articles per enrichment sweep
}

// ClassifierConfig holds tag classification settings
type ClassifierConfig struct {
	ReclassifyOnEnrich bool `mapstructure:"reclassify_on_enrich"` // Re-run tags against deep-fetched text
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".adpulse"))
		}
	}

	// Environment variables
	v.SetEnvPrefix("ADPULSE")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("database.dsn", "ADPULSE_DATABASE_DSN")
	v.BindEnv("http.addr", "ADPULSE_HTTP_ADDR")
	v.BindEnv("logging.level", "ADPULSE_LOGGING_LEVEL")
	v.BindEnv("logging.format", "ADPULSE_LOGGING_FORMAT")
	v.BindEnv("classifier.reclassify_on_enrich", "ADPULSE_CLASSIFIER_RECLASSIFY_ON_ENRICH")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.dsn", "./data/adpulse.db")

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	// Source defaults
	v.SetDefault("sources.fetch_timeout", "20s")
	v.SetDefault("sources.user_agent", "adpulse-agent/1.0")

	// Scheduler defaults
	v.SetDefault("scheduler.scrape_interval", "30m")
	v.SetDefault("scheduler.search_interval", "2h")
	v.SetDefault("scheduler.enrich_interval", "1h")
	v.SetDefault("scheduler.enrich_batch", 20)

	// Classifier defaults: tags are set once at creation, enrichment does
	// not recompute them unless explicitly enabled
	v.SetDefault("classifier.reclassify_on_enrich", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Sources.FetchTimeout <= 0 {
		return fmt.Errorf("sources.fetch_timeout must be positive")
	}
	seen := make(map[string]bool)
	for _, t := range c.Search.Targets {
		if t.Key == "" {
			return fmt.Errorf("search target with empty key")
		}
		if seen[t.Key] {
			return fmt.Errorf("duplicate search target key %q", t.Key)
		}
		seen[t.Key] = true
	}
	for _, key := range c.Scheduler.SweepTargets {
		if !seen[key] {
			return fmt.Errorf("scheduler.sweep_targets references unknown target %q", key)
		}
	}
	return nil
}
