package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "./data/adpulse.db", cfg.Database.DSN)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 20*time.Second, cfg.Sources.FetchTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.ScrapeInterval)
	assert.Equal(t, 20, cfg.Scheduler.EnrichBatch)
	assert.False(t, cfg.Classifier.ReclassifyOnEnrich)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  dsn: ":memory:"
sources:
  fetch_timeout: 5s
  feeds:
    - name: AdNews
      url: https://adnews.example/rss
search:
  targets:
    - key: media
      name: Media Buying
      query: media buying news
      site_url: https://trade.example/news
      site_selector: "div.listing a"
      feed_urls:
        - https://trade.example/rss
scheduler:
  scrape_interval: 10m
  sweep_targets: [media]
classifier:
  reclassify_on_enrich: true
`))
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 5*time.Second, cfg.Sources.FetchTimeout)
	require.Len(t, cfg.Sources.Feeds, 1)
	assert.Equal(t, "AdNews", cfg.Sources.Feeds[0].Name)

	require.Len(t, cfg.Search.Targets, 1)
	target := cfg.Search.Targets[0]
	assert.Equal(t, "media", target.Key)
	assert.Equal(t, "media buying news", target.Query)
	assert.Equal(t, "div.listing a", target.SiteSelector)
	assert.Equal(t, []string{"https://trade.example/rss"}, target.FeedURLs)

	assert.Equal(t, 10*time.Minute, cfg.Scheduler.ScrapeInterval)
	assert.Equal(t, []string{"media"}, cfg.Scheduler.SweepTargets)
	assert.True(t, cfg.Classifier.ReclassifyOnEnrich)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ADPULSE_DATABASE_DSN", "/var/lib/adpulse/news.db")
	t.Setenv("ADPULSE_LOGGING_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/adpulse/news.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{DSN: ":memory:"},
			Sources:  SourcesConfig{FetchTimeout: time.Second},
		}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Database.DSN = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Sources.FetchTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Search.Targets = []SearchTarget{{Key: "media"}, {Key: "media"}}
	assert.ErrorContains(t, cfg.Validate(), "duplicate search target key")

	cfg = base()
	cfg.Search.Targets = []SearchTarget{{}}
	assert.ErrorContains(t, cfg.Validate(), "empty key")

	cfg = base()
	cfg.Scheduler.SweepTargets = []string{"ghost"}
	assert.ErrorContains(t, cfg.Validate(), "unknown target")
}
