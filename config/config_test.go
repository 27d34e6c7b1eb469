package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adam7171512/scrape/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

const validYAML = `
query:
  topic: cats
  start: 2023-01-01
  end: 2023-01-31
  min_views: 1000
youtube:
  api_keys: [k1, k2]
rater:
  kind: lexicon
storage:
  kind: memory
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeFile(t, validYAML))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ModeIngest, cfg.Mode)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Youtube.APIKeys)
	assert.Equal(t, "memory", cfg.Storage.Kind)
	assert.Equal(t, string(process.StrategyStaged), cfg.Pipeline.Strategy)
	assert.Equal(t, 30*time.Second, cfg.Captions.Timeout)

	q, err := cfg.FetchQuery()
	require.NoError(t, err)
	assert.Equal(t, "cats", q.Topic)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), q.Start)
	assert.Equal(t, time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), q.End)
	assert.Equal(t, 7, q.TimeDeltaDays)
	assert.Equal(t, 50, q.MaxResultsPerWindow)
	require.NotNil(t, q.MinViews)
	assert.Equal(t, int64(1000), *q.MinViews)
	assert.Nil(t, q.MinLengthMinutes)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeFile(t, validYAML))
	t.Setenv("YOUTUBE_API_KEYS", "a, b ,c")
	t.Setenv("PIPELINE_STRATEGY", "batch")
	t.Setenv("PIPELINE_OVERWRITE_EXISTING", "true")
	t.Setenv("QUERY_MIN_LENGTH_MINUTES", "4.5")
	t.Setenv("REDIS_TTL", "1h")
	t.Setenv("API_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, cfg.Youtube.APIKeys)
	assert.Equal(t, "batch", cfg.Pipeline.Strategy)
	assert.True(t, cfg.Pipeline.OverwriteExisting)
	require.NotNil(t, cfg.Query.MinLengthMinutes)
	assert.Equal(t, 4.5, *cfg.Query.MinLengthMinutes)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("MODE", ModeServe)
	t.Setenv("STORAGE", "postgres")
	t.Setenv("POSTGRES_HOST", "db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ModeServe, cfg.Mode)
	assert.Equal(t, "host=db port=5432 user=scrape password=scrape dbname=scrape sslmode=disable", cfg.Storage.Postgres.DSN())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, "query: [unclosed"))
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalid))
	})

	t.Run("zero captions rate from env", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, validYAML))
		t.Setenv("CAPTIONS_REQUESTS_PER_SECOND", "0")
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "captions requests per second")
	})

	t.Run("unparsable env", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeFile(t, validYAML))
		t.Setenv("PIPELINE_WORKERS", "four")
		_, err := Load()
		assert.True(t, errors.Is(err, ErrInvalid))
		assert.Contains(t, err.Error(), "PIPELINE_WORKERS")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.Query.Topic = "cats"
		cfg.Query.Start = "2023-01-01"
		cfg.Query.End = "2023-01-31"
		cfg.Youtube.APIKeys = []string{"k"}
		cfg.Rater.OpenAIAPIKey = "sk"
		return cfg
	}
	require.NoError(t, valid().Validate())

	for _, tc := range []struct {
		name   string
		modify func(*Config)
	}{
		{name: "unknown mode", modify: func(c *Config) { c.Mode = "crawl" }},
		{name: "unknown strategy", modify: func(c *Config) { c.Pipeline.Strategy = "parallel" }},
		{name: "no keys", modify: func(c *Config) { c.Youtube.APIKeys = nil }},
		{name: "no topic", modify: func(c *Config) { c.Query.Topic = "" }},
		{name: "bad date", modify: func(c *Config) { c.Query.End = "31/01/2023" }},
		{name: "start after end", modify: func(c *Config) { c.Query.Start = "2023-02-01" }},
		{name: "zero delta", modify: func(c *Config) { c.Query.TimeDeltaDays = 0 }},
		{name: "openai without key", modify: func(c *Config) { c.Rater.OpenAIAPIKey = "" }},
		{name: "unknown rater", modify: func(c *Config) { c.Rater.Kind = "vibes" }},
		{name: "unknown classifier", modify: func(c *Config) { c.Youtube.Classifier = "lenient" }},
		{name: "unknown storage", modify: func(c *Config) { c.Storage.Kind = "mongo" }},
		{name: "miniflux without endpoint", modify: func(c *Config) { c.Search.Provider = "miniflux" }},
		{name: "unknown provider", modify: func(c *Config) { c.Search.Provider = "bing" }},
		{name: "port", modify: func(c *Config) { c.API.Port = 0 }},
		{name: "zero captions rate", modify: func(c *Config) { c.Captions.RequestsPerSecond = 0 }},
		{name: "negative captions rate", modify: func(c *Config) { c.Captions.RequestsPerSecond = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.modify(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalid), err)
		})
	}

	t.Run("serve needs no query", func(t *testing.T) {
		cfg := defaults()
		cfg.Mode = ModeServe
		assert.NoError(t, cfg.Validate())
	})

	t.Run("fill transcripts needs a captions rate", func(t *testing.T) {
		cfg := defaults()
		cfg.Mode = ModeFillTranscripts
		cfg.Captions.RequestsPerSecond = 0
		assert.True(t, errors.Is(cfg.Validate(), ErrInvalid))
	})

	t.Run("serve ignores the captions rate", func(t *testing.T) {
		cfg := defaults()
		cfg.Mode = ModeServe
		cfg.Captions.RequestsPerSecond = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("fill transcripts needs no rater key", func(t *testing.T) {
		cfg := defaults()
		cfg.Mode = ModeFillTranscripts
		assert.NoError(t, cfg.Validate())
	})
}
