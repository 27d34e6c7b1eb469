// Package config resolves the service configuration from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/process"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	ModeIngest          = "ingest"
	ModeFillTranscripts = "fill-transcripts"
	ModeFillSentiment   = "fill-sentiment"
	ModeServe           = "serve"
)

type Config struct {
	Mode     string         `yaml:"mode"`
	Query    QueryConfig    `yaml:"query"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Youtube  YoutubeConfig  `yaml:"youtube"`
	Search   SearchConfig   `yaml:"search"`
	Captions CaptionsConfig `yaml:"captions"`
	Rater    RaterConfig    `yaml:"rater"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	API      APIConfig      `yaml:"api"`
}

// QueryConfig holds the discovery query. Dates are YYYY-MM-DD.
type QueryConfig struct {
	Topic               string   `yaml:"topic"`
	Start               string   `yaml:"start"`
	End                 string   `yaml:"end"`
	TimeDeltaDays       int      `yaml:"time_delta_days"`
	MaxResultsPerWindow int      `yaml:"max_results_per_window"`
	Language            string   `yaml:"language"`
	MinViews            *int64   `yaml:"min_views"`
	MinLengthMinutes    *float64 `yaml:"min_length_minutes"`
}

type PipelineConfig struct {
	Strategy          string `yaml:"strategy"`
	OverwriteExisting bool   `yaml:"overwrite_existing"`
	Workers           int    `yaml:"workers"`
}

type YoutubeConfig struct {
	APIKeys []string `yaml:"api_keys"`
	// Classifier is "any" to rotate on every failure or "strict" to rotate only
	// on errors the API reports as quota problems.
	Classifier        string  `yaml:"classifier"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Endpoint          string  `yaml:"endpoint"`
}

type SearchConfig struct {
	Provider       string `yaml:"provider"` // youtube | miniflux
	MinifluxURL    string `yaml:"miniflux_url"`
	MinifluxAPIKey string `yaml:"miniflux_api_key"`
}

type CaptionsConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Language          string        `yaml:"language"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type RaterConfig struct {
	Kind         string `yaml:"kind"` // openai | lexicon
	OpenAIAPIKey string `yaml:"openai_api_key"`
	Model        string `yaml:"model"`
}

type StorageConfig struct {
	Kind       string         `yaml:"kind"` // memory | sqlite | postgres
	SQLitePath string         `yaml:"sqlite_path"`
	Postgres   PostgresConfig `yaml:"postgres"`
	Weaviate   WeaviateConfig `yaml:"weaviate"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", p.Host, p.Port, p.User, p.Password, p.Database)
}

// WeaviateConfig enables a vector store mirror of the primary storage when Host is set.
type WeaviateConfig struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
}

// RedisConfig enables the stats cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Port int `yaml:"port"`
}

func defaults() *Config {
	return &Config{
		Mode: ModeIngest,
		Query: QueryConfig{
			TimeDeltaDays:       7,
			MaxResultsPerWindow: 50,
		},
		Pipeline: PipelineConfig{
			Strategy: string(process.StrategyStaged),
			Workers:  4,
		},
		Youtube: YoutubeConfig{
			Classifier:        "any",
			RequestsPerSecond: 5,
		},
		Search: SearchConfig{
			Provider: "youtube",
		},
		Captions: CaptionsConfig{
			Language:          "en",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2,
		},
		Rater: RaterConfig{
			Kind:  "openai",
			Model: "gpt-4",
		},
		Storage: StorageConfig{
			Kind:       "sqlite",
			SQLitePath: "scrape.db",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     "5432",
				User:     "scrape",
				Password: "scrape",
				Database: "scrape",
			},
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}

// Load starts from the defaults, applies the YAML file named by CONFIG_FILE if
// there is one, then the environment, and validates the result.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getParam("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalid, path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := &envReader{}

	e.str(&c.Mode, "MODE")

	e.str(&c.Query.Topic, "QUERY_TOPIC")
	e.str(&c.Query.Start, "QUERY_START")
	e.str(&c.Query.End, "QUERY_END")
	e.int(&c.Query.TimeDeltaDays, "QUERY_TIME_DELTA_DAYS")
	e.int(&c.Query.MaxResultsPerWindow, "QUERY_MAX_RESULTS")
	e.str(&c.Query.Language, "QUERY_LANGUAGE")
	e.optInt64(&c.Query.MinViews, "QUERY_MIN_VIEWS")
	e.optFloat(&c.Query.MinLengthMinutes, "QUERY_MIN_LENGTH_MINUTES")

	e.str(&c.Pipeline.Strategy, "PIPELINE_STRATEGY")
	e.bool(&c.Pipeline.OverwriteExisting, "PIPELINE_OVERWRITE_EXISTING")
	e.int(&c.Pipeline.Workers, "PIPELINE_WORKERS")

	e.list(&c.Youtube.APIKeys, "YOUTUBE_API_KEYS")
	e.str(&c.Youtube.Classifier, "YOUTUBE_CLASSIFIER")
	e.float(&c.Youtube.RequestsPerSecond, "YOUTUBE_REQUESTS_PER_SECOND")
	e.str(&c.Youtube.Endpoint, "YOUTUBE_ENDPOINT")

	e.str(&c.Search.Provider, "SEARCH_PROVIDER")
	e.str(&c.Search.MinifluxURL, "MINIFLUX_ENDPOINT")
	e.str(&c.Search.MinifluxAPIKey, "MINIFLUX_APIKEY")

	e.str(&c.Captions.BaseURL, "CAPTIONS_BASE_URL")
	e.str(&c.Captions.Language, "CAPTIONS_LANGUAGE")
	e.duration(&c.Captions.Timeout, "CAPTIONS_TIMEOUT")
	e.float(&c.Captions.RequestsPerSecond, "CAPTIONS_REQUESTS_PER_SECOND")

	e.str(&c.Rater.Kind, "RATER")
	e.str(&c.Rater.OpenAIAPIKey, "OPENAI_API_KEY")
	e.str(&c.Rater.Model, "OPENAI_MODEL")

	e.str(&c.Storage.Kind, "STORAGE")
	e.str(&c.Storage.SQLitePath, "SQLITE_PATH")
	e.str(&c.Storage.Postgres.Host, "POSTGRES_HOST")
	e.str(&c.Storage.Postgres.Port, "POSTGRES_PORT")
	e.str(&c.Storage.Postgres.User, "POSTGRES_USER")
	e.str(&c.Storage.Postgres.Password, "POSTGRES_PASSWORD")
	e.str(&c.Storage.Postgres.Database, "POSTGRES_DB")
	e.str(&c.Storage.Weaviate.Scheme, "WEAVIATE_SCHEME")
	e.str(&c.Storage.Weaviate.Host, "WEAVIATE_HOST")
	e.str(&c.Storage.Weaviate.APIKey, "WEAVIATE_API_KEY")

	e.str(&c.Redis.Addr, "REDIS_ADDR")
	e.str(&c.Redis.Password, "REDIS_PASSWORD")
	e.int(&c.Redis.DB, "REDIS_DB")
	e.duration(&c.Redis.TTL, "REDIS_TTL")

	e.int(&c.API.Port, "API_PORT")

	return e.err()
}

// Validate checks the settings the selected mode depends on.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	switch c.Mode {
	case ModeIngest, ModeFillTranscripts, ModeFillSentiment, ModeServe:
	default:
		invalid("unknown mode %q", c.Mode)
	}

	switch c.Storage.Kind {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			invalid("sqlite storage needs a path")
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" || c.Storage.Postgres.Database == "" {
			invalid("postgres storage needs a host and a database")
		}
	default:
		invalid("unknown storage %q", c.Storage.Kind)
	}
	if c.Storage.Weaviate.Host != "" && c.Rater.OpenAIAPIKey == "" {
		invalid("the weaviate mirror vectorizes with openai and needs an openai api key")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		invalid("api port %d out of range", c.API.Port)
	}

	if (c.Mode == ModeIngest || c.Mode == ModeFillTranscripts) && c.Captions.RequestsPerSecond <= 0 {
		invalid("captions requests per second must be positive")
	}

	if c.Mode == ModeIngest || c.Mode == ModeFillSentiment {
		switch c.Rater.Kind {
		case "lexicon":
		case "openai":
			if c.Rater.OpenAIAPIKey == "" {
				invalid("the openai rater needs an api key")
			}
		default:
			invalid("unknown rater %q", c.Rater.Kind)
		}
	}

	if c.Mode == ModeIngest {
		if _, err := process.ParseStrategy(c.Pipeline.Strategy); err != nil {
			invalid("%v", err)
		}
		if _, err := c.FetchQuery(); err != nil {
			invalid("%v", err)
		}
		if len(c.Youtube.APIKeys) == 0 {
			invalid("at least one youtube api key is needed")
		}
		switch c.Youtube.Classifier {
		case "any", "strict":
		default:
			invalid("unknown youtube classifier %q", c.Youtube.Classifier)
		}
		if c.Youtube.RequestsPerSecond <= 0 {
			invalid("youtube requests per second must be positive")
		}
		switch c.Search.Provider {
		case "youtube":
		case "miniflux":
			if c.Search.MinifluxURL == "" {
				invalid("the miniflux search provider needs an endpoint")
			}
		default:
			invalid("unknown search provider %q", c.Search.Provider)
		}
	}

	return errors.Join(errs...)
}

// FetchQuery converts the query settings to a discovery query.
func (c *Config) FetchQuery() (fetch.Query, error) {
	start, err := time.Parse(time.DateOnly, c.Query.Start)
	if err != nil {
		return fetch.Query{}, fmt.Errorf("query start %q is not a YYYY-MM-DD date", c.Query.Start)
	}
	end, err := time.Parse(time.DateOnly, c.Query.End)
	if err != nil {
		return fetch.Query{}, fmt.Errorf("query end %q is not a YYYY-MM-DD date", c.Query.End)
	}

	q := fetch.Query{
		Topic:               c.Query.Topic,
		Start:               start,
		End:                 end,
		TimeDeltaDays:       c.Query.TimeDeltaDays,
		MaxResultsPerWindow: c.Query.MaxResultsPerWindow,
		Language:            c.Query.Language,
		MinViews:            c.Query.MinViews,
		MinLengthMinutes:    c.Query.MinLengthMinutes,
	}
	if err := q.Validate(); err != nil {
		return fetch.Query{}, err
	}

	return q, nil
}

func getParam(param, def string) string {
	if val, ok := os.LookupEnv(param); ok {
		return val
	}
	return def
}

// envReader overrides fields with environment variables that are set and
// collects the values it cannot parse.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	val := getParam(name, "")
	return val, val != ""
}

func (e *envReader) fail(name, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, name, val, err))
}

func (e *envReader) str(dst *string, name string) {
	if val, ok := e.lookup(name); ok {
		*dst = val
	}
}

func (e *envReader) list(dst *[]string, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func (e *envReader) int(dst *int, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = n
}

func (e *envReader) optInt64(dst **int64, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = &n
}

func (e *envReader) float(dst *float64, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = f
}

func (e *envReader) optFloat(dst **float64, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = &f
}

func (e *envReader) bool(dst *bool, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(dst *time.Duration, name string) {
	val, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		e.fail(name, val, err)
		return
	}
	*dst = d
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}
