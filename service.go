package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adam7171512/scrape/config"
	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/handler"
	"github.com/adam7171512/scrape/process"
	"github.com/adam7171512/scrape/quota"
	"github.com/adam7171512/scrape/storage"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("unable to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", slog.String("mode", cfg.Mode), slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}

	logger.Info("service stopped", slog.String("mode", cfg.Mode))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	primary, closeDB, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeDB()

	if cfg.Mode == config.ModeServe {
		return serve(ctx, cfg.API, primary, logger)
	}

	repo, err := mirror(ctx, cfg, primary, logger)
	if err != nil {
		return err
	}
	transcripts := fetch.NewCaptions(fetch.CaptionsConfig{
		BaseURL:  cfg.Captions.BaseURL,
		Language: cfg.Captions.Language,
		Timeout:  cfg.Captions.Timeout,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.Captions.RequestsPerSecond), 1),
	})

	switch cfg.Mode {
	case config.ModeFillTranscripts:
		return process.NewFiller(repo, transcripts, nil, logger).FillMissingTranscripts(ctx)
	case config.ModeFillSentiment:
		return process.NewFiller(repo, transcripts, newRater(cfg.Rater), logger).FillMissingSentiment(ctx)
	}

	q, err := cfg.FetchQuery()
	if err != nil {
		return err
	}
	discovery, err := newDiscovery(cfg, logger)
	if err != nil {
		return err
	}
	strategy, err := process.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return err
	}
	pipeline := process.NewPipeline(discovery, repo, transcripts, newRater(cfg.Rater), process.Options{
		Strategy:          strategy,
		OverwriteExisting: cfg.Pipeline.OverwriteExisting,
		Workers:           cfg.Pipeline.Workers,
	}, logger)

	logger.Info("ingestion started", slog.String("topic", q.Topic), slog.String("strategy", string(strategy)))

	return pipeline.Process(ctx, q)
}

func openStorage(cfg config.StorageConfig) (storage.VideoRepository, func(), error) {
	noop := func() {}

	var (
		db  *sql.DB
		err error
	)
	switch cfg.Kind {
	case "memory":
		return storage.NewMemory(), noop, nil
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN())
	default:
		db, err = sql.Open("sqlite", cfg.SQLitePath)
	}
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open %s database: %w", cfg.Kind, err)
	}

	var repo *storage.SQL
	if cfg.Kind == "postgres" {
		repo, err = storage.NewPostgres(db)
	} else {
		repo, err = storage.NewSQLite(db)
	}
	if err != nil {
		db.Close()
		return nil, noop, fmt.Errorf("failed to prepare %s database: %w", cfg.Kind, err)
	}

	return repo, func() { db.Close() }, nil
}

// mirror copies writes to weaviate when it is configured.
func mirror(ctx context.Context, cfg *config.Config, primary storage.VideoRepository, logger *slog.Logger) (storage.VideoRepository, error) {
	if cfg.Storage.Weaviate.Host == "" {
		return primary, nil
	}

	w, err := storage.NewWeaviate(storage.WeaviateInfo{
		Scheme:       cfg.Storage.Weaviate.Scheme,
		Host:         cfg.Storage.Weaviate.Host,
		ApiKey:       cfg.Storage.Weaviate.APIKey,
		OpenaiApiKey: cfg.Rater.OpenAIAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	if err := w.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	return storage.NewMirrored(primary, w, logger), nil
}

func newDiscovery(cfg *config.Config, logger *slog.Logger) (*fetch.Discovery, error) {
	pool, err := quota.NewPool(cfg.Youtube.APIKeys, logger)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.Youtube.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Youtube.Endpoint))
	}
	build := fetch.NewYoutubeBuilder(rate.NewLimiter(rate.Limit(cfg.Youtube.RequestsPerSecond), 1), logger, opts...)

	classify := quota.ClassifyAny
	if cfg.Youtube.Classifier == "strict" {
		classify = fetch.ClassifyYoutubeError
	}

	searchRotator := quota.NewRotator(pool, fetch.AsSearchProvider(build), classify, logger)
	if cfg.Search.Provider == "miniflux" {
		mflxPool, err := quota.NewPool([]string{cfg.Search.MinifluxAPIKey}, logger)
		if err != nil {
			return nil, err
		}
		mflx := fetch.NewMiniflux(fetch.MinifluxInfo{
			Endpoint: cfg.Search.MinifluxURL,
			ApiKey:   cfg.Search.MinifluxAPIKey,
		})
		searchRotator = quota.NewRotator(mflxPool, mflx.SearchBuilder(), quota.NeverRetry, logger)
	}

	enricher := fetch.NewEnricher(quota.NewRotator(pool, fetch.AsStatsProvider(build), classify, logger), logger)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		enricher = enricher.WithCache(fetch.NewRedisStatsCache(rdb, cfg.Redis.TTL))
	}

	return fetch.NewDiscovery(fetch.NewWindowed(searchRotator, logger), enricher, logger), nil
}

func newRater(cfg config.RaterConfig) process.SentimentRater {
	if cfg.Kind == "lexicon" {
		return process.NewLexiconRater()
	}

	return process.NewOpenAIRater(openai.NewClient(cfg.OpenAIAPIKey), cfg.Model)
}

func serve(ctx context.Context, cfg config.APIConfig, repo storage.VideoRepository, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.NewServer(repo, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	logger.Info("http server started", slog.Int("port", cfg.Port))

	select {
	case err := <-errs:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
