package fetch

import (
	"context"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"golang.org/x/exp/slog"
)

// StatsCache keeps stats between runs so repeated discovery does not spend quota.
type StatsCache interface {
	Get(ctx context.Context, id model.YoutubeVideoID) (*model.Stats, bool, error)
	Set(ctx context.Context, id model.YoutubeVideoID, stats *model.Stats) error
}

type Enricher struct {
	rotator *quota.Rotator[StatsProvider]
	cache   StatsCache
	logger  *slog.Logger
}

func NewEnricher(rotator *quota.Rotator[StatsProvider], logger *slog.Logger) *Enricher {
	return &Enricher{
		rotator: rotator,
		logger:  logger,
	}
}

func (e *Enricher) WithCache(cache StatsCache) *Enricher {
	e.cache = cache
	return e
}

// Enrich returns the stats for id, or nil when the platform has none. Cache
// failures are logged and fall through to the provider.
func (e *Enricher) Enrich(ctx context.Context, id model.YoutubeVideoID) (*model.Stats, error) {
	if e.cache != nil {
		stats, ok, err := e.cache.Get(ctx, id)
		switch {
		case err != nil:
			e.logger.Warn("failed to read stats cache", slog.String("video", string(id)), slog.String("error", err.Error()))
		case ok:
			return stats, nil
		}
	}

	stats, err := quota.Do(ctx, e.rotator, func(ctx context.Context, p StatsProvider) (*model.Stats, error) {
		return p.FetchStats(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if stats == nil {
		e.logger.Info("no stats available", slog.String("video", string(id)))
		return nil, nil
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, id, stats); err != nil {
			e.logger.Warn("failed to write stats cache", slog.String("video", string(id)), slog.String("error", err.Error()))
		}
	}

	return stats, nil
}
