package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"golang.org/x/exp/slog"
)

// BatchIterator yields one batch of videos per window. It is single pass: after
// Next returns false, Err tells whether the range was completed.
type BatchIterator interface {
	Next(ctx context.Context) bool
	Batch() []*model.Video
	Window() model.Window
	Err() error
}

type Discovery struct {
	search   *Windowed
	enricher *Enricher
	logger   *slog.Logger
}

func NewDiscovery(search *Windowed, enricher *Enricher, logger *slog.Logger) *Discovery {
	return &Discovery{
		search:   search,
		enricher: enricher,
		logger:   logger,
	}
}

func (d *Discovery) Discover(q Query) BatchIterator {
	return &discoveryIterator{
		d:       d,
		q:       q,
		windows: d.search.Search(q),
	}
}

type discoveryIterator struct {
	d       *Discovery
	q       Query
	windows *WindowIterator
	batch   []*model.Video
	err     error
}

func (it *discoveryIterator) Next(ctx context.Context) bool {
	it.batch = nil
	if it.err != nil {
		return false
	}
	if !it.windows.Next(ctx) {
		it.err = it.windows.Err()
		return false
	}

	window := it.windows.Window()
	descs := it.windows.Batch()
	batch := make([]*model.Video, 0, len(descs))
	for _, desc := range descs {
		stats, err := it.d.enricher.Enrich(ctx, desc.ID)
		if err != nil {
			if errors.Is(err, quota.ErrQuotaExhausted) || ctx.Err() != nil {
				it.err = fmt.Errorf("failed to enrich window %s: %w", window, err)
				return false
			}
			it.d.logger.Warn("failed to fetch stats", slog.String("video", string(desc.ID)), slog.String("error", err.Error()))
			stats = nil
		}
		if !it.q.Accept(stats) {
			it.d.logger.Debug("video filtered out", slog.String("video", string(desc.ID)))
			continue
		}

		video := model.NewVideo(desc)
		video.Stats = stats
		batch = append(batch, video)
	}

	it.d.logger.Info("discovered batch", slog.String("window", window.String()), slog.Int("found", len(descs)), slog.Int("kept", len(batch)))
	it.batch = batch

	return true
}

func (it *discoveryIterator) Batch() []*model.Video {
	return it.batch
}

func (it *discoveryIterator) Window() model.Window {
	return it.windows.Window()
}

func (it *discoveryIterator) Err() error {
	return it.err
}
