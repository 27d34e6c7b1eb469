package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/storage"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

type Strategy string

const (
	StrategySerial Strategy = "serial"
	StrategyStaged Strategy = "std"
	StrategyBatch  Strategy = "batch"
)

var ErrUnknownStrategy = errors.New("unknown pipeline strategy")

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategySerial, StrategyStaged, StrategyBatch:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

type Options struct {
	Strategy          Strategy
	OverwriteExisting bool
	// Workers bounds the concurrent transcript and rating calls of the batch strategy.
	Workers int
}

type Discoverer interface {
	Discover(q fetch.Query) fetch.BatchIterator
}

// Pipeline stores discovered videos and completes them with a transcript and a
// sentiment rating. The strategies differ in how a batch is walked, not in what
// ends up in the repository.
type Pipeline struct {
	steps
	discoverer Discoverer
	bulk       storage.BulkRepository
	strategy   Strategy
	workers    int
}

func NewPipeline(discoverer Discoverer, repo storage.VideoRepository, transcripts fetch.TranscriptProvider, rater SentimentRater, opts Options, logger *slog.Logger) *Pipeline {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyStaged
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	bulk, _ := repo.(storage.BulkRepository)

	return &Pipeline{
		steps: steps{
			repo:        repo,
			transcripts: transcripts,
			rater:       rater,
			overwrite:   opts.OverwriteExisting,
			logger:      logger,
		},
		discoverer: discoverer,
		bulk:       bulk,
		strategy:   strategy,
		workers:    workers,
	}
}

// Process runs discovery for q and ingests every batch it yields. Failures of a
// single video are logged and skipped; only a failed discovery or a cancelled
// context end the run with an error. Batches handled before that stay stored.
func (p *Pipeline) Process(ctx context.Context, q fetch.Query) error {
	p.logger.Info("starting pipeline", slog.String("topic", q.Topic), slog.String("strategy", string(p.strategy)), slog.Bool("overwrite", p.overwrite))

	it := p.discoverer.Discover(q)
	batches, videos := 0, 0
	for it.Next(ctx) {
		batch := unique(it.Batch())
		p.logger.Info("processing batch", slog.String("window", it.Window().String()), slog.Int("count", len(batch)))

		switch p.strategy {
		case StrategySerial:
			p.serial(ctx, batch)
		case StrategyBatch:
			p.batch(ctx, batch)
		default:
			p.staged(ctx, batch)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		batches++
		videos += len(batch)
	}
	if err := it.Err(); err != nil {
		p.logger.Error("discovery stopped", slog.Int("batches", batches), slog.String("error", err.Error()))
		return fmt.Errorf("discovery stopped after %d batches: %w", batches, err)
	}

	p.logger.Info("pipeline finished", slog.Int("batches", batches), slog.Int("videos", videos))
	return nil
}

func (p *Pipeline) serial(ctx context.Context, batch []*model.Video) {
	for _, video := range batch {
		video, ok := p.admit(ctx, video)
		if !ok {
			continue
		}
		if p.transcribe(ctx, video) && !p.save(ctx, video) {
			continue
		}
		if p.rate(ctx, video) {
			p.save(ctx, video)
		}
	}
}

func (p *Pipeline) staged(ctx context.Context, batch []*model.Video) {
	admitted := make([]*model.Video, 0, len(batch))
	for _, video := range batch {
		if video, ok := p.admit(ctx, video); ok {
			admitted = append(admitted, video)
		}
	}

	transcribed := make([]*model.Video, 0, len(admitted))
	for _, video := range admitted {
		if p.transcribe(ctx, video) && !p.save(ctx, video) {
			continue
		}
		transcribed = append(transcribed, video)
	}

	for _, video := range transcribed {
		if p.rate(ctx, video) {
			p.save(ctx, video)
		}
	}
}

// batch runs the stages like staged, but fans the calls of a stage out over
// workers and writes each stage's changes in one call when the repository
// supports it.
func (p *Pipeline) batch(ctx context.Context, batch []*model.Video) {
	admitted := p.admitAll(ctx, batch)

	changed := p.fanOut(admitted, func(video *model.Video) bool {
		return p.transcribe(ctx, video)
	})
	transcribed := p.saveAll(ctx, admitted, changed)

	changed = p.fanOut(transcribed, func(video *model.Video) bool {
		return p.rate(ctx, video)
	})
	p.saveAll(ctx, transcribed, changed)
}

// fanOut calls fn for every video and returns once all calls are done. Each
// video is handled by exactly one worker.
func (p *Pipeline) fanOut(videos []*model.Video, fn func(*model.Video) bool) []bool {
	changed := make([]bool, len(videos))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, video := range videos {
		i, video := i, video
		g.Go(func() error {
			changed[i] = fn(video)
			return nil
		})
	}
	_ = g.Wait()

	return changed
}

// admit stores a discovered video. Without overwrite an already stored record
// wins over the discovered one, so earlier work is kept.
func (p *Pipeline) admit(ctx context.Context, video *model.Video) (*model.Video, bool) {
	if p.overwrite {
		if _, err := p.repo.Upsert(ctx, video); err != nil {
			p.logger.Error("failed to save video", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
			return nil, false
		}
		return video, true
	}

	stored, err := p.repo.Get(ctx, video.ID)
	switch {
	case err == nil:
		p.logger.Debug("continuing with stored video", slog.String("video", string(video.ID)))
		return stored, true
	case !errors.Is(err, storage.ErrNotFound):
		p.logger.Error("failed to look up video", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
		return nil, false
	}

	added, err := p.repo.AddIfAbsent(ctx, video)
	if err != nil {
		p.logger.Error("failed to save video", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
		return nil, false
	}
	if !added {
		p.logger.Warn("video already exists", slog.String("video", string(video.ID)))
	}

	return video, true
}

func (p *Pipeline) admitAll(ctx context.Context, batch []*model.Video) []*model.Video {
	if p.bulk == nil {
		admitted := make([]*model.Video, 0, len(batch))
		for _, video := range batch {
			if video, ok := p.admit(ctx, video); ok {
				admitted = append(admitted, video)
			}
		}
		return admitted
	}

	if p.overwrite {
		if _, err := p.bulk.UpsertMany(ctx, batch); err != nil {
			p.logger.Error("failed to save batch", slog.Int("count", len(batch)), slog.String("error", err.Error()))
			return nil
		}
		return batch
	}

	ids := make([]model.YoutubeVideoID, len(batch))
	for i, video := range batch {
		ids[i] = video.ID
	}
	stored, err := p.bulk.GetMany(ctx, ids)
	if err != nil {
		p.logger.Error("failed to look up batch", slog.Int("count", len(batch)), slog.String("error", err.Error()))
		return nil
	}

	var fresh []*model.Video
	for _, video := range batch {
		if _, ok := stored[video.ID]; !ok {
			fresh = append(fresh, video)
		}
	}
	freshOK := true
	if len(fresh) > 0 {
		added, err := p.bulk.AddManyIfAbsent(ctx, fresh)
		if err != nil {
			p.logger.Error("failed to save batch", slog.Int("count", len(fresh)), slog.String("error", err.Error()))
			freshOK = false
		}
		for i, ok := range added {
			if !ok {
				p.logger.Warn("video already exists", slog.String("video", string(fresh[i].ID)))
			}
		}
	}

	admitted := make([]*model.Video, 0, len(batch))
	for _, video := range batch {
		switch s, ok := stored[video.ID]; {
		case ok:
			admitted = append(admitted, s)
		case freshOK:
			admitted = append(admitted, video)
		}
	}

	return admitted
}

// saveAll writes the changed videos and returns the videos that can go on to
// the next stage.
func (p *Pipeline) saveAll(ctx context.Context, videos []*model.Video, changed []bool) []*model.Video {
	var dirty []*model.Video
	for i, video := range videos {
		if changed[i] {
			dirty = append(dirty, video)
		}
	}
	if len(dirty) == 0 {
		return videos
	}

	if p.bulk == nil {
		kept := make([]*model.Video, 0, len(videos))
		for i, video := range videos {
			if changed[i] && !p.save(ctx, video) {
				continue
			}
			kept = append(kept, video)
		}
		return kept
	}

	updated, err := p.bulk.UpdateManyIfPresent(ctx, dirty)
	if err != nil {
		p.logger.Error("failed to save batch", slog.Int("count", len(dirty)), slog.String("error", err.Error()))
		kept := make([]*model.Video, 0, len(videos))
		for i, video := range videos {
			if !changed[i] {
				kept = append(kept, video)
			}
		}
		return kept
	}
	for i, ok := range updated {
		if !ok {
			p.logger.Warn("video to update not found", slog.String("video", string(dirty[i].ID)))
		}
	}

	return videos
}

// unique drops repeated ids, keeping the first occurrence.
func unique(batch []*model.Video) []*model.Video {
	seen := make(map[model.YoutubeVideoID]bool, len(batch))
	out := make([]*model.Video, 0, len(batch))
	for _, video := range batch {
		if seen[video.ID] {
			continue
		}
		seen[video.ID] = true
		out = append(out, video)
	}

	return out
}
