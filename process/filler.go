package process

import (
	"context"
	"fmt"

	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/storage"
	"golang.org/x/exp/slog"
)

// Filler completes videos that are already stored, for runs where transcripts
// or ratings were skipped or failed.
type Filler struct {
	steps
}

func NewFiller(repo storage.VideoRepository, transcripts fetch.TranscriptProvider, rater SentimentRater, logger *slog.Logger) *Filler {
	return &Filler{
		steps: steps{
			repo:        repo,
			transcripts: transcripts,
			rater:       rater,
			logger:      logger,
		},
	}
}

func (f *Filler) FillMissingTranscripts(ctx context.Context) error {
	return f.fill(ctx, "transcripts", func(video *model.Video) bool {
		return !video.HasTranscript()
	}, func(video *model.Video) bool {
		video.Transcript = nil
		return f.transcribe(ctx, video) && video.Transcript != nil
	})
}

func (f *Filler) FillMissingSentiment(ctx context.Context) error {
	return f.fill(ctx, "sentiment", func(video *model.Video) bool {
		return video.Sentiment == nil || (video.Sentiment.Transcript == nil && video.HasTranscript())
	}, func(video *model.Video) bool {
		return f.rate(ctx, video)
	})
}

func (f *Filler) fill(ctx context.Context, what string, missing func(*model.Video) bool, complete func(*model.Video) bool) error {
	videos, err := f.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list videos: %w", err)
	}

	candidates, filled := 0, 0
	for _, video := range videos {
		if !missing(video) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates++
		if complete(video) && f.save(ctx, video) {
			filled++
		}
	}

	f.logger.Info("filled missing "+what, slog.Int("candidates", candidates), slog.Int("filled", filled))
	return nil
}
