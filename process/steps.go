package process

import (
	"context"

	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/storage"
	"golang.org/x/exp/slog"
)

// steps holds the per video work shared by the pipeline and the fillers. The
// transcribe and rate methods only change the video in memory; save writes it.
type steps struct {
	repo        storage.VideoRepository
	transcripts fetch.TranscriptProvider
	rater       SentimentRater
	overwrite   bool
	logger      *slog.Logger
}

// transcribe fetches a transcript unless one is kept from an earlier run. It
// reports whether a fetch happened. A failed fetch counts as no transcript.
func (s *steps) transcribe(ctx context.Context, video *model.Video) bool {
	if video.Transcript != nil && !s.overwrite {
		return false
	}

	transcript, err := s.transcripts.FetchTranscript(ctx, video.ID)
	if err != nil {
		s.logger.Warn("failed to fetch transcript", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
		transcript = nil
	}
	if transcript == nil {
		s.logger.Info("no transcript available", slog.String("video", string(video.ID)))
	}
	video.Transcript = transcript

	return true
}

// rate fills in the sentiment rating and reports whether it changed. A kept
// rating that lacks a transcript score gets one once a transcript exists.
func (s *steps) rate(ctx context.Context, video *model.Video) bool {
	if existing := video.Sentiment; existing != nil && !s.overwrite {
		if existing.Transcript != nil || !video.HasTranscript() {
			return false
		}
		score, ok := s.score(ctx, video, "transcript", *video.Transcript)
		if !ok {
			return false
		}
		video.Sentiment = &model.SentimentRating{
			Model:      s.rater.Name(),
			Title:      existing.Title,
			Transcript: model.Float(score),
		}
		return true
	}

	title, ok := s.score(ctx, video, "title", video.Title)
	if !ok {
		return false
	}
	rating := &model.SentimentRating{
		Model: s.rater.Name(),
		Title: title,
	}
	if video.HasTranscript() {
		if score, ok := s.score(ctx, video, "transcript", *video.Transcript); ok {
			rating.Transcript = model.Float(score)
		}
	}
	video.Sentiment = rating

	return true
}

func (s *steps) score(ctx context.Context, video *model.Video, field, text string) (float64, bool) {
	score, err := s.rater.Rate(ctx, text)
	if err != nil {
		s.logger.Warn("failed to rate sentiment", slog.String("video", string(video.ID)), slog.String("field", field), slog.String("error", err.Error()))
		return 0, false
	}

	return score, true
}

// save persists video and reports whether processing of it can continue.
func (s *steps) save(ctx context.Context, video *model.Video) bool {
	updated, err := s.repo.UpdateIfPresent(ctx, video)
	if err != nil {
		s.logger.Error("failed to save video", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
		return false
	}
	if !updated {
		s.logger.Warn("video to update not found", slog.String("video", string(video.ID)))
	}

	return true
}
