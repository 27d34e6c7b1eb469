package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adam7171512/scrape/model"
)

var ErrInvalidQuery = errors.New("invalid query")

type SearchRequest struct {
	Topic           string
	PublishedAfter  time.Time
	PublishedBefore time.Time
	MaxResults      int
	Language        string
}

// SearchProvider returns the most viewed videos for a topic within a publish range.
type SearchProvider interface {
	Search(ctx context.Context, req SearchRequest) ([]model.Descriptor, error)
}

// StatsProvider returns nil stats without error when the platform has none,
// for example for a removed video.
type StatsProvider interface {
	FetchStats(ctx context.Context, id model.YoutubeVideoID) (*model.Stats, error)
}

// TranscriptProvider returns a nil transcript without error when none exists.
type TranscriptProvider interface {
	FetchTranscript(ctx context.Context, id model.YoutubeVideoID) (*string, error)
}

type Query struct {
	Topic               string
	Start               time.Time
	End                 time.Time
	TimeDeltaDays       int
	MaxResultsPerWindow int
	Language            string
	MinViews            *int64
	MinLengthMinutes    *float64
}

func (q Query) Validate() error {
	switch {
	case q.Topic == "":
		return fmt.Errorf("%w: topic is empty", ErrInvalidQuery)
	case q.TimeDeltaDays <= 0:
		return fmt.Errorf("%w: time delta must be positive, got %d", ErrInvalidQuery, q.TimeDeltaDays)
	case q.MaxResultsPerWindow <= 0:
		return fmt.Errorf("%w: max results per window must be positive, got %d", ErrInvalidQuery, q.MaxResultsPerWindow)
	case model.Day(q.Start).After(model.Day(q.End)):
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidQuery, q.Start.Format(time.DateOnly), q.End.Format(time.DateOnly))
	}

	return nil
}

// Accept applies the optional thresholds. Both must hold when both are set;
// unmeasured stats fail any threshold that is set.
func (q Query) Accept(stats *model.Stats) bool {
	if q.MinViews != nil {
		if stats == nil || stats.Views == nil || *stats.Views < *q.MinViews {
			return false
		}
	}
	if q.MinLengthMinutes != nil {
		if stats == nil || stats.LengthMinutes == nil || *stats.LengthMinutes < *q.MinLengthMinutes {
			return false
		}
	}

	return true
}

func (q Query) request(w model.Window) SearchRequest {
	return SearchRequest{
		Topic:           q.Topic,
		PublishedAfter:  w.PublishedAfter(),
		PublishedBefore: w.PublishedBefore(),
		MaxResults:      q.MaxResultsPerWindow,
		Language:        q.Language,
	}
}
