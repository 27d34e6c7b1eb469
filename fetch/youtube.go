package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"golang.org/x/exp/slog"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const maxSearchResults = 50

type Youtube struct {
	Client  *youtube.Service
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewYoutube(client *youtube.Service, limiter *rate.Limiter, logger *slog.Logger) *Youtube {
	return &Youtube{
		Client:  client,
		limiter: limiter,
		logger:  logger,
	}
}

// NewYoutubeBuilder returns a builder that creates a client for one API key. All
// clients built by it share limiter.
func NewYoutubeBuilder(limiter *rate.Limiter, logger *slog.Logger, opts ...option.ClientOption) quota.Builder[*Youtube] {
	return func(ctx context.Context, cred quota.Credential) (*Youtube, error) {
		clientOpts := append([]option.ClientOption{option.WithAPIKey(cred.Key)}, opts...)
		client, err := youtube.NewService(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create youtube service: %w", err)
		}

		return NewYoutube(client, limiter, logger), nil
	}
}

// AsSearchProvider and AsStatsProvider adapt a youtube builder to the provider
// interfaces used by the rotators.
func AsSearchProvider(build quota.Builder[*Youtube]) quota.Builder[SearchProvider] {
	return func(ctx context.Context, cred quota.Credential) (SearchProvider, error) {
		y, err := build(ctx, cred)
		if err != nil {
			return nil, err
		}
		return y, nil
	}
}

func AsStatsProvider(build quota.Builder[*Youtube]) quota.Builder[StatsProvider] {
	return func(ctx context.Context, cred quota.Credential) (StatsProvider, error) {
		y, err := build(ctx, cred)
		if err != nil {
			return nil, err
		}
		return y, nil
	}
}

func (y *Youtube) Search(ctx context.Context, req SearchRequest) ([]model.Descriptor, error) {
	if err := y.wait(ctx); err != nil {
		return nil, err
	}

	call := y.Client.Search.
		List([]string{"snippet"}).
		Q(req.Topic).
		Type("video").
		Order("viewCount").
		MaxResults(int64(min(req.MaxResults, maxSearchResults))).
		PublishedAfter(req.PublishedAfter.UTC().Format(time.RFC3339)).
		PublishedBefore(req.PublishedBefore.UTC().Format(time.RFC3339))
	if req.Language != "" {
		call = call.RelevanceLanguage(req.Language)
	}

	response, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	descs := make([]model.Descriptor, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Id.Kind != "youtube#video" || item.Snippet == nil {
			continue
		}
		published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			y.logger.Warn("skipping search result with invalid publish date", slog.String("video", item.Id.VideoId), slog.String("publishedAt", item.Snippet.PublishedAt), slog.String("error", err.Error()))
			continue
		}
		descs = append(descs, model.Descriptor{
			ID:          model.YoutubeVideoID(item.Id.VideoId),
			Title:       item.Snippet.Title,
			Channel:     item.Snippet.ChannelTitle,
			PublishedAt: published.UTC(),
			Description: item.Snippet.Description,
		})
	}

	return descs, nil
}

func (y *Youtube) FetchStats(ctx context.Context, id model.YoutubeVideoID) (*model.Stats, error) {
	if err := y.wait(ctx); err != nil {
		return nil, err
	}

	call := y.Client.Videos.
		List([]string{"statistics", "contentDetails"}).
		Id(string(id))

	response, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(response.Items) == 0 {
		return nil, nil
	}

	item := response.Items[0]
	stats := &model.Stats{}
	if item.Statistics != nil {
		stats.Views = model.Int(int64(item.Statistics.ViewCount))
		stats.Comments = model.Int(int64(item.Statistics.CommentCount))
		stats.Likes = model.Int(int64(item.Statistics.LikeCount))
	}
	var duration string
	if item.ContentDetails != nil {
		duration = item.ContentDetails.Duration
	}
	stats.LengthMinutes = model.Float(ParseDuration(duration))

	return stats, nil
}

func (y *Youtube) wait(ctx context.Context) error {
	if y.limiter == nil {
		return nil
	}
	return y.limiter.Wait(ctx)
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

// ClassifyYoutubeError only rotates on errors the API reports as quota or rate
// limit problems.
func ClassifyYoutubeError(err error) quota.Outcome {
	if err == nil {
		return quota.Success
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return quota.Fatal
	}
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		return quota.Retryable
	case http.StatusForbidden:
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return quota.Retryable
			}
		}
	}

	return quota.Fatal
}
