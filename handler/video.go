package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/storage"
	"golang.org/x/exp/slog"
)

type VideoAPI struct {
	videoRepo storage.VideoRepository
	finder    storage.VideoFinder
	logger    *slog.Logger
}

func NewVideoAPI(videoRepo storage.VideoRepository, logger *slog.Logger) *VideoAPI {
	finder, _ := videoRepo.(storage.VideoFinder)

	return &VideoAPI{
		videoRepo: videoRepo,
		finder:    finder,
		logger:    logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID, _ := ShiftPath(r.URL.Path)

	switch {
	case r.Method == http.MethodGet && videoID == "":
		v.List(w, r)
	case r.Method == http.MethodGet:
		v.Get(w, r, model.YoutubeVideoID(videoID))
	default:
		writeStatus(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, videoID), "")
	}
}

type videoFilter struct {
	minViews *int64
	maxViews *int64
	from     *time.Time
	to       *time.Time
}

func parseFilter(r *http.Request) (videoFilter, error) {
	var f videoFilter
	q := r.URL.Query()

	parseInt := func(name string) (*int64, error) {
		s := q.Get(name)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", name, s)
		}
		return &n, nil
	}
	parseDate := func(name string, endOfDay bool) (*time.Time, error) {
		s := q.Get(name)
		if s == "" {
			return nil, nil
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q, expected YYYY-MM-DD", name, s)
		}
		if endOfDay {
			t = t.Add(24*time.Hour - time.Second)
		}
		return &t, nil
	}

	var err error
	if f.minViews, err = parseInt("min_views"); err != nil {
		return f, err
	}
	if f.maxViews, err = parseInt("max_views"); err != nil {
		return f, err
	}
	if f.from, err = parseDate("from", false); err != nil {
		return f, err
	}
	if f.to, err = parseDate("to", true); err != nil {
		return f, err
	}

	return f, nil
}

func (f videoFilter) match(video *model.Video) bool {
	if f.from != nil && video.PublishedAt.Before(*f.from) {
		return false
	}
	if f.to != nil && video.PublishedAt.After(*f.to) {
		return false
	}
	if f.minViews == nil && f.maxViews == nil {
		return true
	}
	if video.Stats == nil || video.Stats.Views == nil {
		return false
	}
	views := *video.Stats.Views

	return (f.minViews == nil || views >= *f.minViews) && (f.maxViews == nil || views <= *f.maxViews)
}

func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid query", err, "")
		return
	}

	videos, err := v.candidates(r.Context(), filter)
	if err != nil {
		v.returnErr(w, http.StatusInternalServerError, "could not list videos", err, "")
		return
	}

	resp := []respVideo{}
	for _, video := range videos {
		if filter.match(video) {
			resp = append(resp, newRespVideo(video, false))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// candidates narrows the listing with the repository's own queries when it has
// them. The filter is applied again by the caller.
func (v *VideoAPI) candidates(ctx context.Context, f videoFilter) ([]*model.Video, error) {
	switch {
	case v.finder == nil:
		return v.videoRepo.ListAll(ctx)
	case f.from != nil || f.to != nil:
		from, to := time.Time{}, time.Now().AddDate(100, 0, 0)
		if f.from != nil {
			from = *f.from
		}
		if f.to != nil {
			to = *f.to
		}
		return v.finder.FindByPublished(ctx, from, to)
	case f.minViews != nil || f.maxViews != nil:
		return v.finder.FindByViews(ctx, f.minViews, f.maxViews)
	default:
		return v.videoRepo.ListAll(ctx)
	}
}

func (v *VideoAPI) Get(w http.ResponseWriter, r *http.Request, id model.YoutubeVideoID) {
	video, err := v.videoRepo.Get(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeStatus(w, http.StatusNotFound, "video not found", err, string(id))
		return
	case err != nil:
		v.returnErr(w, http.StatusInternalServerError, "could not get video", err, string(id))
		return
	}

	writeJSON(w, http.StatusOK, newRespVideo(video, true))
}

type respSentiment struct {
	Model      string   `json:"model"`
	Title      float64  `json:"title"`
	Transcript *float64 `json:"transcript,omitempty"`
}

type respVideo struct {
	ID            string         `json:"id"`
	URL           string         `json:"youtube_url"`
	Title         string         `json:"title"`
	Channel       string         `json:"channel"`
	PublishedAt   string         `json:"published_at"`
	Description   string         `json:"description,omitempty"`
	Views         *int64         `json:"views,omitempty"`
	Comments      *int64         `json:"comments,omitempty"`
	Likes         *int64         `json:"likes,omitempty"`
	LengthMinutes *float64       `json:"length_minutes,omitempty"`
	HasTranscript bool           `json:"has_transcript"`
	Transcript    *string        `json:"transcript,omitempty"`
	Sentiment     *respSentiment `json:"sentiment,omitempty"`
}

func newRespVideo(video *model.Video, withTranscript bool) respVideo {
	resp := respVideo{
		ID:            string(video.ID),
		URL:           video.URL(),
		Title:         video.Title,
		Channel:       video.Channel,
		PublishedAt:   video.PublishedAt.UTC().Format(time.RFC3339),
		Description:   video.Description,
		HasTranscript: video.HasTranscript(),
	}
	if video.Stats != nil {
		resp.Views = video.Stats.Views
		resp.Comments = video.Stats.Comments
		resp.Likes = video.Stats.Likes
		resp.LengthMinutes = video.Stats.LengthMinutes
	}
	if withTranscript {
		resp.Transcript = video.Transcript
	}
	if video.Sentiment != nil {
		resp.Sentiment = &respSentiment{
			Model:      video.Sentiment.Model,
			Title:      video.Sentiment.Title,
			Transcript: video.Sentiment.Transcript,
		}
	}

	return resp
}

func (v *VideoAPI) returnErr(w http.ResponseWriter, status int, message string, err error, id string) {
	v.logger.Error(message, slog.String("video", id), slog.String("error", err.Error()))
	writeStatus(w, status, message, err, id)
}
