package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	className = "Video"
	pageSize  = 100
)

// Weaviate stores videos as objects of one class so titles and transcripts can
// be searched by meaning.
type Weaviate struct {
	client *weaviate.Client
}

type WeaviateInfo struct {
	Scheme       string
	Host         string
	ApiKey       string
	OpenaiApiKey string
}

func NewWeaviate(info WeaviateInfo) (*Weaviate, error) {
	scheme := info.Scheme
	if scheme == "" {
		scheme = "https"
	}
	config := weaviate.Config{
		Scheme: scheme,
		Host:   info.Host,
		Headers: map[string]string{
			"X-OpenAI-Api-Key": info.OpenaiApiKey,
		},
	}
	if info.ApiKey != "" {
		config.AuthConfig = auth.ApiKey{Value: info.ApiKey}
	}

	c, err := weaviate.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Weaviate{client: c}, nil
}

// EnsureSchema creates the video class if it does not exist yet.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	_, err := w.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
	if err == nil {
		return nil
	}
	var clientErr *fault.WeaviateClientError
	if !errors.As(err, &clientErr) || clientErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to check schema: %w", err)
	}

	text := func(name string) *models.Property {
		return &models.Property{Name: name, DataType: []string{"text"}}
	}
	number := func(name string) *models.Property {
		return &models.Property{
			Name:     name,
			DataType: []string{"number"},
			ModuleConfig: map[string]any{
				"text2vec-openai": map[string]any{"skip": true},
			},
		}
	}
	classObj := &models.Class{
		Class:      className,
		Vectorizer: "text2vec-openai",
		ModuleConfig: map[string]any{
			"text2vec-openai": map[string]any{
				"model":        "ada",
				"modelVersion": "002",
				"type":         "text",
			},
		},
		Properties: []*models.Property{
			text("videoId"), text("title"), text("channel"), text("publishedAt"), text("description"),
			{Name: "hasStats", DataType: []string{"boolean"}},
			number("views"), number("comments"), number("likes"), number("lengthMinutes"),
			text("transcript"), text("sentimentModel"),
			number("sentimentTitle"), number("sentimentTranscript"),
		},
	}

	return w.client.Schema().ClassCreator().WithClass(classObj).Do(ctx)
}

func (w *Weaviate) AddIfAbsent(ctx context.Context, video *model.Video) (bool, error) {
	exists, err := w.exists(ctx, video.ID)
	if err != nil || exists {
		return false, err
	}

	return true, w.create(ctx, video)
}

func (w *Weaviate) UpdateIfPresent(ctx context.Context, video *model.Video) (bool, error) {
	exists, err := w.exists(ctx, video.ID)
	if err != nil || !exists {
		return false, err
	}

	return true, w.replace(ctx, video)
}

func (w *Weaviate) Upsert(ctx context.Context, video *model.Video) (bool, error) {
	exists, err := w.exists(ctx, video.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, w.replace(ctx, video)
	}

	return true, w.create(ctx, video)
}

func (w *Weaviate) Get(ctx context.Context, id model.YoutubeVideoID) (*model.Video, error) {
	objs, err := w.client.Data().
		ObjectsGetter().
		WithID(objectID(id)).
		WithClassName(className).
		Do(ctx)
	if err != nil {
		var clientErr *fault.WeaviateClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	}
	if len(objs) == 0 {
		return nil, ErrNotFound
	}

	return decodeVideo(objs[0].Properties)
}

func (w *Weaviate) ListAll(ctx context.Context) ([]*model.Video, error) {
	videos := []*model.Video{}
	for offset := 0; ; offset += pageSize {
		objs, err := w.client.Data().
			ObjectsGetter().
			WithClassName(className).
			WithLimit(pageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list videos: %w", err)
		}
		for _, obj := range objs {
			video, err := decodeVideo(obj.Properties)
			if err != nil {
				return nil, err
			}
			videos = append(videos, video)
		}
		if len(objs) < pageSize {
			return videos, nil
		}
	}
}

func (w *Weaviate) exists(ctx context.Context, id model.YoutubeVideoID) (bool, error) {
	exists, err := w.client.Data().
		Checker().
		WithID(objectID(id)).
		WithClassName(className).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check video %s: %w", id, err)
	}

	return exists, nil
}

func (w *Weaviate) create(ctx context.Context, video *model.Video) error {
	_, err := w.client.Data().
		Creator().
		WithClassName(className).
		WithID(objectID(video.ID)).
		WithProperties(encodeVideo(video)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to create video %s: %w", video.ID, err)
	}

	return nil
}

func (w *Weaviate) replace(ctx context.Context, video *model.Video) error {
	err := w.client.Data().
		Updater().
		WithID(objectID(video.ID)).
		WithClassName(className).
		WithProperties(encodeVideo(video)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to update video %s: %w", video.ID, err)
	}

	return nil
}

// objectID derives a stable object id from the video id.
func objectID(id model.YoutubeVideoID) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.youtube.com/watch?v="+string(id))).String()
}

type weaviateVideo struct {
	VideoID             string   `json:"videoId"`
	Title               string   `json:"title"`
	Channel             string   `json:"channel"`
	PublishedAt         string   `json:"publishedAt"`
	Description         string   `json:"description,omitempty"`
	HasStats            bool     `json:"hasStats"`
	Views               *int64   `json:"views,omitempty"`
	Comments            *int64   `json:"comments,omitempty"`
	Likes               *int64   `json:"likes,omitempty"`
	LengthMinutes       *float64 `json:"lengthMinutes,omitempty"`
	Transcript          *string  `json:"transcript,omitempty"`
	SentimentModel      *string  `json:"sentimentModel,omitempty"`
	SentimentTitle      *float64 `json:"sentimentTitle,omitempty"`
	SentimentTranscript *float64 `json:"sentimentTranscript,omitempty"`
}

func encodeVideo(video *model.Video) weaviateVideo {
	wv := weaviateVideo{
		VideoID:     string(video.ID),
		Title:       video.Title,
		Channel:     video.Channel,
		PublishedAt: video.PublishedAt.UTC().Format(timeFormat),
		Description: video.Description,
		HasStats:    video.Stats != nil,
		Transcript:  video.Transcript,
	}
	if video.Stats != nil {
		wv.Views = video.Stats.Views
		wv.Comments = video.Stats.Comments
		wv.Likes = video.Stats.Likes
		wv.LengthMinutes = video.Stats.LengthMinutes
	}
	if video.Sentiment != nil {
		wv.SentimentModel = model.String(video.Sentiment.Model)
		wv.SentimentTitle = model.Float(video.Sentiment.Title)
		wv.SentimentTranscript = video.Sentiment.Transcript
	}

	return wv
}

func decodeVideo(props models.PropertySchema) (*model.Video, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	var wv weaviateVideo
	if err := json.Unmarshal(data, &wv); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	publishedAt, err := time.Parse(timeFormat, wv.PublishedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid publishedAt %q: %w", wv.PublishedAt, err)
	}
	video := model.NewVideo(model.Descriptor{
		ID:          model.YoutubeVideoID(wv.VideoID),
		Title:       wv.Title,
		Channel:     wv.Channel,
		PublishedAt: publishedAt.UTC(),
		Description: wv.Description,
	})
	if wv.HasStats {
		video.Stats = &model.Stats{
			Views:         wv.Views,
			Comments:      wv.Comments,
			Likes:         wv.Likes,
			LengthMinutes: wv.LengthMinutes,
		}
	}
	video.Transcript = wv.Transcript
	if wv.SentimentModel != nil {
		video.Sentiment = &model.SentimentRating{
			Model:      *wv.SentimentModel,
			Transcript: wv.SentimentTranscript,
		}
		if wv.SentimentTitle != nil {
			video.Sentiment.Title = *wv.SentimentTitle
		}
	}

	return video, nil
}
