package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"miniflux.app/client"
)

type MinifluxInfo struct {
	Endpoint string
	ApiKey   string
}

// Miniflux searches the YouTube entries a feed reader already collected. It
// spends no platform quota and ranks by publish date, not popularity.
type Miniflux struct {
	client *client.Client
}

func NewMiniflux(mflInfo MinifluxInfo) *Miniflux {
	return &Miniflux{
		client: client.New(mflInfo.Endpoint, mflInfo.ApiKey),
	}
}

// SearchBuilder hands out the same client for every credential.
func (m *Miniflux) SearchBuilder() quota.Builder[SearchProvider] {
	return func(context.Context, quota.Credential) (SearchProvider, error) {
		return m, nil
	}
}

func (m *Miniflux) Search(ctx context.Context, req SearchRequest) ([]model.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := m.client.Entries(&client.Filter{
		Search:    req.Topic,
		After:     req.PublishedAfter.Unix(),
		Before:    req.PublishedBefore.Unix(),
		Limit:     req.MaxResults,
		Order:     "published_at",
		Direction: "desc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search miniflux entries: %w", err)
	}

	descs := make([]model.Descriptor, 0, len(result.Entries))
	for _, entry := range result.Entries {
		id, ok := youtubeID(entry.URL)
		if !ok {
			continue
		}
		var channel string
		if entry.Feed != nil {
			channel = entry.Feed.Title
		}
		descs = append(descs, model.Descriptor{
			ID:          id,
			Title:       entry.Title,
			Channel:     channel,
			PublishedAt: entry.Date.UTC(),
			Description: entry.Content,
		})
	}

	return descs, nil
}

func youtubeID(rawURL string) (model.YoutubeVideoID, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	var id string
	switch strings.TrimPrefix(u.Hostname(), "www.") {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
		}
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	}
	if id == "" {
		return "", false
	}

	return model.YoutubeVideoID(id), true
}
