package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adam7171512/scrape/model"
)

// Memory keeps videos in a map. Videos are copied on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	videos map[model.YoutubeVideoID]*model.Video
}

func NewMemory() *Memory {
	return &Memory{
		videos: map[model.YoutubeVideoID]*model.Video{},
	}
}

func (m *Memory) AddIfAbsent(_ context.Context, video *model.Video) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.add(video), nil
}

func (m *Memory) UpdateIfPresent(_ context.Context, video *model.Video) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.update(video), nil
}

func (m *Memory) Upsert(_ context.Context, video *model.Video) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.upsert(video), nil
}

func (m *Memory) Get(_ context.Context, id model.YoutubeVideoID) (*model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	video, ok := m.videos[id]
	if !ok {
		return nil, ErrNotFound
	}

	return video.Clone(), nil
}

func (m *Memory) ListAll(_ context.Context) ([]*model.Video, error) {
	return m.find(func(*model.Video) bool { return true }), nil
}

func (m *Memory) GetMany(_ context.Context, ids []model.YoutubeVideoID) (map[model.YoutubeVideoID]*model.Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[model.YoutubeVideoID]*model.Video, len(ids))
	for _, id := range ids {
		if video, ok := m.videos[id]; ok {
			found[id] = video.Clone()
		}
	}

	return found, nil
}

func (m *Memory) AddManyIfAbsent(_ context.Context, videos []*model.Video) ([]bool, error) {
	return m.many(videos, m.add), nil
}

func (m *Memory) UpdateManyIfPresent(_ context.Context, videos []*model.Video) ([]bool, error) {
	return m.many(videos, m.update), nil
}

func (m *Memory) UpsertMany(_ context.Context, videos []*model.Video) ([]bool, error) {
	return m.many(videos, m.upsert), nil
}

func (m *Memory) FindByPublished(_ context.Context, from, to time.Time) ([]*model.Video, error) {
	return m.find(func(v *model.Video) bool {
		return !v.PublishedAt.Before(from) && !v.PublishedAt.After(to)
	}), nil
}

func (m *Memory) FindByViews(_ context.Context, minViews, maxViews *int64) ([]*model.Video, error) {
	return m.find(func(v *model.Video) bool {
		if v.Stats == nil || v.Stats.Views == nil {
			return false
		}
		views := *v.Stats.Views
		return (minViews == nil || views >= *minViews) && (maxViews == nil || views <= *maxViews)
	}), nil
}

func (m *Memory) add(video *model.Video) bool {
	if _, ok := m.videos[video.ID]; ok {
		return false
	}
	m.videos[video.ID] = video.Clone()

	return true
}

func (m *Memory) update(video *model.Video) bool {
	if _, ok := m.videos[video.ID]; !ok {
		return false
	}
	m.videos[video.ID] = video.Clone()

	return true
}

func (m *Memory) upsert(video *model.Video) bool {
	_, exists := m.videos[video.ID]
	m.videos[video.ID] = video.Clone()

	return !exists
}

func (m *Memory) many(videos []*model.Video, op func(*model.Video) bool) []bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]bool, len(videos))
	for i, video := range videos {
		res[i] = op(video)
	}

	return res
}

// find returns matching videos ordered by publish time, then id.
func (m *Memory) find(match func(*model.Video) bool) []*model.Video {
	m.mu.RLock()
	defer m.mu.RUnlock()

	videos := make([]*model.Video, 0, len(m.videos))
	for _, video := range m.videos {
		if match(video) {
			videos = append(videos, video.Clone())
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].PublishedAt.Equal(videos[j].PublishedAt) {
			return videos[i].PublishedAt.Before(videos[j].PublishedAt)
		}
		return videos[i].ID < videos[j].ID
	})

	return videos
}
