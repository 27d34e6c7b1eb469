package storage

import (
	"context"
	"errors"

	"github.com/adam7171512/scrape/model"
	"golang.org/x/exp/slog"
)

// Mirrored reads from primary and copies every successful write to secondary.
// The secondary is best effort: its failures are logged, never returned. The
// bulk operations use the primary's own when it has them.
type Mirrored struct {
	primary   VideoRepository
	secondary VideoRepository
	logger    *slog.Logger
}

func NewMirrored(primary, secondary VideoRepository, logger *slog.Logger) *Mirrored {
	return &Mirrored{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (m *Mirrored) AddIfAbsent(ctx context.Context, video *model.Video) (bool, error) {
	added, err := m.primary.AddIfAbsent(ctx, video)
	if err != nil || !added {
		return added, err
	}
	m.mirror(ctx, video)

	return true, nil
}

func (m *Mirrored) UpdateIfPresent(ctx context.Context, video *model.Video) (bool, error) {
	updated, err := m.primary.UpdateIfPresent(ctx, video)
	if err != nil || !updated {
		return updated, err
	}
	m.mirror(ctx, video)

	return true, nil
}

func (m *Mirrored) Upsert(ctx context.Context, video *model.Video) (bool, error) {
	created, err := m.primary.Upsert(ctx, video)
	if err != nil {
		return false, err
	}
	m.mirror(ctx, video)

	return created, nil
}

func (m *Mirrored) Get(ctx context.Context, id model.YoutubeVideoID) (*model.Video, error) {
	return m.primary.Get(ctx, id)
}

func (m *Mirrored) ListAll(ctx context.Context) ([]*model.Video, error) {
	return m.primary.ListAll(ctx)
}

func (m *Mirrored) GetMany(ctx context.Context, ids []model.YoutubeVideoID) (map[model.YoutubeVideoID]*model.Video, error) {
	if bulk, ok := m.primary.(BulkRepository); ok {
		return bulk.GetMany(ctx, ids)
	}

	found := make(map[model.YoutubeVideoID]*model.Video, len(ids))
	for _, id := range ids {
		video, err := m.primary.Get(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		found[id] = video
	}

	return found, nil
}

func (m *Mirrored) AddManyIfAbsent(ctx context.Context, videos []*model.Video) ([]bool, error) {
	added, err := m.many(ctx, videos, BulkRepository.AddManyIfAbsent, m.primary.AddIfAbsent)
	if err != nil {
		return nil, err
	}
	m.mirrorMany(ctx, videos, added)

	return added, nil
}

func (m *Mirrored) UpdateManyIfPresent(ctx context.Context, videos []*model.Video) ([]bool, error) {
	updated, err := m.many(ctx, videos, BulkRepository.UpdateManyIfPresent, m.primary.UpdateIfPresent)
	if err != nil {
		return nil, err
	}
	m.mirrorMany(ctx, videos, updated)

	return updated, nil
}

func (m *Mirrored) UpsertMany(ctx context.Context, videos []*model.Video) ([]bool, error) {
	created, err := m.many(ctx, videos, BulkRepository.UpsertMany, m.primary.Upsert)
	if err != nil {
		return nil, err
	}
	written := make([]bool, len(videos))
	for i := range written {
		written[i] = true
	}
	m.mirrorMany(ctx, videos, written)

	return created, nil
}

func (m *Mirrored) many(ctx context.Context, videos []*model.Video, bulk func(BulkRepository, context.Context, []*model.Video) ([]bool, error), single func(context.Context, *model.Video) (bool, error)) ([]bool, error) {
	if b, ok := m.primary.(BulkRepository); ok {
		return bulk(b, ctx, videos)
	}

	res := make([]bool, len(videos))
	for i, video := range videos {
		ok, err := single(ctx, video)
		if err != nil {
			return nil, err
		}
		res[i] = ok
	}

	return res, nil
}

// mirrorMany copies the videos whose primary write changed something.
func (m *Mirrored) mirrorMany(ctx context.Context, videos []*model.Video, changed []bool) {
	for i, video := range videos {
		if changed[i] {
			m.mirror(ctx, video)
		}
	}
}

// mirror upserts, so a secondary that missed earlier writes catches up.
func (m *Mirrored) mirror(ctx context.Context, video *model.Video) {
	if _, err := m.secondary.Upsert(ctx, video); err != nil {
		m.logger.Error("failed to save video in secondary storage", slog.String("video", string(video.ID)), slog.String("error", err.Error()))
	}
}
