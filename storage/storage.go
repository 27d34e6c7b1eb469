package storage

import (
	"context"
	"errors"
	"time"

	"github.com/adam7171512/scrape/model"
)

var ErrNotFound = errors.New("video not found")

// VideoRepository stores videos keyed by id. The boolean results report whether
// the call changed anything: AddIfAbsent inserted, UpdateIfPresent found a record
// to replace, Upsert created a new record instead of replacing one.
type VideoRepository interface {
	AddIfAbsent(ctx context.Context, video *model.Video) (bool, error)
	UpdateIfPresent(ctx context.Context, video *model.Video) (bool, error)
	Upsert(ctx context.Context, video *model.Video) (bool, error)
	Get(ctx context.Context, id model.YoutubeVideoID) (*model.Video, error)
	ListAll(ctx context.Context) ([]*model.Video, error)
}

// BulkRepository is implemented by repositories that can write a batch in one
// round trip. Results are in the order of the input.
type BulkRepository interface {
	GetMany(ctx context.Context, ids []model.YoutubeVideoID) (map[model.YoutubeVideoID]*model.Video, error)
	AddManyIfAbsent(ctx context.Context, videos []*model.Video) ([]bool, error)
	UpdateManyIfPresent(ctx context.Context, videos []*model.Video) ([]bool, error)
	UpsertMany(ctx context.Context, videos []*model.Video) ([]bool, error)
}

type VideoFinder interface {
	// FindByPublished returns videos published in [from, to].
	FindByPublished(ctx context.Context, from, to time.Time) ([]*model.Video, error)
	// FindByViews returns videos with measured views within the given bounds. A
	// nil bound is open.
	FindByViews(ctx context.Context, minViews, maxViews *int64) ([]*model.Video, error)
}
