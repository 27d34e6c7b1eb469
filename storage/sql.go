package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adam7171512/scrape/model"
)

const (
	videoColumns = `id, title, channel, published_at, description, has_stats, views, comments, likes, length_minutes,
transcript, sentiment_model, sentiment_title, sentiment_transcript`
	videoPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	videoAssignments  = `title = ?, channel = ?, published_at = ?, description = ?, has_stats = ?, views = ?, comments = ?,
likes = ?, length_minutes = ?, transcript = ?, sentiment_model = ?, sentiment_title = ?, sentiment_transcript = ?`
	videoExcluded = `title = excluded.title, channel = excluded.channel, published_at = excluded.published_at,
description = excluded.description, has_stats = excluded.has_stats, views = excluded.views, comments = excluded.comments,
likes = excluded.likes, length_minutes = excluded.length_minutes, transcript = excluded.transcript,
sentiment_model = excluded.sentiment_model, sentiment_title = excluded.sentiment_title,
sentiment_transcript = excluded.sentiment_transcript`

	timeFormat = time.RFC3339
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL is a relational VideoRepository. Construct it with NewPostgres or NewSQLite.
type SQL struct {
	db      *sql.DB
	dialect dialect
}

func (s *SQL) AddIfAbsent(ctx context.Context, video *model.Video) (bool, error) {
	return s.add(ctx, s.db, video)
}

func (s *SQL) UpdateIfPresent(ctx context.Context, video *model.Video) (bool, error) {
	return s.update(ctx, s.db, video)
}

func (s *SQL) Upsert(ctx context.Context, video *model.Video) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = s.upsert(ctx, tx, video)
		return err
	})

	return created, err
}

func (s *SQL) Get(ctx context.Context, id model.YoutubeVideoID) (*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM video WHERE id = ?`
	video, err := scanVideo(s.db.QueryRowContext(ctx, s.dialect.rebind(query), string(id)))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	}

	return video, nil
}

func (s *SQL) ListAll(ctx context.Context) ([]*model.Video, error) {
	return s.find(ctx, "", nil)
}

func (s *SQL) GetMany(ctx context.Context, ids []model.YoutubeVideoID) (map[model.YoutubeVideoID]*model.Video, error) {
	found := make(map[model.YoutubeVideoID]*model.Video, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	videos, err := s.find(ctx, `id IN (?`+strings.Repeat(`, ?`, len(ids)-1)+`)`, args)
	if err != nil {
		return nil, err
	}
	for _, video := range videos {
		found[video.ID] = video
	}

	return found, nil
}

func (s *SQL) AddManyIfAbsent(ctx context.Context, videos []*model.Video) ([]bool, error) {
	return s.many(ctx, videos, s.add)
}

func (s *SQL) UpdateManyIfPresent(ctx context.Context, videos []*model.Video) ([]bool, error) {
	return s.many(ctx, videos, s.update)
}

func (s *SQL) UpsertMany(ctx context.Context, videos []*model.Video) ([]bool, error) {
	return s.many(ctx, videos, s.upsert)
}

func (s *SQL) FindByPublished(ctx context.Context, from, to time.Time) ([]*model.Video, error) {
	return s.find(ctx, `published_at >= ? AND published_at <= ?`, []any{
		from.UTC().Format(timeFormat),
		to.UTC().Format(timeFormat),
	})
}

func (s *SQL) FindByViews(ctx context.Context, minViews, maxViews *int64) ([]*model.Video, error) {
	where := []string{`views IS NOT NULL`}
	args := []any{}
	if minViews != nil {
		where = append(where, `views >= ?`)
		args = append(args, *minViews)
	}
	if maxViews != nil {
		where = append(where, `views <= ?`)
		args = append(args, *maxViews)
	}

	return s.find(ctx, strings.Join(where, " AND "), args)
}

func (s *SQL) add(ctx context.Context, q querier, video *model.Video) (bool, error) {
	query := `INSERT INTO video (` + videoColumns + `) VALUES (` + videoPlaceholders + `)
ON CONFLICT (id) DO NOTHING`
	res, err := q.ExecContext(ctx, s.dialect.rebind(query), append([]any{string(video.ID)}, videoValues(video)...)...)
	if err != nil {
		return false, fmt.Errorf("failed to insert video %s: %w", video.ID, err)
	}

	return affected(res)
}

func (s *SQL) update(ctx context.Context, q querier, video *model.Video) (bool, error) {
	query := `UPDATE video SET ` + videoAssignments + ` WHERE id = ?`
	res, err := q.ExecContext(ctx, s.dialect.rebind(query), append(videoValues(video), string(video.ID))...)
	if err != nil {
		return false, fmt.Errorf("failed to update video %s: %w", video.ID, err)
	}

	return affected(res)
}

// upsert must run inside a transaction so the existence check and the write
// see the same state.
func (s *SQL) upsert(ctx context.Context, q querier, video *model.Video) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, s.dialect.rebind(`SELECT COUNT(*) FROM video WHERE id = ?`), string(video.ID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check video %s: %w", video.ID, err)
	}

	query := `INSERT INTO video (` + videoColumns + `) VALUES (` + videoPlaceholders + `)
ON CONFLICT (id) DO UPDATE SET ` + videoExcluded
	if _, err := q.ExecContext(ctx, s.dialect.rebind(query), append([]any{string(video.ID)}, videoValues(video)...)...); err != nil {
		return false, fmt.Errorf("failed to upsert video %s: %w", video.ID, err)
	}

	return exists == 0, nil
}

func (s *SQL) many(ctx context.Context, videos []*model.Video, op func(context.Context, querier, *model.Video) (bool, error)) ([]bool, error) {
	res := make([]bool, len(videos))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for i, video := range videos {
			ok, err := op(ctx, tx, video)
			if err != nil {
				return err
			}
			res[i] = ok
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *SQL) find(ctx context.Context, where string, args []any) ([]*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM video`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY published_at, id`

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	videos := []*model.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read videos: %w", err)
	}

	return videos, nil
}

// videoValues returns every column but id, in column order.
func videoValues(video *model.Video) []any {
	var (
		views, comments, likes sql.NullInt64
		length                 sql.NullFloat64
		transcript, sentModel  sql.NullString
		sentTitle, sentTrans   sql.NullFloat64
	)
	if video.Stats != nil {
		views = nullInt(video.Stats.Views)
		comments = nullInt(video.Stats.Comments)
		likes = nullInt(video.Stats.Likes)
		length = nullFloat(video.Stats.LengthMinutes)
	}
	if video.Transcript != nil {
		transcript = sql.NullString{String: *video.Transcript, Valid: true}
	}
	if video.Sentiment != nil {
		sentModel = sql.NullString{String: video.Sentiment.Model, Valid: true}
		sentTitle = sql.NullFloat64{Float64: video.Sentiment.Title, Valid: true}
		sentTrans = nullFloat(video.Sentiment.Transcript)
	}

	return []any{
		video.Title,
		video.Channel,
		video.PublishedAt.UTC().Format(timeFormat),
		video.Description,
		video.Stats != nil,
		views, comments, likes, length,
		transcript, sentModel, sentTitle, sentTrans,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*model.Video, error) {
	var (
		id, published          string
		video                  model.Video
		hasStats               bool
		views, comments, likes sql.NullInt64
		length                 sql.NullFloat64
		transcript, sentModel  sql.NullString
		sentTitle, sentTrans   sql.NullFloat64
	)
	if err := row.Scan(
		&id, &video.Title, &video.Channel, &published, &video.Description, &hasStats,
		&views, &comments, &likes, &length,
		&transcript, &sentModel, &sentTitle, &sentTrans,
	); err != nil {
		return nil, err
	}

	publishedAt, err := time.Parse(timeFormat, published)
	if err != nil {
		return nil, fmt.Errorf("invalid published_at %q: %w", published, err)
	}
	video.ID = model.YoutubeVideoID(id)
	video.PublishedAt = publishedAt.UTC()

	if hasStats {
		video.Stats = &model.Stats{
			Views:         intPtr(views),
			Comments:      intPtr(comments),
			Likes:         intPtr(likes),
			LengthMinutes: floatPtr(length),
		}
	}
	if transcript.Valid {
		video.Transcript = model.String(transcript.String)
	}
	if sentModel.Valid {
		video.Sentiment = &model.SentimentRating{
			Model:      sentModel.String,
			Title:      sentTitle.Float64,
			Transcript: floatPtr(sentTrans),
		}
	}

	return &video, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return n > 0, nil
}

func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return model.Int(n.Int64)
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return model.Float(n.Float64)
}
