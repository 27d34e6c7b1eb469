package handler

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, repo storage.VideoRepository) {
	t.Helper()

	videos := []*model.Video{
		{
			Descriptor: model.Descriptor{ID: "aaa", Title: "first", Channel: "c1", PublishedAt: time.Date(2023, 1, 2, 10, 0, 0, 0, time.UTC)},
			Stats:      &model.Stats{Views: model.Int(500)},
		},
		{
			Descriptor: model.Descriptor{ID: "bbb", Title: "second", Channel: "c2", PublishedAt: time.Date(2023, 1, 5, 10, 0, 0, 0, time.UTC)},
			Stats:      &model.Stats{Views: model.Int(5000), LengthMinutes: model.Float(12.5)},
			Transcript: model.String("hello there"),
			Sentiment:  &model.SentimentRating{Model: "lexicon", Title: 0.5, Transcript: model.Float(-0.25)},
		},
		{
			Descriptor: model.Descriptor{ID: "ccc", Title: "third", Channel: "c1", PublishedAt: time.Date(2023, 2, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
	for _, v := range videos {
		_, err := repo.AddIfAbsent(context.Background(), v)
		require.NoError(t, err)
	}
}

// listOnly hides the finder methods of the wrapped repository.
type listOnly struct {
	storage.VideoRepository
}

func get(t *testing.T, srv http.Handler, target string) (int, []byte) {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	return rec.Code, rec.Body.Bytes()
}

func ids(t *testing.T, body []byte) []string {
	t.Helper()

	var videos []respVideo
	require.NoError(t, json.Unmarshal(body, &videos))
	res := []string{}
	for _, v := range videos {
		res = append(res, v.ID)
	}

	return res
}

func TestServerIndex(t *testing.T) {
	srv := NewServer(storage.NewMemory(), testLogger())

	status, body := get(t, srv, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"scrape video api"}`, string(body))

	status, _ = get(t, srv, "/unknown")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVideoList(t *testing.T) {
	memory := storage.NewMemory()
	seed(t, memory)

	for _, tc := range []struct {
		name   string
		target string
		exp    []string
	}{
		{name: "all", target: "/video", exp: []string{"aaa", "bbb", "ccc"}},
		{name: "min views", target: "/video?min_views=1000", exp: []string{"bbb"}},
		{name: "max views", target: "/video?max_views=1000", exp: []string{"aaa"}},
		{name: "published range", target: "/video?from=2023-01-01&to=2023-01-31", exp: []string{"aaa", "bbb"}},
		{name: "inclusive end day", target: "/video?from=2023-01-05&to=2023-01-05", exp: []string{"bbb"}},
		{name: "range and views", target: "/video?from=2023-01-01&to=2023-01-31&min_views=1000", exp: []string{"bbb"}},
		{name: "nothing matches", target: "/video?min_views=100000", exp: []string{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, repo := range []storage.VideoRepository{memory, listOnly{memory}} {
				srv := NewServer(repo, testLogger())

				status, body := get(t, srv, tc.target)
				require.Equal(t, http.StatusOK, status)
				assert.ElementsMatch(t, tc.exp, ids(t, body))
			}
		})
	}
}

func TestVideoListInvalidFilter(t *testing.T) {
	srv := NewServer(storage.NewMemory(), testLogger())

	for _, target := range []string{
		"/video?min_views=many",
		"/video?max_views=1.5",
		"/video?from=01-01-2023",
		"/video?to=yesterday",
	} {
		status, _ := get(t, srv, target)
		assert.Equal(t, http.StatusBadRequest, status, target)
	}
}

func TestVideoGet(t *testing.T) {
	memory := storage.NewMemory()
	seed(t, memory)
	srv := NewServer(memory, testLogger())

	t.Run("found", func(t *testing.T) {
		status, body := get(t, srv, "/video/bbb")
		require.Equal(t, http.StatusOK, status)

		var video respVideo
		require.NoError(t, json.Unmarshal(body, &video))
		assert.Equal(t, "bbb", video.ID)
		assert.Equal(t, "https://www.youtube.com/watch?v=bbb", video.URL)
		assert.Equal(t, "2023-01-05T10:00:00Z", video.PublishedAt)
		assert.True(t, video.HasTranscript)
		require.NotNil(t, video.Transcript)
		assert.Equal(t, "hello there", *video.Transcript)
		require.NotNil(t, video.Sentiment)
		assert.Equal(t, "lexicon", video.Sentiment.Model)
		assert.Equal(t, -0.25, *video.Sentiment.Transcript)
		assert.Equal(t, int64(5000), *video.Views)
	})

	t.Run("list omits transcript", func(t *testing.T) {
		_, body := get(t, srv, "/video?min_views=1000")

		var videos []respVideo
		require.NoError(t, json.Unmarshal(body, &videos))
		require.Len(t, videos, 1)
		assert.Nil(t, videos[0].Transcript)
		assert.True(t, videos[0].HasTranscript)
	})

	t.Run("not found", func(t *testing.T) {
		status, body := get(t, srv, "/video/zzz")
		assert.Equal(t, http.StatusNotFound, status)
		assert.JSONEq(t, `{"message":"video not found","error":"video not found","video":"zzz"}`, string(body))
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/video/bbb", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWriteJSON(t *testing.T) {
	t.Run("encodes body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, http.StatusCreated, respStatus{Message: "ok"})
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"message":"ok"}`, rec.Body.String())
	})

	t.Run("unencodable body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeJSON(rec, http.StatusOK, math.Inf(1))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp respStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "could not encode response", resp.Message)
		assert.NotEmpty(t, resp.Error)
	})
}

func TestShiftPath(t *testing.T) {
	for _, tc := range []struct {
		path string
		head string
		tail string
	}{
		{path: "/", head: "", tail: "/"},
		{path: "/video", head: "video", tail: "/"},
		{path: "/video/abc/", head: "video", tail: "/abc"},
		{path: "video/../other/x", head: "other", tail: "/x"},
	} {
		head, tail := ShiftPath(tc.path)
		assert.Equal(t, tc.head, head, tc.path)
		assert.Equal(t, tc.tail, tail, tc.path)
	}
}
