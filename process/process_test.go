package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adam7171512/scrape/fetch"
	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"github.com/adam7171512/scrape/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sliceIterator replays fixed batches and then reports err.
type sliceIterator struct {
	batches [][]*model.Video
	err     error
	next    int
}

func (it *sliceIterator) Next(context.Context) bool {
	if it.next >= len(it.batches) {
		return false
	}
	it.next++
	return true
}

func (it *sliceIterator) Batch() []*model.Video {
	batch := make([]*model.Video, len(it.batches[it.next-1]))
	for i, v := range it.batches[it.next-1] {
		batch[i] = v.Clone()
	}
	return batch
}

func (it *sliceIterator) Window() model.Window { return model.Window{} }

func (it *sliceIterator) Err() error {
	if it.next < len(it.batches) {
		return nil
	}
	return it.err
}

type fakeDiscoverer struct {
	batches [][]*model.Video
	err     error
}

func (d *fakeDiscoverer) Discover(fetch.Query) fetch.BatchIterator {
	return &sliceIterator{batches: d.batches, err: d.err}
}

type fakeTranscripts struct {
	mu      sync.Mutex
	texts   map[model.YoutubeVideoID]string
	failing map[model.YoutubeVideoID]bool
	calls   int
}

func (f *fakeTranscripts) FetchTranscript(_ context.Context, id model.YoutubeVideoID) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failing[id] {
		return nil, errors.New("captions disabled")
	}
	text, ok := f.texts[id]
	if !ok {
		return nil, nil
	}
	return &text, nil
}

// fakeRater scores by text length so every text gets a distinct, stable score.
type fakeRater struct {
	mu      sync.Mutex
	name    string
	failing map[string]bool
	calls   int
}

func (r *fakeRater) Name() string { return r.name }

func (r *fakeRater) Rate(_ context.Context, text string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.failing[text] {
		return 0, errors.New("model overloaded")
	}
	return float64(len(text)%100) / 100, nil
}

func newVideo(id string, views int64) *model.Video {
	v := model.NewVideo(model.Descriptor{
		ID:          model.YoutubeVideoID(id),
		Title:       "Bitcoin " + id,
		Channel:     "channel",
		PublishedAt: time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC),
	})
	v.Stats = &model.Stats{Views: model.Int(views), LengthMinutes: model.Float(10)}
	return v
}

func discovery() *fakeDiscoverer {
	return &fakeDiscoverer{batches: [][]*model.Video{
		{newVideo("a", 100), newVideo("b", 200), newVideo("c", 300)},
		{},
		{newVideo("d", 400), newVideo("a", 100), newVideo("d", 400)},
	}}
}

func transcripts() *fakeTranscripts {
	return &fakeTranscripts{
		texts: map[model.YoutubeVideoID]string{
			"a": "bitcoin goes up",
			"b": "markets crash today",
			"d": "a long discussion about mining",
		},
		failing: map[model.YoutubeVideoID]bool{"c": true},
	}
}

func runPipeline(t *testing.T, repo storage.VideoRepository, d Discoverer, tr fetch.TranscriptProvider, r SentimentRater, opts Options) {
	t.Helper()

	p := NewPipeline(d, repo, tr, r, opts, testLogger())
	require.NoError(t, p.Process(context.Background(), fetch.Query{Topic: "Bitcoin"}))
}

func listAll(t *testing.T, repo storage.VideoRepository) []*model.Video {
	t.Helper()

	all, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	return all
}

// seed stores a video from an earlier run that has a rating but no transcript score.
func seed(t *testing.T, repo storage.VideoRepository) {
	t.Helper()

	b := newVideo("b", 150)
	b.Sentiment = &model.SentimentRating{Model: "older", Title: 0.9}
	_, err := repo.AddIfAbsent(context.Background(), b)
	require.NoError(t, err)
}

func TestProcessStrategiesAreEquivalent(t *testing.T) {
	var results [][]*model.Video
	for _, strategy := range []Strategy{StrategySerial, StrategyStaged, StrategyBatch} {
		t.Run(string(strategy), func(t *testing.T) {
			repo := storage.NewMemory()
			seed(t, repo)

			runPipeline(t, repo, discovery(), transcripts(), &fakeRater{name: "fake"}, Options{Strategy: strategy, Workers: 2})

			all := listAll(t, repo)
			require.Len(t, all, 4)
			results = append(results, all)
		})
	}

	require.Len(t, results, 3)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

func TestProcessStoresCompletedVideos(t *testing.T) {
	repo := storage.NewMemory()
	seed(t, repo)

	runPipeline(t, repo, discovery(), transcripts(), &fakeRater{name: "fake"}, Options{Strategy: StrategyStaged})

	get := func(id model.YoutubeVideoID) *model.Video {
		v, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		return v
	}

	a := get("a")
	require.NotNil(t, a.Transcript)
	assert.Equal(t, "bitcoin goes up", *a.Transcript)
	require.NotNil(t, a.Sentiment)
	assert.Equal(t, "fake", a.Sentiment.Model)
	assert.NotNil(t, a.Sentiment.Transcript)

	// stored record wins over the discovered one without overwrite
	b := get("b")
	assert.Equal(t, int64(150), *b.Stats.Views)
	assert.Equal(t, 0.9, b.Sentiment.Title)
	require.NotNil(t, b.Sentiment.Transcript, "kept rating gains a transcript score")
	assert.Equal(t, "fake", b.Sentiment.Model)

	// failing transcript degrades to a title only rating
	c := get("c")
	assert.Nil(t, c.Transcript)
	require.NotNil(t, c.Sentiment)
	assert.Nil(t, c.Sentiment.Transcript)

	d := get("d")
	assert.True(t, d.HasTranscript())
}

func TestProcessIsIdempotent(t *testing.T) {
	for _, strategy := range []Strategy{StrategySerial, StrategyStaged, StrategyBatch} {
		t.Run(string(strategy), func(t *testing.T) {
			repo := storage.NewMemory()
			tr, rater := transcripts(), &fakeRater{name: "fake"}
			opts := Options{Strategy: strategy}

			runPipeline(t, repo, discovery(), tr, rater, opts)
			first := listAll(t, repo)
			rateCalls := rater.calls

			runPipeline(t, repo, discovery(), tr, rater, opts)

			assert.Equal(t, first, listAll(t, repo))
			assert.Equal(t, rateCalls, rater.calls, "complete videos are not rated again")
		})
	}
}

func TestProcessOverwrite(t *testing.T) {
	for _, strategy := range []Strategy{StrategySerial, StrategyStaged, StrategyBatch} {
		t.Run(string(strategy), func(t *testing.T) {
			repo := storage.NewMemory()
			old := newVideo("a", 5)
			old.Transcript = model.String("stale transcript")
			old.Sentiment = &model.SentimentRating{Model: "older", Title: -1, Transcript: model.Float(-1)}
			_, err := repo.AddIfAbsent(context.Background(), old)
			require.NoError(t, err)

			d := &fakeDiscoverer{batches: [][]*model.Video{{newVideo("a", 100), newVideo("b", 7)}}}
			runPipeline(t, repo, d, transcripts(), &fakeRater{name: "fake"}, Options{Strategy: strategy, OverwriteExisting: true})

			got, err := repo.Get(context.Background(), "a")
			require.NoError(t, err)
			assert.Equal(t, int64(100), *got.Stats.Views)
			require.NotNil(t, got.Transcript)
			assert.Equal(t, "bitcoin goes up", *got.Transcript)
			require.NotNil(t, got.Sentiment)
			assert.Equal(t, "fake", got.Sentiment.Model)
			assert.NotEqual(t, -1.0, got.Sentiment.Title)
			require.NotNil(t, got.Sentiment.Transcript)
			assert.NotEqual(t, -1.0, *got.Sentiment.Transcript)

			fresh, err := repo.Get(context.Background(), "b")
			require.NoError(t, err)
			assert.NotNil(t, fresh.Sentiment)
		})
	}
}

func TestProcessSkipsSentimentWhenTitleRatingFails(t *testing.T) {
	repo := storage.NewMemory()
	rater := &fakeRater{name: "fake", failing: map[string]bool{"Bitcoin a": true}}

	runPipeline(t, repo, discovery(), transcripts(), rater, Options{Strategy: StrategySerial})

	a, err := repo.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, a.HasTranscript())
	assert.Nil(t, a.Sentiment)

	b, err := repo.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.NotNil(t, b.Sentiment)
}

func TestProcessStopsWhenDiscoveryFails(t *testing.T) {
	for _, strategy := range []Strategy{StrategySerial, StrategyStaged, StrategyBatch} {
		t.Run(string(strategy), func(t *testing.T) {
			repo := storage.NewMemory()
			d := &fakeDiscoverer{
				batches: [][]*model.Video{{newVideo("a", 1), newVideo("b", 2)}},
				err:     fmt.Errorf("failed to search window: %w", quota.ErrQuotaExhausted),
			}
			p := NewPipeline(d, repo, transcripts(), &fakeRater{name: "fake"}, Options{Strategy: strategy}, testLogger())

			err := p.Process(context.Background(), fetch.Query{Topic: "Bitcoin"})

			require.ErrorIs(t, err, quota.ErrQuotaExhausted)
			all := listAll(t, repo)
			require.Len(t, all, 2)
			for _, v := range all {
				assert.NotNil(t, v.Sentiment)
			}
		})
	}
}

// countingRepository records calls and fails writes for the ids in failing.
type countingRepository struct {
	*storage.Memory
	mu      sync.Mutex
	calls   map[string]int
	failing map[model.YoutubeVideoID]bool
}

func newCountingRepository() *countingRepository {
	return &countingRepository{Memory: storage.NewMemory(), calls: map[string]int{}, failing: map[model.YoutubeVideoID]bool{}}
}

func (r *countingRepository) count(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[name]++
}

func (r *countingRepository) AddIfAbsent(ctx context.Context, v *model.Video) (bool, error) {
	r.count("AddIfAbsent")
	if r.failing[v.ID] {
		return false, errors.New("disk full")
	}
	return r.Memory.AddIfAbsent(ctx, v)
}

func (r *countingRepository) UpdateIfPresent(ctx context.Context, v *model.Video) (bool, error) {
	r.count("UpdateIfPresent")
	return r.Memory.UpdateIfPresent(ctx, v)
}

func (r *countingRepository) AddManyIfAbsent(ctx context.Context, vs []*model.Video) ([]bool, error) {
	r.count("AddManyIfAbsent")
	return r.Memory.AddManyIfAbsent(ctx, vs)
}

func (r *countingRepository) UpdateManyIfPresent(ctx context.Context, vs []*model.Video) ([]bool, error) {
	r.count("UpdateManyIfPresent")
	return r.Memory.UpdateManyIfPresent(ctx, vs)
}

func TestProcessBatchWritesOncePerStage(t *testing.T) {
	repo := newCountingRepository()
	d := &fakeDiscoverer{batches: [][]*model.Video{{newVideo("a", 1), newVideo("b", 2), newVideo("d", 3)}}}

	runPipeline(t, repo, d, transcripts(), &fakeRater{name: "fake"}, Options{Strategy: StrategyBatch, Workers: 3})

	assert.Equal(t, 1, repo.calls["AddManyIfAbsent"])
	assert.Equal(t, 2, repo.calls["UpdateManyIfPresent"])
	assert.Zero(t, repo.calls["AddIfAbsent"])
	assert.Zero(t, repo.calls["UpdateIfPresent"])
	assert.Len(t, listAll(t, repo), 3)
}

func TestProcessBatchKeepsBulkWritesBehindMirror(t *testing.T) {
	primary, secondary := newCountingRepository(), storage.NewMemory()
	repo := storage.NewMirrored(primary, secondary, testLogger())
	d := &fakeDiscoverer{batches: [][]*model.Video{{newVideo("a", 1), newVideo("b", 2), newVideo("d", 3)}}}

	runPipeline(t, repo, d, transcripts(), &fakeRater{name: "fake"}, Options{Strategy: StrategyBatch, Workers: 3})

	assert.Equal(t, 1, primary.calls["AddManyIfAbsent"])
	assert.Equal(t, 2, primary.calls["UpdateManyIfPresent"])
	assert.Zero(t, primary.calls["AddIfAbsent"])
	assert.Zero(t, primary.calls["UpdateIfPresent"])
	assert.Equal(t, listAll(t, primary), listAll(t, secondary))
}

func TestProcessDropsVideoOnRepositoryFailure(t *testing.T) {
	repo := newCountingRepository()
	repo.failing["b"] = true
	tr := transcripts()

	runPipeline(t, repo, discovery(), tr, &fakeRater{name: "fake"}, Options{Strategy: StrategyStaged})

	_, err := repo.Get(context.Background(), "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, listAll(t, repo), 3)
	// a, c and d once each; the stored a is complete when it is discovered again
	assert.Equal(t, 3, tr.calls)
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"serial", "std", "batch"} {
		st, err := ParseStrategy(s)
		require.NoError(t, err)
		assert.Equal(t, Strategy(s), st)
	}

	_, err := ParseStrategy("parallel")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.True(t, strings.Contains(err.Error(), "parallel"))
}
