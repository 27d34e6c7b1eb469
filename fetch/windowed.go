package fetch

import (
	"context"
	"fmt"

	"github.com/adam7171512/scrape/model"
	"github.com/adam7171512/scrape/quota"
	"golang.org/x/exp/slog"
)

// Windowed runs one ranked search per date window.
type Windowed struct {
	rotator *quota.Rotator[SearchProvider]
	logger  *slog.Logger
}

func NewWindowed(rotator *quota.Rotator[SearchProvider], logger *slog.Logger) *Windowed {
	return &Windowed{
		rotator: rotator,
		logger:  logger,
	}
}

// Search returns a single pass iterator over the windows of q. Nothing is
// requested until Next is called.
func (w *Windowed) Search(q Query) *WindowIterator {
	it := &WindowIterator{
		w: w,
		q: q,
	}
	if err := q.Validate(); err != nil {
		it.err = err
		return it
	}
	it.windows = Windows(q.Start, q.End, q.TimeDeltaDays)

	return it
}

type WindowIterator struct {
	w       *Windowed
	q       Query
	windows []model.Window
	next    int
	window  model.Window
	batch   []model.Descriptor
	err     error
}

// Next fetches the following window. A window is retried on the next credential
// until it succeeds or the pool runs out; it is never skipped.
func (it *WindowIterator) Next(ctx context.Context) bool {
	if it.err != nil || it.next >= len(it.windows) {
		return false
	}

	window := it.windows[it.next]
	req := it.q.request(window)
	batch, err := quota.Do(ctx, it.w.rotator, func(ctx context.Context, p SearchProvider) ([]model.Descriptor, error) {
		return p.Search(ctx, req)
	})
	if err != nil {
		it.w.logger.Error("failed to search window", slog.String("window", window.String()), slog.String("error", err.Error()))
		it.err = fmt.Errorf("failed to search window %s: %w", window, err)
		it.batch = nil
		return false
	}

	it.w.logger.Info("searched window", slog.String("window", window.String()), slog.Int("count", len(batch)))
	it.next++
	it.window = window
	it.batch = batch

	return true
}

func (it *WindowIterator) Batch() []model.Descriptor {
	return it.batch
}

func (it *WindowIterator) Window() model.Window {
	return it.window
}

func (it *WindowIterator) Err() error {
	return it.err
}
