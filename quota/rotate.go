package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slog"
)

var ErrQuotaExhausted = errors.New("quota exhausted on all credentials")

type Outcome int

const (
	Success Outcome = iota
	Retryable
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classifier decides what a provider error means for credential rotation.
type Classifier func(error) Outcome

// ClassifyAny treats every provider error as possible quota exhaustion.
func ClassifyAny(err error) Outcome {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal
	default:
		return Retryable
	}
}

// NeverRetry is for providers that do not consume credentials.
func NeverRetry(err error) Outcome {
	if err == nil {
		return Success
	}
	return Fatal
}

// Builder creates a client bound to one credential.
type Builder[C any] func(ctx context.Context, cred Credential) (C, error)

// Rotator keeps a client built for the pool's current credential and rebuilds it
// when the pool moves on.
type Rotator[C any] struct {
	mu       sync.Mutex
	pool     *Pool
	build    Builder[C]
	classify Classifier
	client   C
	bound    int
	built    bool
	rebuilds int
	logger   *slog.Logger
}

func NewRotator[C any](pool *Pool, build Builder[C], classify Classifier, logger *slog.Logger) *Rotator[C] {
	if classify == nil {
		classify = ClassifyAny
	}

	return &Rotator[C]{
		pool:     pool,
		build:    build,
		classify: classify,
		logger:   logger,
	}
}

func (r *Rotator[C]) Pool() *Pool {
	return r.pool
}

// Rebuilds counts how many times a client was rebuilt after a rotation.
func (r *Rotator[C]) Rebuilds() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.rebuilds
}

// Client returns the client for the current credential, building it if needed.
func (r *Rotator[C]) Client(ctx context.Context) (C, Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cred := r.pool.Current()
	if r.built && r.bound == cred.Index {
		return r.client, cred, nil
	}

	client, err := r.build(ctx, cred)
	if err != nil {
		var zero C
		return zero, cred, fmt.Errorf("failed to build client for credential %d: %w", cred.Index, err)
	}
	if r.built {
		r.rebuilds++
		r.logger.Warn("rebuilt api client", slog.Int("index", cred.Index))
	}
	r.client, r.bound, r.built = client, cred.Index, true

	return client, cred, nil
}

// Do runs call against the current client. A retryable failure rotates the
// credential and repeats the identical call; when no credential remains the
// returned error wraps ErrQuotaExhausted.
func Do[C, T any](ctx context.Context, r *Rotator[C], call func(context.Context, C) (T, error)) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		client, cred, err := r.Client(ctx)
		if err != nil {
			return zero, err
		}

		result, err := call(ctx, client)
		switch r.classify(err) {
		case Success:
			return result, nil
		case Fatal:
			return zero, err
		}

		r.logger.Warn("request failed, rotating credential", slog.Int("index", cred.Index), slog.String("error", err.Error()))
		if !r.pool.AdvanceFrom(cred.Index) {
			return zero, fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
		}
	}
}
