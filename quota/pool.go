package quota

import (
	"errors"
	"sync"

	"golang.org/x/exp/slog"
)

var ErrNoCredentials = errors.New("no credentials configured")

type Credential struct {
	Index int
	Key   string
}

// Pool hands out API credentials in order. The index only moves forward; once the
// last credential is used up the pool stays exhausted for the life of the process.
type Pool struct {
	mu        sync.Mutex
	keys      []string
	index     int
	exhausted bool
	logger    *slog.Logger
}

func NewPool(keys []string, logger *slog.Logger) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}

	return &Pool{
		keys:   append([]string(nil), keys...),
		logger: logger,
	}, nil
}

func (p *Pool) Len() int {
	return len(p.keys)
}

func (p *Pool) Current() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Credential{Index: p.index, Key: p.keys[p.index]}
}

// Exhausted reports whether an advance past the last credential was requested.
func (p *Pool) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exhausted
}

// Advance moves to the next credential. It returns false when the current
// credential is the last one.
func (p *Pool) Advance() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.advance()
}

// AdvanceFrom advances only if index is still the current credential. If another
// caller already rotated past index, it reports true without moving again.
func (p *Pool) AdvanceFrom(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index > index {
		return true
	}

	return p.advance()
}

func (p *Pool) advance() bool {
	if p.index >= len(p.keys)-1 {
		p.exhausted = true
		p.logger.Error("all credentials used", slog.Int("index", p.index), slog.Int("count", len(p.keys)))
		return false
	}

	p.index++
	p.logger.Warn("switched credential", slog.Int("index", p.index), slog.Int("count", len(p.keys)))

	return true
}
