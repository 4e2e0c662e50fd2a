// Package pool manages a bounded set of graph store sessions. Borrowed
// sessions are handed out behind a wrapper whose Close returns the session to
// the pool, so callers may treat the handle as their own; real teardown is
// reserved for the pool's eviction and drain paths.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/log"
)

var (
	// ErrExhausted reports that the pool is at its hard maximum. The caller
	// must back off; the pool never queues blocked acquirers.
	ErrExhausted = errors.New("pool exhausted")

	// ErrClosed reports an acquire after the pool was drained.
	ErrClosed = errors.New("pool closed")
)

// Config bounds the pool.
type Config struct {
	// Min is the number of warm idle sessions retained after release.
	Min int
	// Max is the hard cap on live sessions (idle + borrowed).
	Max int
}

// DefaultConfig mirrors the sizing of the original deployment.
func DefaultConfig() Config {
	return Config{Min: 10, Max: 100}
}

// Pool hands out sessions from a graph store and reclaims them. The idle and
// borrowed sets are guarded by one mutex; no caller ever observes a
// half-updated set.
type Pool struct {
	store  graph.Store
	cfg    Config
	logger *log.Logger

	mu       sync.Mutex
	idle     []*Session
	borrowed map[*Session]struct{}
	closed   bool
}

// New creates a pool and pre-warms Min idle sessions.
func New(ctx context.Context, store graph.Store, cfg Config, logger *log.Logger) (*Pool, error) {
	if cfg.Min < 0 || cfg.Max < 1 || cfg.Min > cfg.Max {
		return nil, fmt.Errorf("invalid pool bounds min=%d max=%d", cfg.Min, cfg.Max)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	p := &Pool{
		store:    store,
		cfg:      cfg,
		logger:   logger.WithComponent(log.ComponentPool),
		borrowed: make(map[*Session]struct{}),
	}
	for n := 0; n < cfg.Min; n++ {
		raw, err := store.OpenSession(ctx)
		if err != nil {
			p.Drain(ctx)
			return nil, fmt.Errorf("prewarm session: %w", err)
		}
		p.idle = append(p.idle, &Session{pool: p, raw: raw})
	}
	return p, nil
}

// Acquire returns an idle session or opens a new one while the live count is
// below Max. Fails with ErrExhausted at the cap, without blocking.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.borrowed[s] = struct{}{}
		p.mu.Unlock()
		return s, nil
	}
	if len(p.borrowed) >= p.cfg.Max {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d sessions in use", ErrExhausted, p.cfg.Max)
	}
	p.mu.Unlock()

	raw, err := p.store.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	s := &Session{pool: p, raw: raw}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		raw.Close(ctx)
		return nil, ErrClosed
	}
	if len(p.borrowed) >= p.cfg.Max {
		p.mu.Unlock()
		raw.Close(ctx)
		return nil, fmt.Errorf("%w: %d sessions in use", ErrExhausted, p.cfg.Max)
	}
	p.borrowed[s] = struct{}{}
	p.mu.Unlock()
	return s, nil
}

// release returns a borrowed session to the idle set. Idle sessions beyond
// Min are terminated, least recently returned first.
func (p *Pool) release(ctx context.Context, s *Session) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		s.raw.Close(ctx)
		return
	}
	if _, ok := p.borrowed[s]; !ok {
		// Double release; the session is already idle or gone.
		p.mu.Unlock()
		return
	}
	delete(p.borrowed, s)
	p.idle = append(p.idle, s)

	var evict []*Session
	if excess := len(p.idle) - p.cfg.Min; excess > 0 {
		evict = append(evict, p.idle[:excess]...)
		p.idle = append(p.idle[:0], p.idle[excess:]...)
	}
	p.mu.Unlock()

	for _, victim := range evict {
		if err := victim.raw.Close(ctx); err != nil {
			p.logger.WarnContext(ctx, "failed to close evicted session", log.FieldError, err)
		}
	}
}

// Drain closes every idle and borrowed session and releases the underlying
// store. Acquire fails with ErrClosed afterwards.
func (p *Pool) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	victims := make([]*Session, 0, len(p.idle)+len(p.borrowed))
	victims = append(victims, p.idle...)
	for s := range p.borrowed {
		victims = append(victims, s)
	}
	p.idle = nil
	p.borrowed = make(map[*Session]struct{})
	p.mu.Unlock()

	var errs []error
	for _, s := range victims {
		if err := s.raw.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.store.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	p.logger.InfoContext(ctx, "pool drained", "sessions_closed", len(victims))
	if len(errs) > 0 {
		return fmt.Errorf("drain pool: %w", errors.Join(errs...))
	}
	return nil
}

// Idle reports the current idle session count.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Borrowed reports the current borrowed session count.
func (p *Pool) Borrowed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.borrowed)
}
