package pool

import (
	"context"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

// Session is a borrowed store session. It implements graph.Session by plain
// delegation, except that Close returns the session to the pool rather than
// tearing it down. Kill performs the real teardown and belongs to the pool's
// eviction logic.
type Session struct {
	pool *Pool
	raw  graph.Session
}

var _ graph.Session = (*Session)(nil)

// Find delegates to the underlying session.
func (s *Session) Find(ctx context.Context, q graph.Query) ([]graph.Record, error) {
	return s.raw.Find(ctx, q)
}

// Create delegates to the underlying session.
func (s *Session) Create(ctx context.Context, c graph.Create) (graph.Record, error) {
	return s.raw.Create(ctx, c)
}

// CreateMany delegates to the underlying session.
func (s *Session) CreateMany(ctx context.Context, specs []graph.Create) ([]graph.Record, error) {
	return s.raw.CreateMany(ctx, specs)
}

// AggregateSum delegates to the underlying session.
func (s *Session) AggregateSum(ctx context.Context, q graph.Query, property string) (float64, bool, error) {
	return s.raw.AggregateSum(ctx, q, property)
}

// Close returns the session to the pool. The underlying session stays live
// unless the pool's idle set is over its minimum.
func (s *Session) Close(ctx context.Context) error {
	s.pool.release(ctx, s)
	return nil
}

// Kill tears down the underlying session without returning it to the pool.
func (s *Session) Kill(ctx context.Context) error {
	s.pool.mu.Lock()
	delete(s.pool.borrowed, s)
	s.pool.mu.Unlock()
	return s.raw.Close(ctx)
}
