package pool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

// stubStore counts opened and closed sessions so tests can observe the
// pool's real teardown behavior.
type stubStore struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (s *stubStore) OpenSession(context.Context) (graph.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	return &stubSession{store: s}, nil
}

func (s *stubStore) Configure(context.Context) error { return nil }

func (s *stubStore) Close(context.Context) error { return nil }

func (s *stubStore) counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

type stubSession struct {
	store *stubStore
}

func (s *stubSession) Find(context.Context, graph.Query) ([]graph.Record, error) {
	return nil, nil
}

func (s *stubSession) Create(context.Context, graph.Create) (graph.Record, error) {
	return graph.Record{}, nil
}

func (s *stubSession) CreateMany(context.Context, []graph.Create) ([]graph.Record, error) {
	return nil, nil
}

func (s *stubSession) AggregateSum(context.Context, graph.Query, string) (float64, bool, error) {
	return 0, false, nil
}

func (s *stubSession) Close(context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.closed++
	return nil
}

func newTestPool(t *testing.T, min, max int) (*Pool, *stubStore) {
	t.Helper()
	store := &stubStore{}
	p, err := New(context.Background(), store, Config{Min: min, Max: max}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return p, store
}

func TestPool_PrewarmsMinimum(t *testing.T) {
	p, store := newTestPool(t, 3, 10)
	if got := p.Idle(); got != 3 {
		t.Errorf("Idle() = %d, want 3", got)
	}
	if opened, _ := store.counts(); opened != 3 {
		t.Errorf("opened = %d, want 3", opened)
	}
}

func TestPool_AcquireReusesIdle(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPool(t, 2, 10)

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if got := p.Borrowed(); got != 1 {
		t.Errorf("Borrowed() = %d, want 1", got)
	}
	if got := p.Idle(); got != 1 {
		t.Errorf("Idle() = %d, want 1", got)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if opened, _ := store.counts(); opened != 2 {
		t.Errorf("opened = %d, want 2 (no new session for a warm acquire)", opened)
	}
}

func TestPool_ExhaustionFailsWithoutBlocking(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(t, 0, 2)

	first, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if _, err := p.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Acquire() at cap = %v, want ErrExhausted", err)
	}

	// Releasing frees capacity again.
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := p.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after release error: %v", err)
	}
}

func TestPool_ReleaseEvictsBeyondMinimum(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPool(t, 1, 10)

	sessions := make([]*Session, 0, 4)
	for i := 0; i < 4; i++ {
		s, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error: %v", err)
		}
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
		if got := p.Idle(); got > 1 {
			t.Errorf("Idle() = %d after release, want at most 1", got)
		}
	}
	if _, closed := store.counts(); closed != 3 {
		t.Errorf("closed = %d, want 3 excess sessions terminated", closed)
	}
}

func TestPool_CloseIsReleaseNotTeardown(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPool(t, 2, 10)

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, closed := store.counts(); closed != 0 {
		t.Errorf("closed = %d, want 0: borrower Close must not tear down", closed)
	}

	// Kill performs the real teardown.
	s2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if err := s2.Kill(ctx); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	if _, closed := store.counts(); closed != 1 {
		t.Errorf("closed = %d after Kill, want 1", closed)
	}
	if got := p.Borrowed(); got != 0 {
		t.Errorf("Borrowed() = %d after Kill, want 0", got)
	}
}

func TestPool_DoubleReleaseIsHarmless(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(t, 2, 10)

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if got := p.Idle(); got != 2 {
		t.Errorf("Idle() = %d, want 2", got)
	}
}

func TestPool_DrainClosesEverything(t *testing.T) {
	ctx := context.Background()
	p, store := newTestPool(t, 2, 10)

	borrowed, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	_ = borrowed

	if err := p.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	opened, closed := store.counts()
	if closed != opened {
		t.Errorf("closed = %d, want %d: drain must close idle and borrowed sessions", closed, opened)
	}

	if _, err := p.Acquire(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Acquire() after drain = %v, want ErrClosed", err)
	}

	// Draining twice is a no-op.
	if err := p.Drain(ctx); err != nil {
		t.Errorf("second Drain() error: %v", err)
	}
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestPool(t, 2, 50)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				s, err := p.Acquire(ctx)
				if err != nil {
					if errors.Is(err, ErrExhausted) {
						continue
					}
					t.Errorf("Acquire() error: %v", err)
					return
				}
				s.Close(ctx)
			}
		}()
	}
	wg.Wait()

	if got := p.Idle(); got > 2 {
		t.Errorf("Idle() = %d after churn, want at most 2", got)
	}
	if got := p.Borrowed(); got != 0 {
		t.Errorf("Borrowed() = %d after churn, want 0", got)
	}
}
