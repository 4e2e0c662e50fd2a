// Package entity implements the domain objects stored in the graph: users,
// budgets, accounts and transactions. Budgets, accounts and transactions all
// resolve through the same load-or-create step: look the record up by its
// natural key, create it when absent, and adopt the winner's record when a
// concurrent creator gets there first.
//
// Construction is split in two: a New* factory acquires a pooled session,
// starts resolution in the background and returns immediately; Await (or the
// entity's Ready method) blocks until the entity is resolved and usable.
// Accessors return zero values until resolution completes and never expose a
// partially decoded record.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

var (
	// ErrResolutionTimeout reports that a Ready subscriber gave up before
	// resolution finished.
	ErrResolutionTimeout = errors.New("entity resolution timed out")

	// ErrUnusable reports an entity whose resolution failed; its accessors
	// return zero values that must not be read as business data.
	ErrUnusable = errors.New("entity is not usable")

	// ErrNotFound reports a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")
)

// Resolver is the readiness surface shared by every deferred entity.
type Resolver interface {
	// Ready blocks until resolution finishes and reports whether the entity
	// is usable. Every concurrent caller is notified exactly once, in
	// subscription order. A context deadline fails the waiting caller with
	// ErrResolutionTimeout; resolution itself keeps running.
	Ready(ctx context.Context) (bool, error)

	// Err returns the resolution error, if any, once resolution finished.
	Err() error
}

// Await waits for an entity to resolve and fails if it is unusable.
func Await[E Resolver](ctx context.Context, e E) (E, error) {
	usable, err := e.Ready(ctx)
	if err != nil {
		var zero E
		return zero, err
	}
	if !usable {
		var zero E
		if cause := e.Err(); cause != nil {
			return zero, fmt.Errorf("%w: %w", ErrUnusable, cause)
		}
		return zero, ErrUnusable
	}
	return e, nil
}

// deferred carries the resolution state and the pooled session an entity
// holds for its whole lifetime.
type deferred struct {
	sess *pool.Session

	mu      sync.Mutex
	done    bool
	usable  bool
	err     error
	waiters []chan struct{}
}

func newDeferred(sess *pool.Session) deferred {
	return deferred{sess: sess}
}

// Ready implements Resolver.
func (d *deferred) Ready(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if d.done {
		usable := d.usable
		d.mu.Unlock()
		return usable, nil
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		d.mu.Lock()
		usable := d.usable
		d.mu.Unlock()
		return usable, nil
	case <-ctx.Done():
		return false, fmt.Errorf("%w: %w", ErrResolutionTimeout, ctx.Err())
	}
}

// Err implements Resolver.
func (d *deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// finish records the resolution outcome and notifies every waiter exactly
// once, in subscription order.
func (d *deferred) finish(usable bool, err error) {
	d.mu.Lock()
	if d.done {
		d.mu.Unlock()
		return
	}
	d.done = true
	d.usable = usable
	d.err = err
	waiters := d.waiters
	d.waiters = nil
	d.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// Close releases the entity's session back to the pool.
func (d *deferred) Close(ctx context.Context) error {
	return d.sess.Close(ctx)
}

// loadOrCreate is the shared resolve step. It looks the record up by its
// natural key, creates it when absent, and on a lost uniqueness race
// re-attempts the lookup once to adopt the winner's record.
func (d *deferred) loadOrCreate(ctx context.Context, q graph.Query, c graph.Create) (graph.Record, error) {
	records, err := d.sess.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if len(records) > 0 {
		return records[0], nil
	}

	record, err := d.sess.Create(ctx, c)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, graph.ErrConstraintViolation) {
		return nil, fmt.Errorf("create: %w", err)
	}

	// A concurrent creator won the race; its record must be visible now.
	records, lookupErr := d.sess.Find(ctx, q)
	if lookupErr != nil {
		return nil, fmt.Errorf("reload after lost create race: %w", lookupErr)
	}
	if len(records) > 0 {
		return records[0], nil
	}
	return nil, fmt.Errorf("lost create race and record not found: %w", err)
}
