package entity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/period"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

// DefaultCadence matches the original deployment's "2 weeks" budget period.
var DefaultCadence = period.Cadence{Count: 14, Unit: period.Days}

// BudgetRecord is the fully decoded shape of a budget node.
type BudgetRecord struct {
	UUID    string
	Name    string
	Owner   string
	Theme   string
	Start   time.Time
	Cadence period.Cadence
}

// BudgetOptions carries the optional attributes used when the budget has to
// be created.
type BudgetOptions struct {
	Theme   string
	Cadence period.Cadence
	Start   time.Time
}

// Budget is a deferred budget entity, unique per (owner, name). A budget is
// created once and immutable thereafter.
type Budget struct {
	deferred
	pool *pool.Pool
	rec  atomic.Pointer[BudgetRecord]
}

// NewBudget acquires a session and starts resolving the budget owned by the
// user with the given email. Missing options default to the "default" theme,
// a two week cadence and a start date of today.
func NewBudget(ctx context.Context, p *pool.Pool, owner, name string, opts BudgetOptions) (*Budget, error) {
	sess, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	if opts.Theme == "" {
		opts.Theme = "default"
	}
	if opts.Cadence == (period.Cadence{}) {
		opts.Cadence = DefaultCadence
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	opts.Start = dateOnly(opts.Start)

	b := &Budget{deferred: newDeferred(sess), pool: p}
	go b.resolve(ctx, owner, name, opts)
	return b, nil
}

func (b *Budget) resolve(ctx context.Context, owner, name string, opts BudgetOptions) {
	ownerPeer := graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": owner}}

	record, err := b.loadOrCreate(ctx,
		graph.Query{
			Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"name": name, "owner": owner}},
			Rels: []graph.Rel{{Type: graph.RelOwner, Direction: graph.Outgoing, Peer: ownerPeer}},
		},
		graph.Create{
			Node: graph.Node{
				Label: graph.LabelBudget,
				Props: graph.Props{
					"uuid":   uuid.NewString(),
					"name":   name,
					"owner":  owner,
					"theme":  opts.Theme,
					"period": opts.Cadence.String(),
					"start":  graph.DateValue(opts.Start),
				},
			},
			Rels: []graph.Rel{{Type: graph.RelOwner, Direction: graph.Outgoing, Peer: ownerPeer}},
		},
	)
	if err != nil {
		b.finish(false, fmt.Errorf("resolve budget %s/%s: %w", owner, name, err))
		return
	}

	decoded, err := decodeBudget(record)
	if err != nil {
		b.finish(false, fmt.Errorf("resolve budget %s/%s: %w", owner, name, err))
		return
	}
	b.rec.Store(&decoded)
	b.finish(true, nil)
}

// ID returns the budget identifier, or the empty string before resolution.
func (b *Budget) ID() string {
	if rec := b.rec.Load(); rec != nil {
		return rec.UUID
	}
	return ""
}

// Name returns the budget name, or the empty string before resolution.
func (b *Budget) Name() string {
	if rec := b.rec.Load(); rec != nil {
		return rec.Name
	}
	return ""
}

// Owner returns the owning user's email, or the empty string before
// resolution.
func (b *Budget) Owner() string {
	if rec := b.rec.Load(); rec != nil {
		return rec.Owner
	}
	return ""
}

// Theme returns the display theme, or the empty string before resolution.
func (b *Budget) Theme() string {
	if rec := b.rec.Load(); rec != nil {
		return rec.Theme
	}
	return ""
}

// Start returns the anchor start date, or the zero time before resolution.
func (b *Budget) Start() time.Time {
	if rec := b.rec.Load(); rec != nil {
		return rec.Start
	}
	return time.Time{}
}

// Cadence returns the budget cadence, or the zero cadence before resolution.
func (b *Budget) Cadence() period.Cadence {
	if rec := b.rec.Load(); rec != nil {
		return rec.Cadence
	}
	return period.Cadence{}
}

// PeriodDates computes the period boundaries containing target. A zero
// target means today.
func (b *Budget) PeriodDates(target time.Time) (period.Dates, error) {
	rec := b.rec.Load()
	if rec == nil {
		return period.Dates{}, fmt.Errorf("budget: %w", ErrUnusable)
	}
	if target.IsZero() {
		target = time.Now()
	}
	return period.Calculate(rec.Start, rec.Cadence, target)
}

// CreateAccount loads or creates an account in this budget and waits for it
// to resolve.
func (b *Budget) CreateAccount(ctx context.Context, name string, opts AccountOptions) (*Account, error) {
	account, err := NewAccount(ctx, b, name, opts)
	if err != nil {
		return nil, err
	}
	return Await(ctx, account)
}

// GetAccount returns the named account, or ErrNotFound when the budget has
// no account by that name. Unlike CreateAccount it never creates.
func (b *Budget) GetAccount(ctx context.Context, name string) (*Account, error) {
	rec := b.rec.Load()
	if rec == nil {
		return nil, fmt.Errorf("budget: %w", ErrUnusable)
	}
	records, err := b.sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelAccount, Props: graph.Props{"budget": rec.UUID, "name": name}},
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("account %s: %w", name, ErrNotFound)
	}
	account, err := NewAccount(ctx, b, name, AccountOptions{})
	if err != nil {
		return nil, err
	}
	return Await(ctx, account)
}

func decodeBudget(rec graph.Record) (BudgetRecord, error) {
	out := BudgetRecord{}
	var err error
	if out.UUID, err = rec.String("uuid"); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	if out.Name, err = rec.String("name"); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	if out.Owner, err = rec.String("owner"); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	if out.Theme, err = rec.String("theme"); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	if out.Start, err = rec.Date("start"); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	raw, err := rec.String("period")
	if err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	if out.Cadence, err = period.Parse(raw); err != nil {
		return BudgetRecord{}, fmt.Errorf("decode budget: %w", err)
	}
	return out, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
