package entity

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mlaanderson/budget-v3/internal/balance"
	"github.com/mlaanderson/budget-v3/internal/cache"
	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/importer"
)

// AccountType tags an account with its real-world kind.
type AccountType string

const (
	Checking   AccountType = "Checking"
	Savings    AccountType = "Savings"
	Credit     AccountType = "Credit"
	Investment AccountType = "Investment"
	Other      AccountType = "Other"
)

// Valid reports whether the type is one of the known tags.
func (t AccountType) Valid() bool {
	switch t {
	case Checking, Savings, Credit, Investment, Other:
		return true
	default:
		return false
	}
}

// AccountRecord is the fully decoded shape of an account node.
type AccountRecord struct {
	UUID          string
	Name          string
	AccountNumber string
	RoutingNumber string
	Type          AccountType
	Budget        string
}

// AccountOptions carries the optional attributes used when the account has
// to be created.
type AccountOptions struct {
	AccountNumber string
	RoutingNumber string
	Type          AccountType
}

const (
	rollupCacheSize = 8
	rollupCacheTTL  = 30 * time.Second
)

// Account is a deferred account entity, unique by name within its budget.
type Account struct {
	deferred
	budget *Budget
	rec    atomic.Pointer[AccountRecord]

	balances *cache.LRU[balance.Balances]
	daily    *cache.LRU[[]balance.DailyPoint]
}

// NewAccount acquires a session and starts resolving the named account in
// the given budget, which must itself be resolved. The type defaults to
// Checking when the account has to be created.
func NewAccount(ctx context.Context, b *Budget, name string, opts AccountOptions) (*Account, error) {
	budgetRec := b.rec.Load()
	if budgetRec == nil {
		return nil, fmt.Errorf("budget: %w", ErrUnusable)
	}
	if opts.Type == "" {
		opts.Type = Checking
	}
	if !opts.Type.Valid() {
		return nil, fmt.Errorf("invalid account type %q", opts.Type)
	}
	sess, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	a := &Account{
		deferred: newDeferred(sess),
		budget:   b,
		balances: cache.NewLRU[balance.Balances](rollupCacheSize, rollupCacheTTL),
		daily:    cache.NewLRU[[]balance.DailyPoint](rollupCacheSize, rollupCacheTTL),
	}
	go a.resolve(ctx, budgetRec.UUID, name, opts)
	return a, nil
}

func (a *Account) resolve(ctx context.Context, budgetID, name string, opts AccountOptions) {
	var accountNumber, routingNumber any
	if opts.AccountNumber != "" {
		accountNumber = opts.AccountNumber
	}
	if opts.RoutingNumber != "" {
		routingNumber = opts.RoutingNumber
	}

	record, err := a.loadOrCreate(ctx,
		graph.Query{
			Node: graph.Node{Label: graph.LabelAccount, Props: graph.Props{"budget": budgetID, "name": name}},
		},
		graph.Create{
			Node: graph.Node{
				Label: graph.LabelAccount,
				Props: graph.Props{
					"uuid":           uuid.NewString(),
					"name":           name,
					"budget":         budgetID,
					"account_number": accountNumber,
					"routing_number": routingNumber,
					"type":           string(opts.Type),
				},
			},
			Rels: []graph.Rel{{
				Type:      graph.RelFor,
				Direction: graph.Outgoing,
				Peer:      graph.Node{Label: graph.LabelBudget, Props: graph.Props{"uuid": budgetID}},
			}},
		},
	)
	if err != nil {
		a.finish(false, fmt.Errorf("resolve account %s: %w", name, err))
		return
	}

	decoded, err := decodeAccount(record)
	if err != nil {
		a.finish(false, fmt.Errorf("resolve account %s: %w", name, err))
		return
	}
	a.rec.Store(&decoded)
	a.finish(true, nil)
}

// ID returns the account identifier, or the empty string before resolution.
func (a *Account) ID() string {
	if rec := a.rec.Load(); rec != nil {
		return rec.UUID
	}
	return ""
}

// Name returns the account name, or the empty string before resolution.
func (a *Account) Name() string {
	if rec := a.rec.Load(); rec != nil {
		return rec.Name
	}
	return ""
}

// Type returns the account type, or the empty type before resolution.
func (a *Account) Type() AccountType {
	if rec := a.rec.Load(); rec != nil {
		return rec.Type
	}
	return ""
}

// AccountNumber returns the external account number, if any.
func (a *Account) AccountNumber() string {
	if rec := a.rec.Load(); rec != nil {
		return rec.AccountNumber
	}
	return ""
}

// RoutingNumber returns the external routing number, if any.
func (a *Account) RoutingNumber() string {
	if rec := a.rec.Load(); rec != nil {
		return rec.RoutingNumber
	}
	return ""
}

// Budget returns the owning budget entity.
func (a *Account) Budget() *Budget {
	return a.budget
}

// CreateTransaction loads or creates a transaction in this account and
// waits for it to resolve.
func (a *Account) CreateTransaction(ctx context.Context, in TransactionInput) (*Transaction, error) {
	tx, err := NewTransaction(ctx, a, in)
	if err != nil {
		return nil, err
	}
	resolved, err := Await(ctx, tx)
	if err != nil {
		return nil, err
	}
	a.invalidate()
	return resolved, nil
}

// Transactions lists the transactions touching this account during the
// period containing target, ordered by date then identifier. A zero target
// means today.
func (a *Account) Transactions(ctx context.Context, target time.Time) ([]TransactionRecord, error) {
	rec := a.rec.Load()
	if rec == nil {
		return nil, fmt.Errorf("account: %w", ErrUnusable)
	}
	dates, err := a.budget.PeriodDates(target)
	if err != nil {
		return nil, err
	}
	window := []graph.Cond{
		{Property: "date", Op: graph.OpGte, Value: graph.DateValue(dates.Current)},
		{Property: "date", Op: graph.OpLt, Value: graph.DateValue(dates.Next)},
	}

	var out []TransactionRecord
	for _, side := range []string{graph.RelFrom, graph.RelTo} {
		records, err := a.sess.Find(ctx, graph.Query{
			Node: graph.Node{Label: graph.LabelTransaction},
			Rels: []graph.Rel{{
				Type:      side,
				Direction: graph.Outgoing,
				Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"uuid": rec.UUID}},
			}},
			Where: window,
		})
		if err != nil {
			return nil, fmt.Errorf("load transactions: %w", err)
		}
		for _, r := range records {
			decoded, err := decodeTransaction(r)
			if err != nil {
				return nil, err
			}
			out = append(out, decoded)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].UUID < out[j].UUID
	})
	return out, nil
}

// Balances computes the prior carry and current period balance rollups for
// the period containing target. Results are memoized briefly per period
// start; any write through this account invalidates them.
func (a *Account) Balances(ctx context.Context, target time.Time) (balance.Balances, error) {
	rec := a.rec.Load()
	if rec == nil {
		return balance.Balances{}, fmt.Errorf("account: %w", ErrUnusable)
	}
	dates, err := a.budget.PeriodDates(target)
	if err != nil {
		return balance.Balances{}, err
	}
	key := graph.DateValue(dates.Current)
	if cached, ok := a.balances.Get(key); ok {
		return cached, nil
	}
	result, err := balance.New(a.sess, rec.UUID).Balances(ctx, dates)
	if err != nil {
		return balance.Balances{}, err
	}
	a.balances.Set(key, result)
	return result, nil
}

// DailyBalances computes the daily balance trajectory around the current
// period start for the period containing target.
func (a *Account) DailyBalances(ctx context.Context, target time.Time) ([]balance.DailyPoint, error) {
	rec := a.rec.Load()
	if rec == nil {
		return nil, fmt.Errorf("account: %w", ErrUnusable)
	}
	dates, err := a.budget.PeriodDates(target)
	if err != nil {
		return nil, err
	}
	key := graph.DateValue(dates.Current)
	if cached, ok := a.daily.Get(key); ok {
		return cached, nil
	}
	result, err := balance.New(a.sess, rec.UUID).Daily(ctx, dates)
	if err != nil {
		return nil, err
	}
	a.daily.Set(key, result)
	return result, nil
}

// ImportTransactions runs the bulk import pipeline against this account and
// returns the created records, withdrawals first.
func (a *Account) ImportTransactions(ctx context.Context, items []importer.Item) ([]TransactionRecord, error) {
	rec := a.rec.Load()
	if rec == nil {
		return nil, fmt.Errorf("account: %w", ErrUnusable)
	}
	created, err := importer.New(a.sess, rec.UUID, nil).Run(ctx, items)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionRecord, 0, len(created))
	for _, r := range created {
		decoded, err := decodeTransaction(r)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	a.invalidate()
	return out, nil
}

func (a *Account) invalidate() {
	a.balances.Purge()
	a.daily.Purge()
}

func decodeAccount(rec graph.Record) (AccountRecord, error) {
	out := AccountRecord{}
	var err error
	if out.UUID, err = rec.String("uuid"); err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	if out.Name, err = rec.String("name"); err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	if out.Budget, err = rec.String("budget"); err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	if out.AccountNumber, err = rec.NullString("account_number"); err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	if out.RoutingNumber, err = rec.NullString("routing_number"); err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	typ, err := rec.String("type")
	if err != nil {
		return AccountRecord{}, fmt.Errorf("decode account: %w", err)
	}
	out.Type = AccountType(typ)
	if !out.Type.Valid() {
		return AccountRecord{}, fmt.Errorf("decode account: unknown type %q", typ)
	}
	return out, nil
}
