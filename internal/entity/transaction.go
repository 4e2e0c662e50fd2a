package entity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

// ErrNegativeAmount reports a transaction amount below zero. Amounts are
// stored as non-negative magnitudes; direction comes from the relationship.
var ErrNegativeAmount = errors.New("transaction amount must not be negative")

// TransactionRecord is the fully decoded shape of a transaction node.
type TransactionRecord struct {
	UUID      string
	Date      time.Time
	Amount    float64
	Category  string
	Memo      string
	Check     string
	Transfer  string
	Scheduled bool
	Cleared   bool
	Cash      bool
	Notes     string
}

// TransactionInput carries the attributes of a transaction to load or
// create. Amount is a non-negative magnitude; Transfer names the destination
// account within the same budget when the transaction is a transfer.
type TransactionInput struct {
	UUID      string
	Date      time.Time
	Amount    float64
	Category  string
	Memo      string
	Check     string
	Transfer  string
	Scheduled bool
	Cleared   bool
	Cash      bool
	Notes     string
}

// Transaction is a deferred transaction entity. A transaction always debits
// its account through the FROM relationship; a transfer additionally credits
// the destination account through TO.
type Transaction struct {
	deferred
	rec atomic.Pointer[TransactionRecord]
}

// NewTransaction acquires a session and starts resolving a transaction in
// the given account. An empty input UUID means a fresh identifier is
// generated before creation.
func NewTransaction(ctx context.Context, account *Account, in TransactionInput) (*Transaction, error) {
	if in.Amount < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeAmount, in.Amount)
	}
	accountRec := account.rec.Load()
	if accountRec == nil {
		return nil, fmt.Errorf("account: %w", ErrUnusable)
	}
	sess, err := account.budget.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	t := &Transaction{deferred: newDeferred(sess)}
	go t.resolve(ctx, accountRec.UUID, accountRec.Budget, in)
	return t, nil
}

func (t *Transaction) resolve(ctx context.Context, accountID, budgetID string, in TransactionInput) {
	id := in.UUID
	if id == "" {
		id = uuid.NewString()
	}
	amount, _ := decimal.NewFromFloat(in.Amount).Round(2).Float64()

	var transfer any
	rels := []graph.Rel{{
		Type:      graph.RelFrom,
		Direction: graph.Outgoing,
		Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"uuid": accountID}},
	}}
	if in.Transfer != "" {
		transfer = in.Transfer
		rels = append(rels, graph.Rel{
			Type:      graph.RelTo,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"budget": budgetID, "name": in.Transfer}},
		})
	}

	record, err := t.loadOrCreate(ctx,
		graph.Query{
			Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": id}},
			Rels: []graph.Rel{{
				Direction: graph.Outgoing,
				Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"uuid": accountID}},
			}},
		},
		graph.Create{
			Node: graph.Node{
				Label: graph.LabelTransaction,
				Props: graph.Props{
					"uuid":      id,
					"date":      graph.DateValue(in.Date),
					"amount":    amount,
					"category":  in.Category,
					"memo":      in.Memo,
					"check":     in.Check,
					"transfer":  transfer,
					"scheduled": in.Scheduled,
					"cleared":   in.Cleared,
					"cash":      in.Cash,
					"notes":     in.Notes,
				},
			},
			Rels: rels,
		},
	)
	if err != nil {
		t.finish(false, fmt.Errorf("resolve transaction %s: %w", id, err))
		return
	}

	decoded, err := decodeTransaction(record)
	if err != nil {
		t.finish(false, fmt.Errorf("resolve transaction %s: %w", id, err))
		return
	}
	t.rec.Store(&decoded)
	t.finish(true, nil)
}

// ID returns the transaction identifier, or the empty string before
// resolution.
func (t *Transaction) ID() string {
	if rec := t.rec.Load(); rec != nil {
		return rec.UUID
	}
	return ""
}

// Record returns the decoded transaction record, or false before resolution.
func (t *Transaction) Record() (TransactionRecord, bool) {
	if rec := t.rec.Load(); rec != nil {
		return *rec, true
	}
	return TransactionRecord{}, false
}

func decodeTransaction(rec graph.Record) (TransactionRecord, error) {
	out := TransactionRecord{}
	var err error
	if out.UUID, err = rec.String("uuid"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Date, err = rec.Date("date"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Amount, err = rec.Float("amount"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Category, err = rec.NullString("category"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Memo, err = rec.NullString("memo"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Check, err = rec.NullString("check"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Transfer, err = rec.NullString("transfer"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Scheduled, err = rec.Bool("scheduled"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Cleared, err = rec.Bool("cleared"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Cash, err = rec.Bool("cash"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	if out.Notes, err = rec.NullString("notes"); err != nil {
		return TransactionRecord{}, fmt.Errorf("decode transaction: %w", err)
	}
	return out, nil
}
