// Package importer ingests batches of externally sourced transactions.
// Incoming amounts are signed: non-positive amounts become withdrawals and
// positive amounts become deposits, each stored as a non-negative magnitude
// rounded to 2 decimal places and attached through the matching relationship.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/log"
)

// Item is one externally sourced transaction record.
type Item struct {
	ID        string          `json:"id,omitempty"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Memo      string          `json:"memo"`
	Check     string          `json:"check"`
	Scheduled bool            `json:"scheduled"`
	Cleared   bool            `json:"cleared"`
	Cash      bool            `json:"cash"`
	Notes     string          `json:"notes"`
}

// Pipeline inserts import batches for one account over one session.
type Pipeline struct {
	sess      graph.Session
	accountID string
	logger    *log.Logger
}

// New creates a pipeline writing to the account with the given identifier.
func New(sess graph.Session, accountID string, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Pipeline{
		sess:      sess,
		accountID: accountID,
		logger:    logger.WithComponent(log.ComponentImporter),
	}
}

// Run partitions the batch by sign, preserving relative order within each
// partition, and inserts the two partitions as two bulk operations. The
// returned records are the withdrawals followed by the deposits, which does
// not necessarily match the input order.
func (p *Pipeline) Run(ctx context.Context, items []Item) ([]graph.Record, error) {
	var withdrawals, deposits []graph.Create
	for _, item := range items {
		spec := p.spec(item)
		if item.Amount.Sign() <= 0 {
			spec.Rels = []graph.Rel{p.attach(graph.RelFrom)}
			withdrawals = append(withdrawals, spec)
		} else {
			spec.Rels = []graph.Rel{p.attach(graph.RelTo)}
			deposits = append(deposits, spec)
		}
	}

	created, err := p.sess.CreateMany(ctx, withdrawals)
	if err != nil {
		return nil, fmt.Errorf("insert withdrawals: %w", err)
	}
	depRecords, err := p.sess.CreateMany(ctx, deposits)
	if err != nil {
		return nil, fmt.Errorf("insert deposits: %w", err)
	}
	created = append(created, depRecords...)

	p.logger.InfoContext(ctx, "imported transactions",
		log.FieldAccount, p.accountID,
		log.FieldBatchSize, len(items),
		"withdrawals", len(withdrawals),
		"deposits", len(deposits))
	return created, nil
}

func (p *Pipeline) spec(item Item) graph.Create {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	amount, _ := item.Amount.Abs().Round(2).Float64()
	return graph.Create{
		Node: graph.Node{
			Label: graph.LabelTransaction,
			Props: graph.Props{
				"uuid":      id,
				"date":      graph.DateValue(item.Date),
				"amount":    amount,
				"category":  item.Category,
				"memo":      item.Memo,
				"check":     item.Check,
				"transfer":  nil,
				"scheduled": item.Scheduled,
				"cleared":   item.Cleared,
				"cash":      item.Cash,
				"notes":     item.Notes,
			},
		},
	}
}

func (p *Pipeline) attach(side string) graph.Rel {
	return graph.Rel{
		Type:      side,
		Direction: graph.Outgoing,
		Peer:      graph.Node{Label: graph.LabelAccount, Props: graph.Props{"uuid": p.accountID}},
	}
}
