// Package worker processes bulk import batches delivered over AMQP.
package worker

import (
	"context"
	"fmt"

	"github.com/mlaanderson/budget-v3/internal/amqp"
	"github.com/mlaanderson/budget-v3/internal/entity"
	"github.com/mlaanderson/budget-v3/internal/log"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

// ImportWorker resolves the target account of each batch and runs the bulk
// import pipeline against it.
type ImportWorker struct {
	pool   *pool.Pool
	logger *log.Logger
}

func NewImportWorker(p *pool.Pool, logger *log.Logger) *ImportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ImportWorker{
		pool:   p,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleImportBatch processes a single import batch message. The budget and
// account resolve through the usual load-or-create path, so a first import
// into a fresh account creates it.
func (w *ImportWorker) HandleImportBatch(ctx context.Context, msg *amqp.ImportBatchMessage) error {
	w.logger.InfoContext(ctx, "processing import batch",
		log.FieldUser, msg.Owner,
		log.FieldBudget, msg.Budget,
		log.FieldAccount, msg.Account,
		log.FieldBatchSize, len(msg.Items))

	budget, err := entity.NewBudget(ctx, w.pool, msg.Owner, msg.Budget, entity.BudgetOptions{})
	if err != nil {
		return fmt.Errorf("construct budget: %w", err)
	}
	defer budget.Close(ctx)
	if _, err := entity.Await(ctx, budget); err != nil {
		return fmt.Errorf("resolve budget %s/%s: %w", msg.Owner, msg.Budget, err)
	}

	account, err := budget.CreateAccount(ctx, msg.Account, entity.AccountOptions{})
	if err != nil {
		return fmt.Errorf("resolve account %s: %w", msg.Account, err)
	}
	defer account.Close(ctx)

	created, err := account.ImportTransactions(ctx, msg.Items)
	if err != nil {
		return fmt.Errorf("import transactions: %w", err)
	}

	w.logger.InfoContext(ctx, "import batch complete",
		log.FieldAccount, msg.Account,
		"created", len(created))
	return nil
}
