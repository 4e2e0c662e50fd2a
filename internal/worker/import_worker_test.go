package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mlaanderson/budget-v3/internal/amqp"
	"github.com/mlaanderson/budget-v3/internal/entity"
	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/graph/memory"
	"github.com/mlaanderson/budget-v3/internal/importer"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

const testOwner = "pat@example.com"

func newWorkerFixture(t *testing.T) (*ImportWorker, *pool.Pool) {
	t.Helper()
	ctx := context.Background()
	p, err := pool.New(ctx, memory.New(), pool.Config{Min: 1, Max: 20}, nil)
	if err != nil {
		t.Fatalf("pool.New() error: %v", err)
	}
	t.Cleanup(func() { p.Drain(context.Background()) })

	users, err := entity.NewUsers(ctx, p)
	if err != nil {
		t.Fatalf("NewUsers() error: %v", err)
	}
	defer users.Close(ctx)
	if _, err := users.Create(ctx, testOwner, "hash", "Pat"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return NewImportWorker(p, nil), p
}

func TestHandleImportBatch_CreatesEverythingOnFirstImport(t *testing.T) {
	ctx := context.Background()
	w, p := newWorkerFixture(t)

	msg := amqp.NewImportBatchMessage(testOwner, "Home", "Checking", []importer.Item{
		{Date: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromFloat(-25.50)},
		{Date: time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromFloat(100)},
	})
	if err := w.HandleImportBatch(ctx, msg); err != nil {
		t.Fatalf("HandleImportBatch() error: %v", err)
	}

	// Neither the budget nor the account existed before; the batch created
	// both and attached the transactions.
	budget, err := entity.NewBudget(ctx, p, testOwner, "Home", entity.BudgetOptions{})
	if err != nil {
		t.Fatalf("NewBudget() error: %v", err)
	}
	defer budget.Close(ctx)
	if _, err := entity.Await(ctx, budget); err != nil {
		t.Fatalf("Await(budget) error: %v", err)
	}
	account, err := budget.GetAccount(ctx, "Checking")
	if err != nil {
		t.Fatalf("GetAccount() error: %v", err)
	}
	defer account.Close(ctx)

	balances, err := account.Balances(ctx, time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Balances() error: %v", err)
	}
	// The current total carries the prior total forward, so it is the net of
	// everything imported no matter where the period boundary fell.
	if got := balances.Current.Total; got != 74.5 {
		t.Errorf("Current.Total = %v, want 74.5", got)
	}
}

func TestHandleImportBatch_SecondBatchAppends(t *testing.T) {
	ctx := context.Background()
	w, p := newWorkerFixture(t)

	first := amqp.NewImportBatchMessage(testOwner, "Home", "Checking", []importer.Item{
		{ID: "t-1", Date: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromFloat(50)},
	})
	if err := w.HandleImportBatch(ctx, first); err != nil {
		t.Fatalf("HandleImportBatch(first) error: %v", err)
	}

	second := amqp.NewImportBatchMessage(testOwner, "Home", "Checking", []importer.Item{
		{ID: "t-2", Date: time.Date(2024, time.May, 3, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromFloat(-20)},
	})
	if err := w.HandleImportBatch(ctx, second); err != nil {
		t.Fatalf("HandleImportBatch(second) error: %v", err)
	}

	sess, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer sess.Close(ctx)
	recs, err := sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelTransaction}})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("store holds %d transactions after two batches, want 2", len(recs))
	}

	// Both batches landed on the same account node.
	accounts, err := sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelAccount}})
	if err != nil {
		t.Fatalf("Find(accounts) error: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("store holds %d accounts, want 1", len(accounts))
	}
}

func TestHandleImportBatch_UnknownOwnerFails(t *testing.T) {
	ctx := context.Background()
	w, _ := newWorkerFixture(t)

	msg := amqp.NewImportBatchMessage("ghost@example.com", "Home", "Checking", []importer.Item{
		{Date: time.Now(), Amount: decimal.NewFromFloat(-1)},
	})
	if err := w.HandleImportBatch(ctx, msg); err == nil {
		t.Error("HandleImportBatch() with unknown owner error = nil, want error")
	}
}
