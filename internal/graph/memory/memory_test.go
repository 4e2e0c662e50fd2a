package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

func openSession(t *testing.T) graph.Session {
	t.Helper()
	store := New()
	sess, err := store.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}
	return sess
}

func mustCreate(t *testing.T, sess graph.Session, c graph.Create) graph.Record {
	t.Helper()
	rec, err := sess.Create(context.Background(), c)
	if err != nil {
		t.Fatalf("Create(%s) error: %v", c.Node.Label, err)
	}
	return rec
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com", "name": "Pat"}},
	})

	recs, err := sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com"}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find() returned %d records, want 1", len(recs))
	}
	name, err := recs[0].String("name")
	if err != nil || name != "Pat" {
		t.Errorf("record name = %q (err %v), want Pat", name, err)
	}

	recs, err = sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "nobody@example.com"}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Find() for absent user returned %d records, want 0", len(recs))
	}
}

func TestUniquenessConstraints(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com"}},
	})
	_, err := sess.Create(ctx, graph.Create{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com", "name": "Other"}},
	})
	if !errors.Is(err, graph.ErrConstraintViolation) {
		t.Fatalf("duplicate user Create() = %v, want ErrConstraintViolation", err)
	}

	// Composite key: same budget name under different owners is allowed.
	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"owner": "pat@example.com", "name": "Home"}},
	})
	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"owner": "sam@example.com", "name": "Home"}},
	})
	_, err = sess.Create(ctx, graph.Create{
		Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"owner": "pat@example.com", "name": "Home"}},
	})
	if !errors.Is(err, graph.ErrConstraintViolation) {
		t.Fatalf("duplicate budget Create() = %v, want ErrConstraintViolation", err)
	}
}

func TestRelationshipMatching(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com"}},
	})
	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"owner": "pat@example.com", "name": "Home", "uuid": "b-1"}},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com"}},
		}},
	})

	// Match via the outgoing OWNER relationship.
	recs, err := sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelBudget},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com"}},
		}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find() by relationship returned %d records, want 1", len(recs))
	}

	// The same relationship seen from the user's side is incoming.
	recs, err = sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelUser},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Incoming,
			Peer:      graph.Node{Label: graph.LabelBudget, Props: graph.Props{"uuid": "b-1"}},
		}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find() incoming relationship returned %d records, want 1", len(recs))
	}

	// An empty relationship type matches any type.
	recs, err = sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelBudget},
		Rels: []graph.Rel{{
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelUser},
		}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Find() untyped relationship returned %d records, want 1", len(recs))
	}

	// Wrong direction must not match.
	recs, err = sess.Find(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelBudget},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Incoming,
			Peer:      graph.Node{Label: graph.LabelUser},
		}},
	})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Find() reversed relationship returned %d records, want 0", len(recs))
	}
}

func TestCreateRejectsMissingPeer(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	_, err := sess.Create(ctx, graph.Create{
		Node: graph.Node{Label: graph.LabelBudget, Props: graph.Props{"owner": "x", "name": "n"}},
		Rels: []graph.Rel{{
			Type:      graph.RelOwner,
			Direction: graph.Outgoing,
			Peer:      graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "absent@example.com"}},
		}},
	})
	if err == nil {
		t.Fatal("Create() with missing peer error = nil, want error")
	}
}

func TestCreateManyIsAtomic(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-1", "amount": 5.0}},
	})

	// Second spec collides; the whole batch must be rejected.
	_, err := sess.CreateMany(ctx, []graph.Create{
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-2", "amount": 1.0}}},
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-1", "amount": 2.0}}},
	})
	if !errors.Is(err, graph.ErrConstraintViolation) {
		t.Fatalf("CreateMany() with duplicate = %v, want ErrConstraintViolation", err)
	}

	recs, err := sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelTransaction}})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("store holds %d transactions after failed batch, want 1", len(recs))
	}

	// Duplicates inside one batch are caught too.
	_, err = sess.CreateMany(ctx, []graph.Create{
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-3"}}},
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-3"}}},
	})
	if !errors.Is(err, graph.ErrConstraintViolation) {
		t.Fatalf("CreateMany() with in-batch duplicate = %v, want ErrConstraintViolation", err)
	}
}

func TestCreateManyPreservesOrder(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	specs := []graph.Create{
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-a"}}},
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-b"}}},
		{Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "t-c"}}},
	}
	recs, err := sess.CreateMany(ctx, specs)
	if err != nil {
		t.Fatalf("CreateMany() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("CreateMany() returned %d records, want 3", len(recs))
	}
	for i, want := range []string{"t-a", "t-b", "t-c"} {
		got, err := recs[i].String("uuid")
		if err != nil || got != want {
			t.Errorf("record %d uuid = %q (err %v), want %q", i, got, err, want)
		}
	}
}

func TestWhereConditions(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	for _, p := range []graph.Props{
		{"uuid": "t-1", "date": "2024-01-05", "amount": 10.0, "cleared": true},
		{"uuid": "t-2", "date": "2024-01-15", "amount": 20.0, "cleared": false},
		{"uuid": "t-3", "date": "2024-02-01", "amount": 30.0, "cleared": true},
	} {
		mustCreate(t, sess, graph.Create{Node: graph.Node{Label: graph.LabelTransaction, Props: p}})
	}

	tests := []struct {
		name  string
		where []graph.Cond
		want  int
	}{
		{
			name: "date window",
			where: []graph.Cond{
				{Property: "date", Op: graph.OpGte, Value: "2024-01-01"},
				{Property: "date", Op: graph.OpLt, Value: "2024-02-01"},
			},
			want: 2,
		},
		{
			name:  "amount threshold",
			where: []graph.Cond{{Property: "amount", Op: graph.OpGt, Value: 15.0}},
			want:  2,
		},
		{
			name:  "cleared only",
			where: []graph.Cond{{Property: "cleared", Op: graph.OpEq, Value: true}},
			want:  2,
		},
		{
			name:  "impossible",
			where: []graph.Cond{{Property: "amount", Op: graph.OpLt, Value: 0.0}},
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := sess.Find(ctx, graph.Query{
				Node:  graph.Node{Label: graph.LabelTransaction},
				Where: tt.where,
			})
			if err != nil {
				t.Fatalf("Find() error: %v", err)
			}
			if len(recs) != tt.want {
				t.Errorf("Find() returned %d records, want %d", len(recs), tt.want)
			}
		})
	}
}

func TestAggregateSum(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	for _, p := range []graph.Props{
		{"uuid": "t-1", "amount": 12.5, "cleared": true},
		{"uuid": "t-2", "amount": 7.5, "cleared": true},
		{"uuid": "t-3", "amount": 100.0, "cleared": false},
	} {
		mustCreate(t, sess, graph.Create{Node: graph.Node{Label: graph.LabelTransaction, Props: p}})
	}

	sum, ok, err := sess.AggregateSum(ctx, graph.Query{
		Node:  graph.Node{Label: graph.LabelTransaction},
		Where: []graph.Cond{{Property: "cleared", Op: graph.OpEq, Value: true}},
	}, "amount")
	if err != nil {
		t.Fatalf("AggregateSum() error: %v", err)
	}
	if !ok || sum != 20.0 {
		t.Errorf("AggregateSum() = (%v, %v), want (20, true)", sum, ok)
	}

	// Null aggregate: no node matched.
	sum, ok, err = sess.AggregateSum(ctx, graph.Query{
		Node: graph.Node{Label: graph.LabelTransaction, Props: graph.Props{"uuid": "absent"}},
	}, "amount")
	if err != nil {
		t.Fatalf("AggregateSum() error: %v", err)
	}
	if ok || sum != 0 {
		t.Errorf("AggregateSum() over empty match = (%v, %v), want (0, false)", sum, ok)
	}
}

func TestClosedSessionAndStore(t *testing.T) {
	ctx := context.Background()
	store := New()
	sess, err := store.OpenSession(ctx)
	if err != nil {
		t.Fatalf("OpenSession() error: %v", err)
	}

	if err := sess.Close(ctx); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelUser}}); !errors.Is(err, graph.ErrSessionClosed) {
		t.Errorf("Find() on closed session = %v, want ErrSessionClosed", err)
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("store Close() error: %v", err)
	}
	if _, err := store.OpenSession(ctx); !errors.Is(err, graph.ErrSessionClosed) {
		t.Errorf("OpenSession() on closed store = %v, want ErrSessionClosed", err)
	}
}

func TestRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	mustCreate(t, sess, graph.Create{
		Node: graph.Node{Label: graph.LabelUser, Props: graph.Props{"email": "pat@example.com", "name": "Pat"}},
	})
	recs, err := sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelUser}})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	recs[0]["name"] = "mutated"

	recs, err = sess.Find(ctx, graph.Query{Node: graph.Node{Label: graph.LabelUser}})
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if name, _ := recs[0].String("name"); name != "Pat" {
		t.Errorf("stored name = %q after caller mutation, want Pat", name)
	}
}
