// Package graph defines the store contract the rest of the system is written
// against: match nodes by property, create nodes with relationships, and sum
// a numeric property over matching nodes. Concrete stores (neo4j, memory)
// implement this contract; nothing outside their packages sees query text.
package graph

import (
	"context"
	"time"
)

// DateLayout is the wire form of calendar dates stored on nodes.
const DateLayout = "2006-01-02"

// Node labels used by the budget schema.
const (
	LabelUser        = "User"
	LabelBudget      = "Budget"
	LabelAccount     = "Account"
	LabelTransaction = "Transaction"
)

// Relationship types used by the budget schema. FROM is the withdrawal side
// of a transaction and TO the deposit side; the directional sign of an amount
// is derived from which of the two a reader traverses.
const (
	RelOwner = "OWNER"
	RelFor   = "FOR"
	RelFrom  = "FROM"
	RelTo    = "TO"
)

// Props holds node properties keyed by name.
type Props map[string]any

// DateValue formats a date for storage as a node property.
func DateValue(t time.Time) string {
	return t.Format(DateLayout)
}

// Direction orients a relationship relative to the subject node.
type Direction int

const (
	// Outgoing means (subject)-[:TYPE]->(peer).
	Outgoing Direction = iota
	// Incoming means (subject)<-[:TYPE]-(peer).
	Incoming
)

// Node identifies nodes by label and property equality.
type Node struct {
	Label string
	Props Props
}

// Rel constrains (or, in a Create, establishes) a relationship between the
// subject node and a peer node.
type Rel struct {
	Type      string
	Direction Direction
	Peer      Node
}

// Op is a comparison operator usable in a Cond.
type Op string

const (
	OpEq  Op = "="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Cond is an additional predicate on a matched node's property.
type Cond struct {
	Property string
	Op       Op
	Value    any
}

// Query matches nodes by label, property equality, an optional relationship
// constraint, and extra property conditions.
type Query struct {
	Node  Node
	Rels  []Rel
	Where []Cond
}

// Create describes a node to create together with relationships to existing
// nodes. Each Rel's peer must match an existing node.
type Create struct {
	Node Node
	Rels []Rel
}

// Session is one logical store session. Operations issued sequentially on a
// session complete in issue order. Close tears the session down; pooled
// wrappers redirect Close back to the pool instead.
type Session interface {
	// Find returns the property bags of all nodes matching the query,
	// possibly empty.
	Find(ctx context.Context, q Query) ([]Record, error)

	// Create inserts a node and its relationships and returns the created
	// record. Fails with ErrConstraintViolation when a uniqueness rule is
	// violated.
	Create(ctx context.Context, c Create) (Record, error)

	// CreateMany inserts a batch of nodes as one bulk operation and returns
	// the created records in insertion order.
	CreateMany(ctx context.Context, specs []Create) ([]Record, error)

	// AggregateSum sums a numeric property over all nodes matching the
	// query. ok is false when no node matched (a null aggregate).
	AggregateSum(ctx context.Context, q Query, property string) (sum float64, ok bool, err error)

	Close(ctx context.Context) error
}

// Store opens sessions against a concrete graph database.
type Store interface {
	OpenSession(ctx context.Context) (Session, error)

	// Configure applies the store-level uniqueness constraints. Idempotent.
	Configure(ctx context.Context) error

	Close(ctx context.Context) error
}

// Constraint declares a store-level uniqueness rule over a property tuple.
type Constraint struct {
	Name       string
	Label      string
	Properties []string
}

// Constraints returns the uniqueness rules every conforming store enforces.
func Constraints() []Constraint {
	return []Constraint{
		{Name: "username", Label: LabelUser, Properties: []string{"email"}},
		{Name: "budgetname", Label: LabelBudget, Properties: []string{"owner", "name"}},
		{Name: "accountname", Label: LabelAccount, Properties: []string{"budget", "name"}},
		{Name: "transactionid", Label: LabelTransaction, Properties: []string{"uuid"}},
	}
}
