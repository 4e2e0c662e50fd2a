// Package memory implements the graph store contract entirely in memory.
// It enforces the same uniqueness constraints as the neo4j store, which makes
// it a faithful stand-in for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

type node struct {
	id    int
	label string
	props graph.Record
}

type rel struct {
	typ      string
	from, to int
}

// Store is an in-memory graph database guarded by a single mutex.
type Store struct {
	mu     sync.Mutex
	nextID int
	nodes  []*node
	rels   []rel
	closed bool
}

// New returns an empty store with the standard uniqueness constraints active.
func New() *Store {
	return &Store{}
}

// OpenSession implements graph.Store.
func (s *Store) OpenSession(_ context.Context) (graph.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("open session: %w", graph.ErrSessionClosed)
	}
	return &session{store: s}, nil
}

// Configure implements graph.Store. Constraints are always enforced here.
func (s *Store) Configure(_ context.Context) error {
	return nil
}

// Close implements graph.Store.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type session struct {
	store  *Store
	mu     sync.Mutex
	closed bool
}

func (se *session) guard() error {
	se.mu.Lock()
	closed := se.closed
	se.mu.Unlock()
	if closed {
		return graph.ErrSessionClosed
	}
	return nil
}

func (se *session) Find(_ context.Context, q graph.Query) ([]graph.Record, error) {
	if err := se.guard(); err != nil {
		return nil, err
	}
	s := se.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []graph.Record
	for _, n := range s.nodes {
		if s.matches(n, q) {
			out = append(out, cloneRecord(n.props))
		}
	}
	return out, nil
}

func (se *session) Create(ctx context.Context, c graph.Create) (graph.Record, error) {
	recs, err := se.CreateMany(ctx, []graph.Create{c})
	if err != nil {
		return nil, err
	}
	return recs[0], nil
}

func (se *session) CreateMany(_ context.Context, specs []graph.Create) ([]graph.Record, error) {
	if err := se.guard(); err != nil {
		return nil, err
	}
	s := se.store
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage the whole batch first so a failure inserts nothing.
	staged := make([]*node, 0, len(specs))
	stagedRels := make([]rel, 0, len(specs))
	for _, c := range specs {
		n := &node{label: c.Node.Label, props: cloneProps(c.Node.Props)}
		if err := s.checkConstraints(n, staged); err != nil {
			return nil, err
		}
		n.id = s.nextID + len(staged)
		for _, r := range c.Rels {
			peer := s.findOne(r.Peer)
			if peer == nil {
				return nil, fmt.Errorf("create %s: no %s node matches relationship peer", c.Node.Label, r.Peer.Label)
			}
			if r.Direction == graph.Outgoing {
				stagedRels = append(stagedRels, rel{typ: r.Type, from: n.id, to: peer.id})
			} else {
				stagedRels = append(stagedRels, rel{typ: r.Type, from: peer.id, to: n.id})
			}
		}
		staged = append(staged, n)
	}

	s.nextID += len(staged)
	s.nodes = append(s.nodes, staged...)
	s.rels = append(s.rels, stagedRels...)

	out := make([]graph.Record, len(staged))
	for i, n := range staged {
		out[i] = cloneRecord(n.props)
	}
	return out, nil
}

func (se *session) AggregateSum(_ context.Context, q graph.Query, property string) (float64, bool, error) {
	if err := se.guard(); err != nil {
		return 0, false, err
	}
	s := se.store
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum float64
	matched := false
	for _, n := range s.nodes {
		if !s.matches(n, q) {
			continue
		}
		v, err := n.props.Float(property)
		if err != nil {
			return 0, false, fmt.Errorf("aggregate %s.%s: %w", q.Node.Label, property, err)
		}
		sum += v
		matched = true
	}
	return sum, matched, nil
}

func (se *session) Close(_ context.Context) error {
	se.mu.Lock()
	se.closed = true
	se.mu.Unlock()
	return nil
}

// matches reports whether a node satisfies a query. Caller holds the lock.
func (s *Store) matches(n *node, q graph.Query) bool {
	if n.label != q.Node.Label || !propsMatch(n.props, q.Node.Props) {
		return false
	}
	for _, rc := range q.Rels {
		if !s.hasRel(n, rc) {
			return false
		}
	}
	for _, cond := range q.Where {
		if !condMatch(n.props[cond.Property], cond) {
			return false
		}
	}
	return true
}

func (s *Store) hasRel(n *node, rc graph.Rel) bool {
	for _, r := range s.rels {
		if rc.Type != "" && r.typ != rc.Type {
			continue
		}
		var peerID int
		switch {
		case rc.Direction == graph.Outgoing && r.from == n.id:
			peerID = r.to
		case rc.Direction == graph.Incoming && r.to == n.id:
			peerID = r.from
		default:
			continue
		}
		peer := s.nodeByID(peerID)
		if peer != nil && peer.label == rc.Peer.Label && propsMatch(peer.props, rc.Peer.Props) {
			return true
		}
	}
	return false
}

func (s *Store) nodeByID(id int) *node {
	for _, n := range s.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

func (s *Store) findOne(m graph.Node) *node {
	for _, n := range s.nodes {
		if n.label == m.Label && propsMatch(n.props, m.Props) {
			return n
		}
	}
	return nil
}

// checkConstraints validates a staged node against the store and the rest of
// the staged batch.
func (s *Store) checkConstraints(n *node, staged []*node) error {
	for _, c := range graph.Constraints() {
		if c.Label != n.label {
			continue
		}
		key, ok := constraintKey(n, c)
		if !ok {
			continue
		}
		for _, other := range s.nodes {
			if k, ok := constraintKey(other, c); ok && other.label == n.label && k == key {
				return fmt.Errorf("constraint %s: %w", c.Name, graph.ErrConstraintViolation)
			}
		}
		for _, other := range staged {
			if k, ok := constraintKey(other, c); ok && other.label == n.label && k == key {
				return fmt.Errorf("constraint %s: %w", c.Name, graph.ErrConstraintViolation)
			}
		}
	}
	return nil
}

func constraintKey(n *node, c graph.Constraint) (string, bool) {
	key := ""
	for _, p := range c.Properties {
		v, ok := n.props[p]
		if !ok || v == nil {
			return "", false
		}
		key += fmt.Sprintf("%v\x00", v)
	}
	return key, true
}

func propsMatch(props graph.Record, want graph.Props) bool {
	for k, v := range want {
		if props[k] != v {
			return false
		}
	}
	return true
}

func condMatch(have any, cond graph.Cond) bool {
	switch want := cond.Value.(type) {
	case string:
		s, ok := have.(string)
		if !ok {
			return false
		}
		return compareOrdered(s, want, cond.Op)
	case float64:
		f, ok := toFloat(have)
		if !ok {
			return false
		}
		return compareOrdered(f, want, cond.Op)
	case bool:
		b, ok := have.(bool)
		if !ok {
			return false
		}
		return cond.Op == graph.OpEq && b == want
	default:
		return false
	}
}

func compareOrdered[T string | float64](have, want T, op graph.Op) bool {
	switch op {
	case graph.OpEq:
		return have == want
	case graph.OpLt:
		return have < want
	case graph.OpLte:
		return have <= want
	case graph.OpGt:
		return have > want
	case graph.OpGte:
		return have >= want
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneProps(p graph.Props) graph.Record {
	out := make(graph.Record, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func cloneRecord(r graph.Record) graph.Record {
	out := make(graph.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
