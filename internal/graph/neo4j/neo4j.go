// Package neo4j adapts the graph store contract onto a Neo4j database using
// the official driver. All query text lives here; callers only see the
// contract types from internal/graph.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"

	drv "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/mlaanderson/budget-v3/internal/graph"
)

const constraintViolated = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Config holds the connection settings for a Neo4j store.
type Config struct {
	URI      string
	Database string
	Username string
	Password string
}

// Store implements graph.Store over a Neo4j driver.
type Store struct {
	driver   drv.DriverWithContext
	database string
}

// New connects to Neo4j and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := drv.NewDriverWithContext(cfg.URI, drv.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Store{driver: driver, database: cfg.Database}, nil
}

// OpenSession implements graph.Store.
func (s *Store) OpenSession(_ context.Context) (graph.Session, error) {
	raw := s.driver.NewSession(context.Background(), drv.SessionConfig{DatabaseName: s.database})
	return &session{raw: raw}, nil
}

// Configure applies the uniqueness constraints. Neo4j treats the statements
// as idempotent through IF NOT EXISTS.
func (s *Store) Configure(ctx context.Context) error {
	sess := s.driver.NewSession(ctx, drv.SessionConfig{DatabaseName: s.database})
	defer sess.Close(ctx)

	for _, c := range graph.Constraints() {
		props := make([]string, len(c.Properties))
		for i, p := range c.Properties {
			props[i] = "n." + p
		}
		stmt := fmt.Sprintf(
			"CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS UNIQUE",
			c.Name, c.Label, strings.Join(props, ", "),
		)
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("apply constraint %s: %w", c.Name, err)
		}
	}
	return nil
}

// Close implements graph.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

type session struct {
	raw drv.SessionWithContext
}

func (se *session) Find(ctx context.Context, q graph.Query) ([]graph.Record, error) {
	cypher, params := compileMatch(q)
	cypher += " RETURN n"

	result, err := se.raw.Run(ctx, cypher, params)
	if err != nil {
		return nil, translate(err)
	}
	var out []graph.Record
	for result.Next(ctx) {
		rec, err := nodeRecord(result.Record(), "n")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := result.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (se *session) Create(ctx context.Context, c graph.Create) (graph.Record, error) {
	var b strings.Builder
	params := map[string]any{"props": map[string]any(c.Node.Props)}

	for i, r := range c.Rels {
		alias := fmt.Sprintf("p%d", i)
		b.WriteString(fmt.Sprintf("MATCH (%s:%s {%s})\n", alias, r.Peer.Label, inlineProps(alias, r.Peer.Props, params)))
	}
	b.WriteString(fmt.Sprintf("CREATE (n:%s) SET n = $props\n", c.Node.Label))
	for i, r := range c.Rels {
		alias := fmt.Sprintf("p%d", i)
		if r.Direction == graph.Outgoing {
			b.WriteString(fmt.Sprintf("CREATE (n)-[:%s]->(%s)\n", r.Type, alias))
		} else {
			b.WriteString(fmt.Sprintf("CREATE (n)<-[:%s]-(%s)\n", r.Type, alias))
		}
	}
	b.WriteString("RETURN n")

	result, err := se.raw.Run(ctx, b.String(), params)
	if err != nil {
		return nil, translate(err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		// Zero rows means a relationship peer did not match.
		return nil, fmt.Errorf("create %s: %w", c.Node.Label, translate(err))
	}
	return nodeRecord(record, "n")
}

func (se *session) CreateMany(ctx context.Context, specs []graph.Create) ([]graph.Record, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tmpl := specs[0]
	rows := make([]map[string]any, len(specs))
	for i, c := range specs {
		if c.Node.Label != tmpl.Node.Label || !sameRelShape(c.Rels, tmpl.Rels) {
			return nil, fmt.Errorf("create many: batch mixes node or relationship shapes")
		}
		row := map[string]any{"props": map[string]any(c.Node.Props)}
		for j, r := range c.Rels {
			row[fmt.Sprintf("peer%d", j)] = map[string]any(r.Peer.Props)
		}
		rows[i] = row
	}

	var b strings.Builder
	b.WriteString("UNWIND $rows AS row\n")
	for j, r := range tmpl.Rels {
		conds := make([]string, 0, len(r.Peer.Props))
		for k := range r.Peer.Props {
			conds = append(conds, fmt.Sprintf("p%d.%s = row.peer%d.%s", j, k, j, k))
		}
		b.WriteString(fmt.Sprintf("MATCH (p%d:%s) WHERE %s\n", j, r.Peer.Label, strings.Join(conds, " AND ")))
	}
	b.WriteString(fmt.Sprintf("CREATE (n:%s) SET n = row.props\n", tmpl.Node.Label))
	for j, r := range tmpl.Rels {
		if r.Direction == graph.Outgoing {
			b.WriteString(fmt.Sprintf("CREATE (n)-[:%s]->(p%d)\n", r.Type, j))
		} else {
			b.WriteString(fmt.Sprintf("CREATE (n)<-[:%s]-(p%d)\n", r.Type, j))
		}
	}
	b.WriteString("RETURN n")

	result, err := se.raw.Run(ctx, b.String(), map[string]any{"rows": rows})
	if err != nil {
		return nil, translate(err)
	}
	out := make([]graph.Record, 0, len(specs))
	for result.Next(ctx) {
		rec, err := nodeRecord(result.Record(), "n")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := result.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (se *session) AggregateSum(ctx context.Context, q graph.Query, property string) (float64, bool, error) {
	cypher, params := compileMatch(q)
	cypher += fmt.Sprintf(" RETURN sum(n.%s) AS total, count(n) AS matched", property)

	result, err := se.raw.Run(ctx, cypher, params)
	if err != nil {
		return 0, false, translate(err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, false, translate(err)
	}
	matched, _ := record.Get("matched")
	if n, ok := matched.(int64); !ok || n == 0 {
		return 0, false, nil
	}
	total, _ := record.Get("total")
	switch v := total.(type) {
	case float64:
		return v, true, nil
	case int64:
		return float64(v), true, nil
	case nil:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("aggregate %s.%s: unexpected sum type %T", q.Node.Label, property, total)
	}
}

func (se *session) Close(ctx context.Context) error {
	return se.raw.Close(ctx)
}

// compileMatch renders the MATCH and WHERE clauses for a query with the node
// bound to alias n.
func compileMatch(q graph.Query) (string, map[string]any) {
	params := map[string]any{}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("MATCH (n:%s)", q.Node.Label))
	for i, r := range q.Rels {
		alias := fmt.Sprintf("p%d", i)
		arrow := fmt.Sprintf("-[:%s]->", r.Type)
		if r.Direction == graph.Incoming {
			arrow = fmt.Sprintf("<-[:%s]-", r.Type)
		}
		if r.Type == "" {
			arrow = "-[]->"
			if r.Direction == graph.Incoming {
				arrow = "<-[]-"
			}
		}
		b.WriteString(fmt.Sprintf(", (n)%s(%s:%s {%s})", arrow, alias, r.Peer.Label, inlineProps(alias, r.Peer.Props, params)))
	}

	conds := make([]string, 0, len(q.Node.Props)+len(q.Where))
	for k, v := range q.Node.Props {
		name := "n_" + k
		params[name] = v
		conds = append(conds, fmt.Sprintf("n.%s = $%s", k, name))
	}
	for i, c := range q.Where {
		name := fmt.Sprintf("w%d", i)
		params[name] = c.Value
		conds = append(conds, fmt.Sprintf("n.%s %s $%s", c.Property, c.Op, name))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	return b.String(), params
}

// inlineProps renders {k: $alias_k} pattern properties and registers the
// parameter values.
func inlineProps(alias string, props graph.Props, params map[string]any) string {
	parts := make([]string, 0, len(props))
	for k, v := range props {
		name := alias + "_" + k
		params[name] = v
		parts = append(parts, fmt.Sprintf("%s: $%s", k, name))
	}
	return strings.Join(parts, ", ")
}

func sameRelShape(a, b []graph.Rel) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].Direction != b[i].Direction || a[i].Peer.Label != b[i].Peer.Label {
			return false
		}
	}
	return true
}

// nodeRecord pulls the node bound to key out of a driver record and returns
// its property bag.
func nodeRecord(record *drv.Record, key string) (graph.Record, error) {
	v, ok := record.Get(key)
	if !ok {
		return nil, fmt.Errorf("result missing %q binding", key)
	}
	node, ok := v.(drv.Node)
	if !ok {
		return nil, fmt.Errorf("result %q: expected node, got %T", key, v)
	}
	return graph.Record(node.Props), nil
}

// translate maps driver errors onto the contract error taxonomy.
func translate(err error) error {
	var neoErr *db.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == constraintViolated {
		return fmt.Errorf("%s: %w", neoErr.Code, graph.ErrConstraintViolation)
	}
	return err
}
