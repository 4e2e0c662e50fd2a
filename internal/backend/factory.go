// Package backend selects and constructs the graph store named by the
// configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/mlaanderson/budget-v3/internal/config"
	"github.com/mlaanderson/budget-v3/internal/graph"
	"github.com/mlaanderson/budget-v3/internal/graph/memory"
	"github.com/mlaanderson/budget-v3/internal/graph/neo4j"
	"github.com/mlaanderson/budget-v3/internal/log"
)

// NewStore creates the configured graph store. The memory backend is meant
// for tests and local runs; neo4j is the production store.
func NewStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (graph.Store, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentGraph)

	switch cfg.GraphBackend {
	case "neo4j":
		store, err := neo4j.New(ctx, neo4j.Config{
			URI:      cfg.Neo4jURI,
			Database: cfg.Neo4jDatabase,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize neo4j store: %w", err)
		}
		logger.InfoContext(ctx, "initialized neo4j store",
			"uri", cfg.Neo4jURI,
			"database", cfg.Neo4jDatabase)
		return store, nil
	case "memory":
		logger.InfoContext(ctx, "initialized memory store")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported graph backend: %s", cfg.GraphBackend)
	}
}
