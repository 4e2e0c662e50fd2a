package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Graph store
	GraphBackend  string
	Neo4jURI      string
	Neo4jDatabase string
	Neo4jUser     string
	Neo4jPassword string

	// Session pool
	PoolMin int
	PoolMax int

	// Entity resolution
	ResolveTimeout time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	return &Config{
		GraphBackend:  getEnv("GRAPH_BACKEND", "neo4j"),
		Neo4jURI:      getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jDatabase: getEnv("NEO4J_DATABASE", "neo4j"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),

		PoolMin: getEnvInt("POOL_MIN", 10),
		PoolMax: getEnvInt("POOL_MAX", 100),

		ResolveTimeout: getEnvDuration("RESOLVE_TIMEOUT", 30*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "budget"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "import_transactions"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	validBackends := []string{"neo4j", "memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.GraphBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid graph backend '%s': must be one of %v", c.GraphBackend, validBackends))
	}

	if c.GraphBackend == "neo4j" {
		if c.Neo4jURI == "" {
			errors = append(errors, "Neo4j URI cannot be empty when using neo4j backend")
		} else if parsedURL, err := url.Parse(c.Neo4jURI); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Neo4j URI '%s': %v", c.Neo4jURI, err))
		} else {
			switch parsedURL.Scheme {
			case "neo4j", "neo4j+s", "neo4j+ssc", "bolt", "bolt+s", "bolt+ssc":
			default:
				errors = append(errors, fmt.Sprintf("invalid Neo4j URI scheme '%s'", parsedURL.Scheme))
			}
		}
		if c.Neo4jDatabase == "" {
			errors = append(errors, "Neo4j database cannot be empty when using neo4j backend")
		}
	}

	if c.PoolMin < 0 {
		errors = append(errors, fmt.Sprintf("invalid pool minimum %d: must not be negative", c.PoolMin))
	}
	if c.PoolMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid pool maximum %d: must be at least 1", c.PoolMax))
	}
	if c.PoolMax >= 1 && c.PoolMin > c.PoolMax {
		errors = append(errors, fmt.Sprintf("invalid pool bounds: minimum %d exceeds maximum %d", c.PoolMin, c.PoolMax))
	}

	if c.ResolveTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid resolve timeout %v: must be at least 1 second", c.ResolveTimeout))
	} else if c.ResolveTimeout > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid resolve timeout %v: must be at most 1 hour", c.ResolveTimeout))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
