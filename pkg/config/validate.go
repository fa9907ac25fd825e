package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend.BaseURL == "" {
		errs = append(errs, fmt.Errorf("backend.base_url is required"))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	if c.Engine.MaxToolRounds <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_tool_rounds must be > 0, got %d", c.Engine.MaxToolRounds))
	}

	if c.Tenants.AgentsDir == "" {
		errs = append(errs, fmt.Errorf("tenants.agents_dir is required"))
	}

	// Semantic search is optional, but a Qdrant URL without an embedding
	// endpoint (or vice versa) cannot work.
	sem := c.Search.Semantic
	if (sem.QdrantURL == "") != (sem.EmbeddingURL == "") {
		errs = append(errs, fmt.Errorf("search.semantic.qdrant_url and search.semantic.embedding_url must be set together"))
	}

	return errors.Join(errs...)
}
