// Package config provides unified configuration for the colloquy backend.
//
// Process configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (COLLOQUY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// Tenant configuration (one agent definition per account/agent pair) is
// deliberately NOT part of this layered load: it is re-read from disk on
// every request by the Resolver so that edits take effect without a restart.
package config

import "time"

// Config holds all process-level configuration for the colloquy backend.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Search        SearchConfig        `yaml:"search"`
	Pricing       PricingConfig       `yaml:"pricing"`
	Tenants       TenantsConfig       `yaml:"tenants"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 300s (covers long streams)
}

// BackendConfig holds generative-model backend settings. The backend speaks
// the Chat Completions protocol; Provider is the identifier used for price
// table lookups and diagnostics.
type BackendConfig struct {
	Provider     string        `yaml:"provider"`      // e.g. "openrouter", default: "openrouter"
	BaseURL      string        `yaml:"base_url"`      // required
	APIKey       string        `yaml:"api_key"`       // optional
	APIKeyFile   string        `yaml:"api_key_file"`  // _file variant for api_key
	DefaultModel string        `yaml:"default_model"` // used when an agent omits model
	Timeout      time.Duration `yaml:"timeout"`       // default: 120s
}

// EngineConfig holds execution-engine settings.
type EngineConfig struct {
	MaxToolRounds int `yaml:"max_tool_rounds"` // default: 8
}

// StorageConfig holds request-record persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory recorder, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings, shared by the request
// recorder and the directory search store.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// SearchConfig holds settings for the two search capability families.
type SearchConfig struct {
	Directory DirectoryConfig `yaml:"directory"`
	Semantic  SemanticConfig  `yaml:"semantic"`
}

// DirectoryConfig holds structured-search settings. The catalog file
// declares every collection schema available to any tenant.
type DirectoryConfig struct {
	CatalogPath string `yaml:"catalog_path"` // default: "collections.yaml"
	MaxResults  int    `yaml:"max_results"`  // default: 10
}

// SemanticConfig holds semantic-search settings: the Qdrant endpoint and
// the embedding service used to vectorize queries.
type SemanticConfig struct {
	QdrantURL      string `yaml:"qdrant_url"`
	Collection     string `yaml:"collection"`
	EmbeddingURL   string `yaml:"embedding_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	MaxResults     int    `yaml:"max_results"` // default: 5
}

// PricingConfig holds the price table location.
type PricingConfig struct {
	TablePath string `yaml:"table_path"` // default: "prices.yaml"
}

// TenantsConfig holds the on-disk layout of per-tenant configuration.
type TenantsConfig struct {
	// AgentsDir contains one YAML file per agent at
	// <agents_dir>/<account>/<agent>.yaml.
	AgentsDir string `yaml:"agents_dir"` // default: "agents"

	// ModulesDir contains the named instruction module files referenced
	// by agent configurations.
	ModulesDir string `yaml:"modules_dir"` // default: "modules"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 300 * time.Second,
		},
		Backend: BackendConfig{
			Provider: "openrouter",
			Timeout:  120 * time.Second,
		},
		Engine: EngineConfig{
			MaxToolRounds: 8,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Search: SearchConfig{
			Directory: DirectoryConfig{
				CatalogPath: "collections.yaml",
				MaxResults:  10,
			},
			Semantic: SemanticConfig{
				MaxResults: 5,
			},
		},
		Pricing: PricingConfig{
			TablePath: "prices.yaml",
		},
		Tenants: TenantsConfig{
			AgentsDir:  "agents",
			ModulesDir: "modules",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
