// Command server runs the colloquy conversational-agent backend.
//
// Configuration is layered: built-in defaults, a YAML config file
// (discovered or passed via -config), then COLLOQUY_* environment
// variable overrides. See pkg/config for the full set.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averbach/colloquy/pkg/billing"
	"github.com/averbach/colloquy/pkg/config"
	"github.com/averbach/colloquy/pkg/engine"
	"github.com/averbach/colloquy/pkg/pipeline"
	"github.com/averbach/colloquy/pkg/prompt"
	"github.com/averbach/colloquy/pkg/provider/chatcompat"
	"github.com/averbach/colloquy/pkg/record"
	recordmemory "github.com/averbach/colloquy/pkg/record/memory"
	recordpg "github.com/averbach/colloquy/pkg/record/postgres"
	"github.com/averbach/colloquy/pkg/tools/directory"
	"github.com/averbach/colloquy/pkg/tools/semantic"
	transporthttp "github.com/averbach/colloquy/pkg/transport/http"
)

// healthChecks reports healthy only when every backing store does.
type healthChecks []func(context.Context) error

func (h healthChecks) HealthCheck(ctx context.Context) error {
	for _, check := range h {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	prov := chatcompat.New(chatcompat.Options{
		Name:    cfg.Backend.Provider,
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	})
	defer prov.Close()

	// One pgx pool backs both the request recorder and the directory
	// search store when postgres storage is configured.
	var (
		recorder record.Recorder
		dirStore directory.Store
	)
	switch cfg.Storage.Type {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("parsing postgres dsn: %w", err)
		}
		poolCfg.MaxConns = cfg.Storage.Postgres.MaxConns
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("creating postgres pool: %w", err)
		}
		defer pool.Close()

		pgRecorder, err := recordpg.NewWithPool(ctx, pool, cfg.Storage.Postgres.MigrateOnStart)
		if err != nil {
			return fmt.Errorf("creating postgres recorder: %w", err)
		}
		recorder = pgRecorder
		dirStore = directory.NewPGStore(pool)
		logger.Info("storage enabled", "type", "postgres", "migrate_on_start", cfg.Storage.Postgres.MigrateOnStart)
	default:
		recorder = recordmemory.New(cfg.Storage.MaxSize)
		logger.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
	}
	defer recorder.Close()

	// Structured search needs both the catalog and a postgres store;
	// without either the capability stays off for every tenant.
	var catalog *directory.Catalog
	if dirStore != nil {
		catalog, err = directory.LoadCatalog(cfg.Search.Directory.CatalogPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("no collection catalog, structured search disabled", "path", cfg.Search.Directory.CatalogPath)
			} else {
				return fmt.Errorf("loading collection catalog: %w", err)
			}
		}
	}

	table, err := billing.LoadPriceTable(cfg.Pricing.TablePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Requests priced from the table will carry failed zero-cost
			// breakdowns until one is provided.
			logger.Warn("no price table, computed cost attribution will fail", "path", cfg.Pricing.TablePath)
		} else {
			return fmt.Errorf("loading price table: %w", err)
		}
	} else {
		logger.Info("price table loaded", "version", table.Version())
	}

	var (
		embedder semantic.Embedder
		vectors  semantic.VectorBackend
	)
	if cfg.Search.Semantic.QdrantURL != "" && cfg.Search.Semantic.EmbeddingURL != "" {
		embedder = semantic.NewOpenAIEmbeddingClient(cfg.Search.Semantic.EmbeddingURL, cfg.Search.Semantic.EmbeddingModel)
		vectors = semantic.NewQdrant(cfg.Search.Semantic.QdrantURL)
		logger.Info("semantic search enabled", "collection", cfg.Search.Semantic.Collection)
	}

	pipe := pipeline.New(pipeline.Options{
		Resolver:   config.NewResolver(cfg),
		Assembler:  prompt.New(cfg),
		Engine:     engine.New(prov, cfg.Engine.MaxToolRounds),
		Attributor: billing.NewAttributor(table),
		Recorder:   recorder,

		DirectoryStore:      dirStore,
		Catalog:             catalog,
		DirectoryMaxResults: cfg.Search.Directory.MaxResults,

		Embedder:           embedder,
		VectorBackend:      vectors,
		SemanticCollection: cfg.Search.Semantic.Collection,
		SemanticMaxResults: cfg.Search.Semantic.MaxResults,
	})

	health := healthChecks{recorder.HealthCheck}
	if dirStore != nil {
		health = append(health, dirStore.HealthCheck)
	}
	adapter := transporthttp.NewAdapter(pipe, health, transporthttp.DefaultConfig())

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(30*time.Second),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithLogger(logger),
	)

	logger.Info("colloquy starting",
		"port", cfg.Server.Port,
		"backend", cfg.Backend.BaseURL,
		"provider", cfg.Backend.Provider,
		"default_model", cfg.Backend.DefaultModel,
	)
	return srv.ListenAndServe()
}
