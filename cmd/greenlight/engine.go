package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/iffystrayer/greenlight/internal/artifact"
	"github.com/iffystrayer/greenlight/internal/checkpoint"
	"github.com/iffystrayer/greenlight/internal/config"
	"github.com/iffystrayer/greenlight/internal/consistency"
	"github.com/iffystrayer/greenlight/internal/database"
	"github.com/iffystrayer/greenlight/internal/gate"
	"github.com/iffystrayer/greenlight/internal/llm"
	"github.com/iffystrayer/greenlight/internal/llm/providers"
	"github.com/iffystrayer/greenlight/internal/observability"
	"github.com/iffystrayer/greenlight/internal/orchestrator"
	"github.com/iffystrayer/greenlight/internal/quality"
)

// engine bundles the wired-up components behind each CLI command.
type engine struct {
	cfg  *config.Config
	db   *database.DB
	dao  database.SessionDAO
	orch *orchestrator.Orchestrator
}

// openEngine loads configuration, opens and migrates the database, builds the
// LLM providers, and assembles the orchestrator.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	handler := logHandler(cfg)
	slog.SetDefault(slog.New(handler))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbCfg := database.DefaultConfig(cfg.Database.Path)
	dbCfg.MaxOpenConns = cfg.Database.MaxConnections
	dbCfg.BusyTimeout = cfg.Database.BusyTimeout
	db, err := database.OpenWithConfig(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := database.NewMigrator(db).Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	dao := database.NewSessionDAO(db)
	store := checkpoint.NewSQLiteStore(dao)

	evalProvider, err := providers.NewProvider(cfg.LLM.Evaluator)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build evaluator provider: %w", err)
	}
	compProvider, err := providers.NewProvider(cfg.LLM.Comparator)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build comparator provider: %w", err)
	}

	g, err := buildGate(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Sessions: dao,
		Store:    store,
		Quality: quality.NewLoop(
			llm.NewQualityEvaluator(evalProvider, cfg.LLM.Evaluator.Timeout),
			quality.Policy{
				Threshold:   cfg.Quality.Threshold,
				MaxAttempts: cfg.Quality.MaxAttempts,
			}),
		Gate: g,
		Checker: consistency.NewChecker(
			llm.NewStageComparator(compProvider, cfg.LLM.Comparator.Timeout)),
		Aggregator:       artifact.NewJSONAggregator(),
		LogHandler:       handler,
		OperationTimeout: cfg.Core.OperationTimeout,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &engine{cfg: cfg, db: db, dao: dao, orch: orch}, nil
}

func (e *engine) close() {
	e.orch.Close()
	e.db.Close()
}

// buildGate returns the gate over either the built-in ruleset or the one
// configured at gate.ruleset_path.
func buildGate(cfg *config.Config) (*gate.Gate, error) {
	if cfg.Gate.RulesetPath == "" {
		return gate.NewDefault(), nil
	}
	data, err := os.ReadFile(cfg.Gate.RulesetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset %s: %w", cfg.Gate.RulesetPath, err)
	}
	rules, err := gate.ParseRuleset(data)
	if err != nil {
		return nil, err
	}
	return gate.New(rules), nil
}

func logHandler(cfg *config.Config) slog.Handler {
	level := observability.ParseLevel(cfg.Logging.Level)
	if verbose || cfg.Core.Debug {
		level = slog.LevelDebug
	}
	if cfg.Logging.Format == "json" {
		return observability.NewJSONHandler(os.Stderr, level)
	}
	return observability.NewTextHandler(os.Stderr, level)
}
