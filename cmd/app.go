package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellarworks/cellar-cli/internal/catalog"
	"github.com/cellarworks/cellar-cli/internal/config"
	"github.com/cellarworks/cellar-cli/internal/enrich"
	"github.com/cellarworks/cellar-cli/internal/extract"
	"github.com/cellarworks/cellar-cli/internal/ingest"
	"github.com/cellarworks/cellar-cli/internal/segment"
	"github.com/cellarworks/cellar-cli/pkg/anthropic"
)

// appEnv holds the wired application components shared by the commands.
type appEnv struct {
	store  catalog.Store
	ingest *ingest.Service
	client anthropic.Client // nil when no API key is configured
}

// initApp opens the store and wires the ingestion pipeline. Without an
// API key the pipeline runs fallback-only: the regex extractor serves
// as primary, so ingestion still works offline, just with thin records.
func initApp(ctx context.Context) (*appEnv, error) {
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}

	fallback := extract.NewCheapExtractor()
	var primary extract.Extractor = fallback
	var client anthropic.Client
	if cfg.Anthropic.Key != "" {
		client = anthropic.NewClient(cfg.Anthropic.Key)
		primary = extract.NewClaudeExtractor(client, extract.ClaudeConfig{
			Model:          cfg.Anthropic.Model,
			Timeout:        time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
			RequestsPerMin: cfg.Anthropic.RequestsPerMin,
		})
	} else {
		zap.L().Warn("no anthropic key configured, extraction runs fallback-only")
	}

	pipeline := ingest.NewPipeline(primary, fallback, store)
	scheduler := ingest.NewScheduler(pipeline, store, cfg.Ingest)
	svc := ingest.NewService(segment.New(cfg.Ingest.MinLineLength), scheduler, store)

	return &appEnv{store: store, ingest: svc, client: client}, nil
}

func (e *appEnv) Close() {
	if err := e.store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

// enrichScheduler wires the enrichment sweep; requires an API key.
func (e *appEnv) enrichScheduler() (*enrich.Scheduler, error) {
	if e.client == nil {
		return nil, eris.New("enrichment requires an anthropic API key")
	}
	gen := enrich.NewClaudeGenerator(e.client, enrich.Config{
		Model:          cfg.Anthropic.EnrichModel,
		RequestsPerMin: cfg.Anthropic.RequestsPerMin,
	})
	return enrich.NewScheduler(gen, e.store, cfg.Enrich), nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (catalog.Store, error) {
	switch sc.Driver {
	case "sqlite", "":
		return catalog.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return catalog.NewPostgres(ctx, sc.DatabaseURL, &catalog.PoolConfig{
			MaxConns: sc.MaxConns,
			MinConns: sc.MinConns,
		})
	case "memory":
		return catalog.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", sc.Driver)
	}
}
