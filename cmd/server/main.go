package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkoroy05/contextmemory/internal/chunk"
	"github.com/arkoroy05/contextmemory/internal/config"
	"github.com/arkoroy05/contextmemory/internal/ctxstore"
	"github.com/arkoroy05/contextmemory/internal/embed"
	"github.com/arkoroy05/contextmemory/internal/enrich"
	"github.com/arkoroy05/contextmemory/internal/graph"
	"github.com/arkoroy05/contextmemory/internal/httpapi"
	"github.com/arkoroy05/contextmemory/internal/ingest"
	"github.com/arkoroy05/contextmemory/internal/obslog"
	"github.com/arkoroy05/contextmemory/internal/obsmetrics"
	"github.com/arkoroy05/contextmemory/internal/persistence/databases"
	"github.com/arkoroy05/contextmemory/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	obslog.Init(cfg.LogLevel, cfg.LogFormat)
	log := obslog.FromContext(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := obslog.InitOTel(ctx, obslog.OTelConfig{
		OTLPEndpoint:   cfg.Obs.OTLP,
		ServiceName:    cfg.Obs.ServiceName,
		ServiceVersion: cfg.Obs.ServiceVersion,
		Environment:    cfg.Obs.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init otel")
	}
	defer shutdownOTel(context.Background())

	db, err := databases.NewManager(ctx, cfg.Databases)
	if err != nil {
		log.Fatal().Err(err).Msg("init database backends")
	}

	metrics := obsmetrics.NewOtelMetrics()
	store := ctxstore.NewMemoryStore(db, metrics)
	graphBuilder := graph.New(cfg)
	embedder := embed.NewClient(cfg.Embedding, cfg.EmbeddingDim)

	var generator enrich.Generator
	if cfg.Anthropic.APIKey != "" {
		generator = enrich.NewAnthropicGenerator(cfg.Anthropic, cfg.Timeouts, http.DefaultClient)
	}
	var enricher *enrich.Enricher
	if generator != nil {
		enricher = enrich.NewEnricher(generator, embedder, cfg, metrics)
	}

	pipeline := ingest.New(store, chunk.New(), enricher, graphBuilder, metrics, chunk.Options{
		MaxTokens:    cfg.MaxChunkTokens,
		TargetTokens: cfg.TargetChunkTokens,
	}, cfg.EmbeddingModelVersion)
	engine := search.New(store, db, embedder, graphBuilder, enricher, metrics, cfg.RRFK)

	handler := httpapi.NewServer(store, pipeline, graphBuilder, engine, cfg.Obs.ServiceVersion)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("context memory backend listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("context memory backend stopped")
}
