package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/crmdex/internal/cache"
	"github.com/kailas-cloud/crmdex/internal/config"
	"github.com/kailas-cloud/crmdex/internal/domain"
	"github.com/kailas-cloud/crmdex/internal/embedding"
	"github.com/kailas-cloud/crmdex/internal/engine/qdrant"
	"github.com/kailas-cloud/crmdex/internal/engine/typesense"
	logpkg "github.com/kailas-cloud/crmdex/internal/logger"
	"github.com/kailas-cloud/crmdex/internal/metrics"
	"github.com/kailas-cloud/crmdex/internal/registry"
	mongostore "github.com/kailas-cloud/crmdex/internal/store/mongo"
	chiTransport "github.com/kailas-cloud/crmdex/internal/transport/chi"
	"github.com/kailas-cloud/crmdex/internal/usecase/indexer"
	"github.com/kailas-cloud/crmdex/internal/usecase/search"
	"github.com/kailas-cloud/crmdex/internal/version"
)

func main() {
	backfillTenant := flag.String("backfill", "", "re-index all documents for the given tenant, then exit")
	flag.Parse()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting crmdex",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx := context.Background()

	store, err := mongostore.New(ctx, mongostore.Config{
		URI:              cfg.Mongo.URI,
		Database:         cfg.Mongo.Database,
		ConfigDatabase:   cfg.Mongo.ConfigDatabase,
		ConnectTimeout:   time.Duration(cfg.Mongo.ConnectTimeout) * time.Second,
		BackfillPageSize: cfg.Indexer.BackfillPageSize,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to primary store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()
	logger.Info("Connected to primary store")

	metrics.Register()

	textEngine := typesense.New(typesense.Config{
		URL:     cfg.Typesense.URL,
		APIKey:  cfg.Typesense.APIKey,
		Timeout: time.Duration(cfg.Typesense.TimeoutSec) * time.Second,
	}, logger)

	vectorEngine := qdrant.New(qdrant.Config{
		URL:     cfg.Qdrant.URL,
		APIKey:  cfg.Qdrant.APIKey,
		Timeout: time.Duration(cfg.Qdrant.TimeoutSec) * time.Second,
	}, logger)

	resolver := embedding.NewResolver(domain.EmbeddingSettings{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
	}, logger)

	deps := []chiTransport.Dependency{
		{Name: "mongo", Pinger: store},
		{Name: "typesense", Pinger: textEngine},
		{Name: "qdrant", Pinger: vectorEngine},
	}

	if len(cfg.Cache.Addrs) > 0 {
		embCache, err := cache.New(cache.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache", zap.Error(err))
		}
		defer embCache.Close()
		resolver = resolver.WithCache(embCache)
		deps = append(deps, chiTransport.Dependency{Name: "cache", Pinger: embCache})
		logger.Info("Embedding cache enabled", zap.Strings("addrs", cfg.Cache.Addrs))
	}

	reg := registry.New(store, logger)

	searchSvc := search.New(reg, textEngine, vectorEngine, resolver, logger).
		WithDefaults(search.Defaults{
			SemanticWeight: cfg.Search.SemanticWeight,
			TextWeight:     cfg.Search.TextWeight,
			Limit:          cfg.Search.DefaultLimit,
		})

	idx := indexer.New(&changeSource{store}, reg, textEngine, vectorEngine, resolver, logger).
		WithSettleDelay(time.Duration(cfg.Indexer.SettleDelayMs) * time.Millisecond)

	if *backfillTenant != "" {
		logger.Info("Running backfill", zap.String("tenant", *backfillTenant))
		if err := idx.Backfill(ctx, *backfillTenant); err != nil {
			logger.Fatal("Backfill failed", zap.Error(err))
		}
		logger.Info("Backfill complete")
		return
	}

	if err := idx.Start(ctx); err != nil {
		logger.Fatal("Failed to start indexer", zap.Error(err))
	}

	router := chiTransport.NewRouter(searchSvc, logger, cfg.Auth.APIKeys, deps...)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting ops HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	idx.Stop(shutdownCtx)

	logger.Info("Stopped gracefully")
}

// changeSource adapts the concrete mongo change feed to the indexer's
// Feed interface.
type changeSource struct {
	*mongostore.Store
}

func (s *changeSource) Watch(ctx context.Context, collection string) (indexer.Feed, error) {
	feed, err := s.Store.Watch(ctx, collection)
	if err != nil {
		return nil, err
	}
	return feed, nil
}
