package cli

import (
	"context"

	"github.com/mnemora/mnemora/engine/basestore"
	"github.com/mnemora/mnemora/engine/cache"
	"github.com/mnemora/mnemora/engine/docstore"
	"github.com/mnemora/mnemora/engine/hotstore"
	"github.com/mnemora/mnemora/engine/tier"
	"github.com/mnemora/mnemora/pkg/config"
	"github.com/mnemora/mnemora/pkg/logger"
)

// engine bundles the wired storage stack for a command's lifetime.
type engine struct {
	coord *tier.Coordinator
	hot   *hotstore.Store
	docs  docstore.Store
}

func (e *engine) close(ctx context.Context) {
	log := logger.FromContext(ctx)
	if err := e.coord.Close(ctx); err != nil {
		log.Warn("coordinator shutdown failed", "error", err)
	}
	if err := e.hot.Close(); err != nil {
		log.Warn("hot store shutdown failed", "error", err)
	}
	if err := e.docs.Close(); err != nil {
		log.Warn("document store shutdown failed", "error", err)
	}
}

// buildEngine connects to Redis and Postgres and assembles the tiered
// coordinator from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	client, err := hotstore.NewClient(ctx, &hotstore.ConnConfig{
		URL:          cfg.Redis.URL,
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}
	hot, err := hotstore.NewStore(client, hotstore.Options{
		Namespace:       cfg.Tier.Namespace,
		DefaultTTL:      cfg.Redis.DefaultTTL,
		OpTimeout:       cfg.Redis.OpTimeout,
		MaxMemory:       cfg.Redis.MaxMemory,
		MaxMemoryPolicy: cfg.Redis.MaxMemoryPolicy,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	if err := hot.Connect(ctx); err != nil {
		client.Close()
		return nil, err
	}
	docs, err := docstore.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		hot.Close()
		return nil, err
	}
	base := basestore.New(docs, "memory_items")
	coord, err := tier.New(ctx, tier.Config{
		Namespace:            cfg.Tier.Namespace,
		MaxCacheSize:         cfg.Cache.MaxSize,
		EvictionPolicy:       cache.PolicyKind(cfg.Cache.EvictionPolicy),
		DefaultTTL:           cfg.Cache.DefaultTTL,
		CleanupInterval:      cfg.Cache.CleanupInterval,
		HotTierMaxAge:        cfg.Tier.HotTierMaxAge,
		WarmTierMaxAge:       cfg.Tier.WarmTierMaxAge,
		MinAccessCountHot:    cfg.Tier.MinAccessCountHot,
		MinAccessCountWarm:   cfg.Tier.MinAccessCountWarm,
		EnableCompression:    cfg.Tier.EnableCompression,
		CompressionThreshold: cfg.Tier.CompressionThreshold,
		MigrationInterval:    cfg.Tier.MigrationInterval,
		WarmPageSize:         cfg.Tier.WarmPageSize,
		MigrationConcurrency: cfg.Tier.MigrationConcurrency,
	}, tier.Deps{Hot: hot, Docs: docs, Base: base})
	if err != nil {
		hot.Close()
		docs.Close()
		return nil, err
	}
	return &engine{coord: coord, hot: hot, docs: docs}, nil
}
