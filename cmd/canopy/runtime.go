package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tinytelemetry/canopy/internal/charts"
	"github.com/tinytelemetry/canopy/internal/dashboard"
	"github.com/tinytelemetry/canopy/internal/duckdb"
	"github.com/tinytelemetry/canopy/internal/model"
	"github.com/tinytelemetry/canopy/internal/redisstore"
	"github.com/tinytelemetry/canopy/internal/scheduler"
	"github.com/tinytelemetry/canopy/internal/templates"
	"github.com/tinytelemetry/canopy/internal/visibility"
	"go.uber.org/zap"
)

// runtime is the wired engine shared by serve and tui.
type runtime struct {
	store  *duckdb.Store
	sched  *scheduler.Scheduler
	repo   *templates.Repository
	vis    *visibility.Set
	cache  *charts.Cache
	engine *dashboard.Engine
	kv     *redisstore.Store
}

// openRepository opens the template database for commands that only need
// CRUD.
func openRepository(cfg appConfig, logger *zap.Logger) (*duckdb.Store, *templates.Repository, error) {
	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	return store, templates.NewRepository(store, templates.WithLogger(logger)), nil
}

func openRuntime(ctx context.Context, cfg appConfig, logger *zap.Logger) (*runtime, error) {
	store, repo, err := openRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt := &runtime{store: store, repo: repo}

	if cfg.BootstrapDefaults {
		if _, err := repo.BootstrapDefaults(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.vis, err = rt.openVisibility(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	policy, err := charts.ParseFailurePolicy(cfg.CacheFailurePolicy)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.sched = scheduler.New(logger)
	rt.cache, err = charts.New(charts.Options{
		Fetcher:     charts.NewHTTPFetcher(cfg.ChartBaseURL, cfg.FetchTimeout),
		Policy:      policy,
		SkipOverlap: cfg.SkipOverlappingRounds,
		Scheduler:   rt.sched,
		Logger:      logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.engine, err = dashboard.New(dashboard.Options{
		Repository:      repo,
		Visibility:      rt.vis,
		Cache:           rt.cache,
		RefreshInterval: cfg.RefreshInterval,
		Logger:          logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) openVisibility(ctx context.Context, cfg appConfig, logger *zap.Logger) (*visibility.Set, error) {
	var kv model.KVStore
	switch cfg.VisibilityBackend {
	case backendMemory:
		return visibility.New(), nil
	case backendRedis:
		store, err := redisstore.New(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RedisInstance)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}
		rt.kv = store
		kv = store
	default:
		kv = rt.store
	}
	return visibility.Load(ctx, kv, logger)
}

// Close stops polling and releases storage.
func (rt *runtime) Close() error {
	var errs []error
	if rt.sched != nil {
		rt.sched.Close()
	}
	if rt.kv != nil {
		errs = append(errs, rt.kv.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}
