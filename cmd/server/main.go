// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Command server runs the Shelfmark recommendation API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark/internal/api"
	"github.com/shelfmark/shelfmark/internal/cache"
	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/logging"
	"github.com/shelfmark/shelfmark/internal/recommend/candidatecache"
	"github.com/shelfmark/shelfmark/internal/recommend/candidates"
	"github.com/shelfmark/shelfmark/internal/recommend/profile"
	"github.com/shelfmark/shelfmark/internal/recommend/rerank"
	"github.com/shelfmark/shelfmark/internal/store"
	"github.com/shelfmark/shelfmark/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Int("categories", len(cfg.Categories)).
		Msg("Starting Shelfmark")

	db, err := openBadger(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Store close failed")
		}
	}()

	// Storage tiers.
	profiles := store.NewBadgerProfileStore(db)
	durableCache := cache.NewBadgerStore(db)
	candCache := candidatecache.New(cfg.Recommend.Cache, durableCache, logger)

	// Upstream clients.
	catalog := store.NewCatalogClient(cfg.Upstream.CatalogURL, cfg.Upstream.Timeout)
	signals := store.NewSignalsClient(cfg.Upstream.SignalsURL, cfg.Upstream.Timeout, logger)
	userState := store.NewUserStateClient(cfg.Upstream.UserStateURL, cfg.Upstream.Timeout)

	// Recommendation pipeline.
	builder := profile.NewBuilder(userState, catalog, profiles, cfg.Recommend.Profile, logger)
	generator := candidates.NewGenerator(
		signals, signals, signals,
		catalog, userState, builder, candCache,
		cfg.Categories, cfg.Recommend.Generator, logger,
	)
	reranker := rerank.NewReranker(catalog, catalog, signals, userState, cfg.Recommend.Rerank, logger)

	handler := api.NewHandler(generator, reranker, builder, cfg.Categories, cfg.Recommend.Rerank.PoolFactor, logger)
	router := api.NewRouter(handler, cfg.Server)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.Timeout))

	tree.AddStoreService(supervisor.NewPeriodicService("badger-gc", cfg.Store.GCInterval, func(ctx context.Context) error {
		return durableCache.RunGC(cfg.Store.GCDiscardRatio)
	}, logger))

	if cfg.Sweep.Enabled {
		sweeper := profile.NewSweeper(builder, profiles, generator, logger)
		tree.AddWorkerService(supervisor.NewPeriodicService("profile-sweeper", cfg.Sweep.Interval, sweeper.Sweep, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)

	logger.Info().Str("addr", httpServer.Addr).Msg("Shelfmark ready")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	case <-time.After(supervisor.DefaultTreeConfig().ShutdownTimeout + 5*time.Second):
		logger.Warn().Msg("Supervisor tree did not stop in time")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range report {
			logger.Warn().
				Str("service", svc.Name).
				Msg("Service failed to stop before timeout")
		}
	}

	logger.Info().Msg("Shelfmark stopped")
	return nil
}

// openBadger opens the embedded store per configuration. Badger's own
// logger is silenced; store health is visible through the GC service logs.
func openBadger(cfg config.StoreConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts.Logger = nil
	return badger.Open(opts)
}
