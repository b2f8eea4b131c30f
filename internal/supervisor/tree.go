// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package supervisor provides suture-based process supervision for Shelfmark.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults matching suture's
// built-in values.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the hierarchical supervisor structure for Shelfmark.
//
// The tree is organized into three layers:
//   - stores: storage maintenance (badger GC)
//   - workers: background jobs (profile refresh sweeper)
//   - api: HTTP server
//
// This structure provides failure isolation: a crashing sweeper does not
// restart the HTTP server, and vice versa.
type Tree struct {
	root    *suture.Supervisor
	stores  *suture.Supervisor
	workers *suture.Supervisor
	api     *suture.Supervisor
	logger  zerolog.Logger
	config  TreeConfig
}

// NewTree creates a supervisor tree with the given configuration.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewTree(logger zerolog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	treeLogger := logger.With().Str("component", "supervisor").Logger()

	rootSpec := suture.Spec{
		EventHook:        eventHook(treeLogger),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Child supervisors use the same failure parameters and inherit the
	// EventHook when added to the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("shelfmark", rootSpec)
	stores := suture.New("store-layer", childSpec)
	workers := suture.New("worker-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(stores)
	root.Add(workers)
	root.Add(api)

	return &Tree{
		root:    root,
		stores:  stores,
		workers: workers,
		api:     api,
		logger:  treeLogger,
		config:  config,
	}
}

// eventHook adapts supervisor lifecycle events to structured log lines.
func eventHook(logger zerolog.Logger) suture.EventHook {
	return func(ev suture.Event) {
		switch ev.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			logger.Error().Interface("event", ev.Map()).Msg(ev.String())
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			logger.Warn().Interface("event", ev.Map()).Msg(ev.String())
		default:
			logger.Info().Interface("event", ev.Map()).Msg(ev.String())
		}
	}
}

// Root returns the root supervisor for direct access if needed.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// AddStoreService adds a service to the store layer supervisor.
// Use this for storage maintenance loops (badger GC).
func (t *Tree) AddStoreService(svc suture.Service) suture.ServiceToken {
	return t.stores.Add(svc)
}

// AddWorkerService adds a service to the worker layer supervisor.
// Use this for background jobs such as the profile refresh sweeper.
func (t *Tree) AddWorkerService(svc suture.Service) suture.ServiceToken {
	return t.workers.Add(svc)
}

// AddAPIService adds a service to the API layer supervisor.
// Use this for the HTTP server.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the supervisor tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine.
// Returns a channel that receives the error (or nil) when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns information about services that failed to
// stop within the configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove removes a service from the tree by its token.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}
