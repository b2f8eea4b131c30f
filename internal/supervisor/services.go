// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer matches *http.Server lifecycle methods so the service can be
// tested with mocks.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service. It
// translates http.Server's blocking ListenAndServe pattern into suture's
// context-aware Serve pattern.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService creates a new HTTP server service wrapper. The
// shutdownTimeout bounds how long active connections get to drain during
// graceful shutdown.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve implements suture.Service. Returns nil on graceful shutdown;
// http.ErrServerClosed is treated as a normal stop.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// The original context is already canceled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (h *HTTPServerService) String() string {
	return "http-server"
}

// PeriodicService runs a function on a fixed interval until its context is
// canceled. Used for the badger GC loop and the profile refresh sweeper.
// Errors from a single run are logged, not returned, so one bad tick does
// not trip the supervisor's failure accounting.
type PeriodicService struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	logger   zerolog.Logger
}

// NewPeriodicService creates a periodic service wrapper.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewPeriodicService(name string, interval time.Duration, run func(ctx context.Context) error, logger zerolog.Logger) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger.With().Str("component", name).Logger(),
	}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.interval).Msg("Periodic service started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Periodic service stopped")
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := p.run(ctx); err != nil {
				p.logger.Warn().Err(err).Msg("Periodic run failed")
				continue
			}
			p.logger.Debug().Dur("duration", time.Since(start)).Msg("Periodic run completed")
		}
	}
}

// String implements fmt.Stringer; suture uses it to identify the service.
func (p *PeriodicService) String() string {
	return p.name
}
