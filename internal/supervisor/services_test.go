// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package supervisor

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type mockServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	release     chan struct{}
	shutdowns   atomic.Int32
}

func newMockServer() *mockServer {
	return &mockServer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *mockServer) ListenAndServe() error {
	close(m.started)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return nil
}

func (m *mockServer) Shutdown(_ context.Context) error {
	m.shutdowns.Add(1)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	srv := newMockServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got := srv.shutdowns.Load(); got != 1 {
		t.Errorf("shutdown calls = %d, want 1", got)
	}
}

func TestHTTPServerServiceStartFailure(t *testing.T) {
	srv := newMockServer()
	srv.listenErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(srv, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, srv.listenErr) {
		t.Errorf("Serve() = %v, want wrapped listen error", err)
	}
}

func TestPeriodicServiceRunsAndStops(t *testing.T) {
	var runs atomic.Int32
	svc := NewPeriodicService("test-job", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	deadline := time.After(time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("periodic service never ran twice")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPeriodicServiceSurvivesRunErrors(t *testing.T) {
	var runs atomic.Int32
	svc := NewPeriodicService("flaky-job", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("transient")
	}, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Serve(ctx) }()

	deadline := time.After(time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("periodic service stopped after an error")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTreeServeBackground(t *testing.T) {
	tree := NewTree(zerolog.New(io.Discard), DefaultTreeConfig())

	var runs atomic.Int32
	tree.AddWorkerService(NewPeriodicService("bg-job", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, zerolog.New(io.Discard)))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(time.Second)
	for runs.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker service never ran under the tree")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree stopped with %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}
