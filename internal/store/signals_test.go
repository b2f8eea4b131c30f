// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSignalsKNN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/vector/knn" {
			t.Errorf("request path = %q, want /v1/vector/knn", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":[
			{"work_id":7,"similarity":0.92},
			{"work_id":8,"similarity":0.85}
		]}`))
	}))
	defer srv.Close()

	client := NewSignalsClient(srv.URL, time.Second, zerolog.Nop())
	hits, err := client.KNN(context.Background(), []float64{0.1, 0.2}, 10, map[int64]struct{}{3: {}})
	if err != nil {
		t.Fatalf("KNN() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].WorkID != 7 || hits[0].Similarity != 0.92 {
		t.Errorf("hits[0] = %+v, want {7 0.92}", hits[0])
	}
}

func TestSignalsNeighborsAndProximity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/graph/neighbors":
			if got := r.URL.Query().Get("max_hops"); got != "2" {
				t.Errorf("max_hops = %q, want 2", got)
			}
			_, _ = w.Write([]byte(`{"work_ids":[4,5]}`))
		case "/v1/graph/proximity":
			_, _ = w.Write([]byte(`{"scores":[{"work_id":4,"score":0.7}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSignalsClient(srv.URL, time.Second, zerolog.Nop())

	neighbors, err := client.Neighbors(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("Neighbors() error = %v", err)
	}
	if len(neighbors) != 2 || neighbors[0] != 4 {
		t.Errorf("neighbors = %v, want [4 5]", neighbors)
	}

	prox, err := client.Proximity(context.Background(), 9, []int64{4})
	if err != nil {
		t.Fatalf("Proximity() error = %v", err)
	}
	if prox[4] != 0.7 {
		t.Errorf("prox[4] = %v, want 0.7", prox[4])
	}
}

func TestSignalsCollaborativeLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "OL1W" {
			t.Errorf("key = %q, want OL1W", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/collaborative/also-read":
			_, _ = w.Write([]byte(`{"entries":[{"catalog_key":"OL2W","overlap_count":17}]}`))
		case "/v1/collaborative/list-mates":
			_, _ = w.Write([]byte(`{"entries":[{"catalog_key":"OL3W","shared_list_count":4}]}`))
		case "/v1/collaborative/cooccurrence":
			_, _ = w.Write([]byte(`{"entries":[{"catalog_key":"OL4W","jaccard":0.31}]}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewSignalsClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	coRead, err := client.AlsoRead(ctx, "OL1W", 10)
	if err != nil {
		t.Fatalf("AlsoRead() error = %v", err)
	}
	if len(coRead) != 1 || coRead[0].CatalogKey != "OL2W" || coRead[0].OverlapCount != 17 {
		t.Errorf("coRead = %+v, want [{OL2W 17}]", coRead)
	}

	mates, err := client.ListMates(ctx, "OL1W", 10)
	if err != nil {
		t.Fatalf("ListMates() error = %v", err)
	}
	if len(mates) != 1 || mates[0].SharedListCount != 4 {
		t.Errorf("mates = %+v, want [{OL3W 4}]", mates)
	}

	cooc, err := client.SimilarByCooccurrence(ctx, "OL1W", 10)
	if err != nil {
		t.Fatalf("SimilarByCooccurrence() error = %v", err)
	}
	if len(cooc) != 1 || cooc[0].Jaccard != 0.31 {
		t.Errorf("cooc = %+v, want [{OL4W 0.31}]", cooc)
	}
}

func TestSignalsBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewSignalsClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := client.AlsoRead(ctx, "OL1W", 10); err == nil {
			t.Fatalf("AlsoRead() call %d error = nil, want failure", i)
		}
	}
	if requests != 5 {
		t.Fatalf("upstream requests = %d, want 5 before breaker opens", requests)
	}

	// Breaker is open now: calls fail fast without touching the upstream.
	if _, err := client.AlsoRead(ctx, "OL1W", 10); err == nil {
		t.Fatal("AlsoRead() with open breaker error = nil, want failure")
	}
	if requests != 5 {
		t.Errorf("upstream requests = %d, want 5 (open breaker must not call out)", requests)
	}
}

func TestSignalsBreakerDoesNotAffectGraphLookups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/graph/neighbors" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"work_ids":[1]}`))
			return
		}
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewSignalsClient(srv.URL, time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, _ = client.AlsoRead(ctx, "OL1W", 10)
	}

	neighbors, err := client.Neighbors(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Neighbors() error = %v, want success with open collaborative breaker", err)
	}
	if len(neighbors) != 1 {
		t.Errorf("neighbors = %v, want [1]", neighbors)
	}
}
