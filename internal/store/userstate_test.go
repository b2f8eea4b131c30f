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
)

func TestUserStateRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/users/7/read":
			_, _ = w.Write([]byte(`{"work_ids":[1,2,3]}`))
		case "/v1/users/7/blocks":
			_, _ = w.Write([]byte(`{"work_ids":[9],"author_ids":["a1"]}`))
		case "/v1/users/7/events":
			_, _ = w.Write([]byte(`{"events":[
				{"user_id":7,"work_id":1,"shelf":"read","rating":5,"finished_at":"2026-06-01T00:00:00Z"}
			]}`))
		case "/v1/users/7/latest-event":
			_, _ = w.Write([]byte(`{"latest_event_at":"2026-07-15T12:00:00Z"}`))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewUserStateClient(srv.URL, time.Second)
	ctx := context.Background()

	read, err := client.GetReadWorkIDs(ctx, 7)
	if err != nil {
		t.Fatalf("GetReadWorkIDs() error = %v", err)
	}
	if len(read) != 3 {
		t.Errorf("read = %v, want 3 IDs", read)
	}

	blocks, err := client.GetBlocks(ctx, 7)
	if err != nil {
		t.Fatalf("GetBlocks() error = %v", err)
	}
	if len(blocks.WorkIDs) != 1 || len(blocks.AuthorIDs) != 1 {
		t.Errorf("blocks = %+v, want one work and one author", blocks)
	}

	events, err := client.GetReadingEvents(ctx, 7)
	if err != nil {
		t.Fatalf("GetReadingEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].WorkID != 1 {
		t.Fatalf("events = %+v, want one event for work 1", events)
	}
	if events[0].Rating == nil || *events[0].Rating != 5 {
		t.Errorf("events[0].Rating = %v, want 5", events[0].Rating)
	}

	latest, err := client.LatestEventTime(ctx, 7)
	if err != nil {
		t.Fatalf("LatestEventTime() error = %v", err)
	}
	want := time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)
	if !latest.Equal(want) {
		t.Errorf("latest = %v, want %v", latest, want)
	}
}

func TestUserStateGetWorkEngagement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/7/engagement" {
			t.Errorf("request path = %q, want /v1/users/7/engagement", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"engagement":[
			{"work_id":1,"total_minutes":420,"session_count":6,"avg_session_minutes":70,"max_session_minutes":120,"recent_30_day_minutes":90}
		]}`))
	}))
	defer srv.Close()

	client := NewUserStateClient(srv.URL, time.Second)
	engagement, err := client.GetWorkEngagement(context.Background(), 7, []int64{1})
	if err != nil {
		t.Fatalf("GetWorkEngagement() error = %v", err)
	}
	if len(engagement) != 1 {
		t.Fatalf("len(engagement) = %d, want 1", len(engagement))
	}
	if engagement[1].TotalMinutes != 420 || engagement[1].SessionCount != 6 {
		t.Errorf("engagement[1] = %+v, want 420 minutes over 6 sessions", engagement[1])
	}
}

func TestUserStateEmptyEngagementSkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request for empty input")
	}))
	defer srv.Close()

	client := NewUserStateClient(srv.URL, time.Second)
	engagement, err := client.GetWorkEngagement(context.Background(), 7, nil)
	if err != nil || len(engagement) != 0 {
		t.Errorf("GetWorkEngagement(nil) = %v, %v, want empty map", engagement, err)
	}
}

func TestUserStateUpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ingestion offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewUserStateClient(srv.URL, time.Second)
	if _, err := client.GetReadingEvents(context.Background(), 7); err == nil {
		t.Fatal("GetReadingEvents() error = nil, want upstream failure")
	}
}
