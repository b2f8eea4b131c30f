// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// UserStateClient talks to the ingestion service that owns per-user reading
// state: shelves, ratings, blocks and session aggregates.
type UserStateClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ recommend.UserStateStore = (*UserStateClient)(nil)

// NewUserStateClient creates a user-state client for the given base URL.
func NewUserStateClient(baseURL string, timeout time.Duration) *UserStateClient {
	return &UserStateClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(timeout),
	}
}

func (c *UserStateClient) userURL(userID int64, suffix string) string {
	return fmt.Sprintf("%s/v1/users/%d%s", c.baseURL, userID, suffix)
}

// GetReadWorkIDs returns every work the user has already seen.
func (c *UserStateClient) GetReadWorkIDs(ctx context.Context, userID int64) ([]int64, error) {
	var resp struct {
		WorkIDs []int64 `json:"work_ids"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.userURL(userID, "/read"), nil, &resp); err != nil {
		return nil, fmt.Errorf("user read works: %w", err)
	}
	return resp.WorkIDs, nil
}

// GetBlocks returns the user's explicitly blocked works and authors.
func (c *UserStateClient) GetBlocks(ctx context.Context, userID int64) (recommend.Blocks, error) {
	var blocks recommend.Blocks
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.userURL(userID, "/blocks"), nil, &blocks); err != nil {
		return recommend.Blocks{}, fmt.Errorf("user blocks: %w", err)
	}
	return blocks, nil
}

// GetReadingEvents returns the user's full scored-history input.
func (c *UserStateClient) GetReadingEvents(ctx context.Context, userID int64) ([]recommend.ReadingEvent, error) {
	var resp struct {
		Events []recommend.ReadingEvent `json:"events"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.userURL(userID, "/events"), nil, &resp); err != nil {
		return nil, fmt.Errorf("user reading events: %w", err)
	}
	return resp.Events, nil
}

// LatestEventTime returns the most recent modification time across the
// user's reading events and engagement aggregates.
func (c *UserStateClient) LatestEventTime(ctx context.Context, userID int64) (time.Time, error) {
	var resp struct {
		LatestEventAt time.Time `json:"latest_event_at"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, c.userURL(userID, "/latest-event"), nil, &resp); err != nil {
		return time.Time{}, fmt.Errorf("user latest event: %w", err)
	}
	return resp.LatestEventAt, nil
}

// GetWorkEngagement returns the user's own engagement with specific works.
func (c *UserStateClient) GetWorkEngagement(ctx context.Context, userID int64, workIDs []int64) (map[int64]recommend.EngagementMetrics, error) {
	if len(workIDs) == 0 {
		return map[int64]recommend.EngagementMetrics{}, nil
	}

	req := struct {
		WorkIDs []int64 `json:"work_ids"`
	}{WorkIDs: workIDs}

	var resp struct {
		Engagement []struct {
			WorkID int64 `json:"work_id"`
			recommend.EngagementMetrics
		} `json:"engagement"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.userURL(userID, "/engagement"), req, &resp); err != nil {
		return nil, fmt.Errorf("user engagement: %w", err)
	}

	out := make(map[int64]recommend.EngagementMetrics, len(resp.Engagement))
	for _, e := range resp.Engagement {
		out[e.WorkID] = e.EngagementMetrics
	}
	return out, nil
}
