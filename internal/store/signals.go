// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// SignalsClient talks to the similarity-signals service: the vector index,
// the work-relationship graph and the reader-overlap aggregates.
//
// Collaborative lookups run behind a circuit breaker because they are
// optional sources; once the breaker opens, calls fail fast and the
// generator degrades those contributions to empty.
type SignalsClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	logger     zerolog.Logger
}

var (
	_ recommend.VectorIndex        = (*SignalsClient)(nil)
	_ recommend.GraphStore         = (*SignalsClient)(nil)
	_ recommend.CollaborativeStore = (*SignalsClient)(nil)
)

// NewSignalsClient creates a signals client for the given base URL.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSignalsClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *SignalsClient {
	componentLogger := logger.With().Str("component", "signals_client").Logger()

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "collaborative-store",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLogger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &SignalsClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(timeout),
		breaker:    breaker,
		logger:     componentLogger,
	}
}

// KNN returns up to limit nearest neighbors of vector, excluding the given
// work IDs.
func (c *SignalsClient) KNN(ctx context.Context, vector []float64, limit int, exclude map[int64]struct{}) ([]recommend.VectorHit, error) {
	excludeIDs := make([]int64, 0, len(exclude))
	for id := range exclude {
		excludeIDs = append(excludeIDs, id)
	}

	req := struct {
		Vector  []float64 `json:"vector"`
		Limit   int       `json:"limit"`
		Exclude []int64   `json:"exclude,omitempty"`
	}{vector, limit, excludeIDs}

	var resp struct {
		Hits []struct {
			WorkID     int64   `json:"work_id"`
			Similarity float64 `json:"similarity"`
		} `json:"hits"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/vector/knn", req, &resp); err != nil {
		return nil, fmt.Errorf("vector knn: %w", err)
	}

	hits := make([]recommend.VectorHit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		hits = append(hits, recommend.VectorHit{WorkID: h.WorkID, Similarity: h.Similarity})
	}
	return hits, nil
}

// Neighbors returns works reachable from workID within maxHops.
func (c *SignalsClient) Neighbors(ctx context.Context, workID int64, maxHops int) ([]int64, error) {
	u := fmt.Sprintf("%s/v1/graph/neighbors?work_id=%d&max_hops=%d", c.baseURL, workID, maxHops)

	var resp struct {
		WorkIDs []int64 `json:"work_ids"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("graph neighbors: %w", err)
	}
	return resp.WorkIDs, nil
}

// Proximity returns a [0,1] closeness signal between the user's history and
// each given work.
func (c *SignalsClient) Proximity(ctx context.Context, userID int64, workIDs []int64) (map[int64]float64, error) {
	req := struct {
		UserID  int64   `json:"user_id"`
		WorkIDs []int64 `json:"work_ids"`
	}{userID, workIDs}

	var resp struct {
		Scores []struct {
			WorkID int64   `json:"work_id"`
			Score  float64 `json:"score"`
		} `json:"scores"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/graph/proximity", req, &resp); err != nil {
		return nil, fmt.Errorf("graph proximity: %w", err)
	}

	out := make(map[int64]float64, len(resp.Scores))
	for _, s := range resp.Scores {
		out[s.WorkID] = s.Score
	}
	return out, nil
}

// AlsoRead returns "readers of this book also read" entries.
func (c *SignalsClient) AlsoRead(ctx context.Context, catalogKey string, limit int) ([]recommend.CoReadEntry, error) {
	var resp struct {
		Entries []struct {
			CatalogKey   string `json:"catalog_key"`
			OverlapCount int    `json:"overlap_count"`
		} `json:"entries"`
	}
	if err := c.collabGet(ctx, "also-read", catalogKey, limit, &resp); err != nil {
		return nil, err
	}

	entries := make([]recommend.CoReadEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, recommend.CoReadEntry{CatalogKey: e.CatalogKey, OverlapCount: e.OverlapCount})
	}
	return entries, nil
}

// ListMates returns "appears together in curated lists" entries.
func (c *SignalsClient) ListMates(ctx context.Context, catalogKey string, limit int) ([]recommend.ListMateEntry, error) {
	var resp struct {
		Entries []struct {
			CatalogKey      string `json:"catalog_key"`
			SharedListCount int    `json:"shared_list_count"`
		} `json:"entries"`
	}
	if err := c.collabGet(ctx, "list-mates", catalogKey, limit, &resp); err != nil {
		return nil, err
	}

	entries := make([]recommend.ListMateEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, recommend.ListMateEntry{CatalogKey: e.CatalogKey, SharedListCount: e.SharedListCount})
	}
	return entries, nil
}

// SimilarByCooccurrence returns Jaccard reader-overlap entries.
func (c *SignalsClient) SimilarByCooccurrence(ctx context.Context, catalogKey string, limit int) ([]recommend.CooccurrenceEntry, error) {
	var resp struct {
		Entries []struct {
			CatalogKey string  `json:"catalog_key"`
			Jaccard    float64 `json:"jaccard"`
		} `json:"entries"`
	}
	if err := c.collabGet(ctx, "cooccurrence", catalogKey, limit, &resp); err != nil {
		return nil, err
	}

	entries := make([]recommend.CooccurrenceEntry, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		entries = append(entries, recommend.CooccurrenceEntry{CatalogKey: e.CatalogKey, Jaccard: e.Jaccard})
	}
	return entries, nil
}

// collabGet runs one collaborative lookup through the circuit breaker and
// decodes the raw body on success.
func (c *SignalsClient) collabGet(ctx context.Context, endpoint, catalogKey string, limit int, out interface{}) error {
	u := c.baseURL + "/v1/collaborative/" + endpoint +
		"?key=" + url.QueryEscape(catalogKey) +
		"&limit=" + strconv.Itoa(limit)

	data, err := c.breaker.Execute(func() ([]byte, error) {
		var raw json.RawMessage
		if err := doJSON(ctx, c.httpClient, http.MethodGet, u, nil, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return fmt.Errorf("collaborative %s: %w", endpoint, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode collaborative %s: %w", endpoint, err)
	}
	return nil
}
