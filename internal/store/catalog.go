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

// CatalogClient talks to the external catalog service. It is a required
// dependency: callers propagate its errors instead of degrading.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
}

var (
	_ recommend.MetadataStore = (*CatalogClient)(nil)
	_ recommend.QualityStore  = (*CatalogClient)(nil)
)

// NewCatalogClient creates a catalog client for the given base URL.
func NewCatalogClient(baseURL string, timeout time.Duration) *CatalogClient {
	return &CatalogClient{
		baseURL:    normalizeBaseURL(baseURL),
		httpClient: newHTTPClient(timeout),
	}
}

type idsRequest struct {
	IDs []int64 `json:"ids"`
}

// GetMetadata returns metadata for the given works. Unknown IDs are absent
// from the result map.
func (c *CatalogClient) GetMetadata(ctx context.Context, ids []int64) (map[int64]recommend.WorkMetadata, error) {
	if len(ids) == 0 {
		return map[int64]recommend.WorkMetadata{}, nil
	}

	var resp struct {
		Works []recommend.WorkMetadata `json:"works"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/works/metadata", idsRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("catalog metadata: %w", err)
	}

	out := make(map[int64]recommend.WorkMetadata, len(resp.Works))
	for _, w := range resp.Works {
		out[w.ID] = w
	}
	return out, nil
}

// GetEmbeddings returns embedding vectors for the given works.
func (c *CatalogClient) GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float64, error) {
	if len(ids) == 0 {
		return map[int64][]float64{}, nil
	}

	var resp struct {
		Embeddings []struct {
			ID     int64     `json:"id"`
			Vector []float64 `json:"vector"`
		} `json:"embeddings"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/works/embeddings", idsRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("catalog embeddings: %w", err)
	}

	out := make(map[int64][]float64, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if len(e.Vector) > 0 {
			out[e.ID] = e.Vector
		}
	}
	return out, nil
}

// ResolveCatalogKeys maps external catalog keys back to canonical work IDs.
func (c *CatalogClient) ResolveCatalogKeys(ctx context.Context, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}

	var resp struct {
		Works []struct {
			Key string `json:"key"`
			ID  int64  `json:"id"`
		} `json:"works"`
	}
	req := struct {
		Keys []string `json:"keys"`
	}{Keys: keys}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/works/resolve", req, &resp); err != nil {
		return nil, fmt.Errorf("catalog resolve: %w", err)
	}

	out := make(map[string]int64, len(resp.Works))
	for _, w := range resp.Works {
		out[w.Key] = w.ID
	}
	return out, nil
}

// FindByCategory returns works matching the subject/year constraints.
func (c *CatalogClient) FindByCategory(ctx context.Context, subjects, excludeSubjects []string, minYear, maxYear, limit int) ([]int64, error) {
	req := struct {
		Subjects        []string `json:"subjects"`
		ExcludeSubjects []string `json:"exclude_subjects,omitempty"`
		MinYear         int      `json:"min_year,omitempty"`
		MaxYear         int      `json:"max_year,omitempty"`
		Limit           int      `json:"limit"`
	}{subjects, excludeSubjects, minYear, maxYear, limit}

	var resp struct {
		IDs []int64 `json:"ids"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/works/search", req, &resp); err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}
	return resp.IDs, nil
}

// GetQuality returns rating priors. Works with no ratings are absent from
// the result map.
func (c *CatalogClient) GetQuality(ctx context.Context, ids []int64) (map[int64]recommend.QualityPrior, error) {
	if len(ids) == 0 {
		return map[int64]recommend.QualityPrior{}, nil
	}

	var resp struct {
		Priors []recommend.QualityPrior `json:"priors"`
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/v1/works/quality", idsRequest{IDs: ids}, &resp); err != nil {
		return nil, fmt.Errorf("catalog quality: %w", err)
	}

	out := make(map[int64]recommend.QualityPrior, len(resp.Priors))
	for _, p := range resp.Priors {
		out[p.WorkID] = p
	}
	return out, nil
}
