// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// defaultUpstreamTimeout bounds a single upstream call.
const defaultUpstreamTimeout = 10 * time.Second

// newHTTPClient builds the shared client shape used by all upstream clients.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &http.Client{Timeout: timeout}
}

// normalizeBaseURL strips the trailing slash so endpoint joins are uniform.
func normalizeBaseURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/")
}

// doJSON performs one JSON request/response exchange. A nil reqBody sends no
// body; a nil out discards the response body.
func doJSON(ctx context.Context, client *http.Client, method, url string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 512))
		if readErr != nil {
			return fmt.Errorf("%s returned status %d (failed to read body)", url, resp.StatusCode)
		}
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
