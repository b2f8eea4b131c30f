// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/shelfmark/shelfmark/internal/middleware"
	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/validation"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error     string                  `json:"error"`
	RequestID string                  `json:"request_id,omitempty"`
	Fields    []validation.FieldError `json:"fields,omitempty"`
}

// writeJSON serializes v and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // HTTP response write errors are not recoverable
	json.NewEncoder(w).Encode(v)
}

// writeError maps pipeline errors to HTTP statuses. Validation failures and
// bad arguments are 400, unknown categories 404; anything else means a
// required dependency failed and surfaces as 502.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     verr.Error(),
			RequestID: requestID,
			Fields:    verr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, recommend.ErrInvalidLimit), errors.Is(err, recommend.ErrInvalidSeed):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:     err.Error(),
			RequestID: requestID,
		})
	case errors.Is(err, recommend.ErrUnknownCategory):
		writeJSON(w, http.StatusNotFound, errorResponse{
			Error:     err.Error(),
			RequestID: requestID,
		})
	default:
		h.logger.Error().Err(err).
			Str("request_id", requestID).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:     "upstream dependency failure",
			RequestID: requestID,
		})
	}
}
