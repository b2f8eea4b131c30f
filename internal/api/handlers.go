// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package api provides the HTTP surface of the recommendation engine.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/candidates"
	"github.com/shelfmark/shelfmark/internal/validation"
)

// defaultLimit is the recommendation count when the request omits limit.
const defaultLimit = 20

// Generator produces scored candidates for a user. Implemented by
// candidates.Generator.
type Generator interface {
	Generate(ctx context.Context, userID int64, limit int) ([]recommend.Candidate, error)
	GenerateFromSeed(ctx context.Context, userID, seedWorkID int64, limit int) ([]recommend.Candidate, error)
	GenerateForCategory(ctx context.Context, userID int64, slug string, limit int) ([]recommend.Candidate, error)
	InvalidateCache(ctx context.Context, userID int64) error
}

// Ranker re-ranks candidates into the final presentation order. Implemented
// by rerank.Reranker.
type Ranker interface {
	Rerank(ctx context.Context, userID int64, cands []recommend.Candidate, limit int) ([]recommend.RankedRecommendation, error)
}

// ProfileManager rebuilds user taste profiles. Implemented by
// profile.Builder.
type ProfileManager interface {
	BuildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error)
}

// Handler holds the request handlers and their dependencies.
type Handler struct {
	generator  Generator
	ranker     Ranker
	profiles   ProfileManager
	categories []candidates.Category
	poolFactor int
	logger     zerolog.Logger
	started    time.Time
}

// NewHandler creates the API handler set. poolFactor controls how many
// candidates are retrieved per requested recommendation so the re-ranker
// has room to diversify; it should match the re-ranker's pool bound.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHandler(generator Generator, ranker Ranker, profiles ProfileManager, categories []candidates.Category, poolFactor int, logger zerolog.Logger) *Handler {
	if poolFactor < 1 {
		poolFactor = 2
	}
	return &Handler{
		generator:  generator,
		ranker:     ranker,
		profiles:   profiles,
		categories: categories,
		poolFactor: poolFactor,
		logger:     logger.With().Str("component", "api").Logger(),
		started:    time.Now(),
	}
}

// recommendQuery is the validated shape shared by all recommendation modes.
type recommendQuery struct {
	UserID int64 `validate:"required,gt=0"`
	Limit  int   `validate:"min=1,max=100"`
}

// parseRecommendQuery extracts and validates userID and limit.
func parseRecommendQuery(r *http.Request) (recommendQuery, error) {
	q := recommendQuery{Limit: defaultLimit}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		return q, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   "userID",
			Tag:     "numeric",
			Message: "userID must be an integer",
		}}}
	}
	q.UserID = userID

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, &validation.RequestValidationError{Fields: []validation.FieldError{{
				Field:   "limit",
				Tag:     "numeric",
				Message: "limit must be an integer",
			}}}
		}
		q.Limit = limit
	}

	if err := validation.ValidateStruct(&q); err != nil {
		return q, err
	}
	return q, nil
}

// recommendationsResponse is the common success envelope.
type recommendationsResponse struct {
	UserID          int64                            `json:"user_id"`
	Mode            string                           `json:"mode"`
	Count           int                              `json:"count"`
	Recommendations []recommend.RankedRecommendation `json:"recommendations"`
}

// Recommendations handles GET /api/v1/recommendations/user/{userID}.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecommendQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	cands, err := h.generator.Generate(r.Context(), q.UserID, q.Limit*h.poolFactor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.rankAndRespond(w, r, q, "general", cands)
}

// Similar handles GET /api/v1/recommendations/user/{userID}/similar/{workID}.
func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecommendQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	workID, err := strconv.ParseInt(chi.URLParam(r, "workID"), 10, 64)
	if err != nil {
		h.writeError(w, r, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   "workID",
			Tag:     "numeric",
			Message: "workID must be an integer",
		}}})
		return
	}

	cands, err := h.generator.GenerateFromSeed(r.Context(), q.UserID, workID, q.Limit*h.poolFactor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.rankAndRespond(w, r, q, "seed", cands)
}

// Category handles GET /api/v1/recommendations/user/{userID}/category/{slug}.
func (h *Handler) Category(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecommendQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	slug := chi.URLParam(r, "slug")
	cands, err := h.generator.GenerateForCategory(r.Context(), q.UserID, slug, q.Limit*h.poolFactor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.rankAndRespond(w, r, q, "category", cands)
}

// rankAndRespond runs the re-ranker over the retrieved candidates and writes
// the success envelope.
func (h *Handler) rankAndRespond(w http.ResponseWriter, r *http.Request, q recommendQuery, mode string, cands []recommend.Candidate) {
	ranked, err := h.ranker.Rerank(r.Context(), q.UserID, cands, q.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{
		UserID:          q.UserID,
		Mode:            mode,
		Count:           len(ranked),
		Recommendations: ranked,
	})
}

// profileResponse summarizes a rebuilt profile without exposing the raw
// taste vector.
type profileResponse struct {
	UserID      int64     `json:"user_id"`
	Empty       bool      `json:"empty"`
	AnchorCount int       `json:"anchor_count"`
	BuiltAt     time.Time `json:"built_at"`
}

// RebuildProfile handles POST /api/v1/recommendations/user/{userID}/profile/rebuild.
// The rebuild is synchronous and invalidates the user's cached candidates.
func (h *Handler) RebuildProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		h.writeError(w, r, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   "userID",
			Tag:     "numeric",
			Message: "userID must be a positive integer",
		}}})
		return
	}

	prof, err := h.profiles.BuildProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.generator.InvalidateCache(r.Context(), userID); err != nil {
		h.logger.Warn().Err(err).Int64("user_id", userID).Msg("Cache invalidation failed after rebuild")
	}

	writeJSON(w, http.StatusOK, profileResponse{
		UserID:      userID,
		Empty:       prof.IsEmpty(),
		AnchorCount: len(prof.Anchors),
		BuiltAt:     prof.BuiltAt,
	})
}

// categoryInfo is one configured category row.
type categoryInfo struct {
	Slug     string   `json:"slug"`
	Subjects []string `json:"subjects"`
	MinYear  int      `json:"min_year,omitempty"`
	MaxYear  int      `json:"max_year,omitempty"`
}

// Categories handles GET /api/v1/recommendations/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryInfo, 0, len(h.categories))
	for _, c := range h.categories {
		out = append(out, categoryInfo{
			Slug:     c.Slug,
			Subjects: c.Subjects,
			MinYear:  c.MinYear,
			MaxYear:  c.MaxYear,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(out),
		"categories": out,
	})
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /api/v1/health/ready.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}
