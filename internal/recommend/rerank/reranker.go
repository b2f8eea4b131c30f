// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package rerank turns fused candidates into the final ranked list using
// maximal marginal relevance (MMR).
//
// Base scores blend retrieval relevance with a quality prior, graph
// proximity to the user's history and the user's own partial engagement.
// Greedy selection then trades base score against novelty so the output is
// diverse, not just similar. Side data is fetched in parallel batches;
// every optional input degrades to a documented default instead of failing
// the request.
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/metrics"
	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/quality"
)

// neutralQuality is used for works with no rating data.
const neutralQuality = 0.5

// engagementHalfLifeYears dampens stale partial engagement without ever
// zeroing it out.
const engagementHalfLifeYears = 2.0

// engagementRecencyFloor is the minimum recency factor for partial
// engagement; old engagement still counts, just less.
const engagementRecencyFloor = 0.5

// Reranker performs base scoring and MMR selection. Safe for concurrent use.
type Reranker struct {
	metadata  recommend.MetadataStore
	quality   recommend.QualityStore
	graph     recommend.GraphStore
	userState recommend.UserStateStore

	cfg    recommend.RerankConfig
	logger zerolog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewReranker creates a re-ranker. quality, graph and userState may be nil,
// degrading their signals to defaults.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewReranker(
	metadata recommend.MetadataStore,
	qualityStore recommend.QualityStore,
	graph recommend.GraphStore,
	userState recommend.UserStateStore,
	cfg recommend.RerankConfig,
	logger zerolog.Logger,
) *Reranker {
	return &Reranker{
		metadata:  metadata,
		quality:   qualityStore,
		graph:     graph,
		userState: userState,
		cfg:       cfg,
		logger:    logger.With().Str("component", "rerank").Logger(),
		now:       time.Now,
	}
}

// scored is one candidate with its fetched side data and base score.
type scored struct {
	candidate recommend.Candidate
	meta      recommend.WorkMetadata

	qualityScore    float64
	engagementScore float64
	graphScore      float64
	baseScore       float64
}

// sideData is the joined result of the parallel batch fetches.
type sideData struct {
	meta       map[int64]recommend.WorkMetadata
	priors     map[int64]recommend.QualityPrior
	proximity  map[int64]float64
	engagement map[int64]recommend.EngagementMetrics
}

// Rerank selects up to limit diverse recommendations from candidates.
// Output length is at most min(limit, len(candidates)), with no duplicate
// work IDs, and is deterministic for fixed inputs.
func (r *Reranker) Rerank(ctx context.Context, userID int64, candidates []recommend.Candidate, limit int) ([]recommend.RankedRecommendation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", recommend.ErrInvalidLimit, limit)
	}
	if len(candidates) == 0 {
		return []recommend.RankedRecommendation{}, nil
	}

	start := time.Now()
	defer func() {
		metrics.RerankDuration.Observe(time.Since(start).Seconds())
	}()

	candidates = dedupe(candidates)

	side, err := r.fetchSideData(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}

	pool := r.baseScore(candidates, side)

	// Bound the pool before the per-item embedding fetch.
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].baseScore > pool[j].baseScore
	})
	if max := r.cfg.PoolFactor * limit; len(pool) > max {
		pool = pool[:max]
	}

	embeddings := r.poolEmbeddings(ctx, pool)

	return r.selectDiverse(pool, embeddings, limit), nil
}

// fetchSideData issues the four batch lookups concurrently and joins them.
// Metadata is required; the rest default to empty maps on failure.
func (r *Reranker) fetchSideData(ctx context.Context, userID int64, candidates []recommend.Candidate) (sideData, error) {
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.WorkID)
	}

	var (
		wg sync.WaitGroup

		side    sideData
		metaErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		side.meta, metaErr = r.metadata.GetMetadata(ctx, ids)
	}()

	if r.quality != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			priors, err := r.quality.GetQuality(ctx, ids)
			if err != nil {
				r.logger.Warn().Err(err).Msg("quality fetch failed, using neutral prior")
				return
			}
			side.priors = priors
		}()
	}

	if r.graph != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prox, err := r.graph.Proximity(ctx, userID, ids)
			if err != nil {
				r.logger.Warn().Err(err).Msg("graph proximity fetch failed, using zero")
				return
			}
			side.proximity = prox
		}()
	}

	if r.userState != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng, err := r.userState.GetWorkEngagement(ctx, userID, ids)
			if err != nil {
				r.logger.Warn().Err(err).Msg("engagement fetch failed, using zero")
				return
			}
			side.engagement = eng
		}()
	}

	wg.Wait()

	if metaErr != nil {
		return sideData{}, fmt.Errorf("get metadata: %w", metaErr)
	}
	return side, nil
}

// baseScore computes the weighted blend for every candidate.
func (r *Reranker) baseScore(candidates []recommend.Candidate, side sideData) []scored {
	now := r.now()
	w := r.cfg.Weights

	pool := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		s := scored{
			candidate:       c,
			meta:            side.meta[c.WorkID],
			qualityScore:    qualityScore(side.priors, c.WorkID),
			engagementScore: engagementScore(side.engagement[c.WorkID], now),
			graphScore:      clamp01(side.proximity[c.WorkID]),
		}
		s.baseScore = w.Relevance*c.Score +
			w.Quality*s.qualityScore +
			w.Graph*s.graphScore +
			w.Engagement*s.engagementScore
		pool = append(pool, s)
	}
	return pool
}

// poolEmbeddings fetches embeddings for the bounded pool only. Failure
// degrades novelty to maximally novel rather than failing the request.
func (r *Reranker) poolEmbeddings(ctx context.Context, pool []scored) map[int64][]float64 {
	ids := make([]int64, 0, len(pool))
	for _, s := range pool {
		ids = append(ids, s.candidate.WorkID)
	}

	embeddings, err := r.metadata.GetEmbeddings(ctx, ids)
	if err != nil {
		r.logger.Warn().Err(err).Msg("embedding fetch failed, novelty defaults to 1.0")
		return nil
	}
	return embeddings
}

// qualityScore blends the prior's normalized average with its conservative
// lower bound, weighted by how many ratings back it.
func qualityScore(priors map[int64]recommend.QualityPrior, workID int64) float64 {
	prior, ok := priors[workID]
	if !ok || prior.TotalRatingCount == 0 {
		return neutralQuality
	}

	normAvg := quality.NormalizeAverage(prior.BlendedAverage)
	countWeight := quality.CountWeight(prior.TotalRatingCount)

	return (0.6*normAvg + 0.4*prior.BlendedLowerBound) * (0.5 + 0.5*countWeight)
}

// engagementScore maps the user's own partial engagement with a work onto
// [0,1]: time invested on a log scale, boosted when active in the last 30
// days, dampened (but never zeroed) by staleness.
func engagementScore(m recommend.EngagementMetrics, now time.Time) float64 {
	if m.TotalMinutes <= 0 {
		return 0
	}

	score := math.Min(1, math.Log10(m.TotalHours()+1))

	if m.Recent30DayMinutes > 0 {
		score *= 1.1
	}

	if m.LastReadAt != nil {
		ageYears := now.Sub(*m.LastReadAt).Hours() / (24 * 365.25)
		if ageYears > 0 {
			decay := math.Pow(0.5, ageYears/engagementHalfLifeYears)
			score *= math.Max(engagementRecencyFloor, decay)
		}
	}

	return clamp01(score)
}

// dedupe keeps the first occurrence of each work ID.
func dedupe(candidates []recommend.Candidate) []recommend.Candidate {
	seen := make(map[int64]struct{}, len(candidates))
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, dup := seen[c.WorkID]; dup {
			continue
		}
		seen[c.WorkID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
