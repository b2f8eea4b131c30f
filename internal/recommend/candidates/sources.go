// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package candidates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shelfmark/shelfmark/internal/metrics"
	"github.com/shelfmark/shelfmark/internal/recommend"
)

// retrievalChannel identifies one retrieval path for fusion damping and
// instrumentation. Channels are coarser than source tags: community and
// collaborative hits both carry the collaborative source tag but fuse with
// different damping.
type retrievalChannel string

const (
	channelVector        retrievalChannel = "vector"
	channelGraph         retrievalChannel = "graph"
	channelCommunity     retrievalChannel = "community"
	channelCollaborative retrievalChannel = "collaborative"
)

// retrieval is one source to run during fan-out.
type retrieval struct {
	channel retrievalChannel
	run     func(ctx context.Context) ([]recommend.Candidate, error)
}

// sourceResult is one source's outcome. A failed optional source has a nil
// candidate slice and its error recorded for logging only.
type sourceResult struct {
	channel    retrievalChannel
	candidates []recommend.Candidate
	err        error
}

// fanOut runs all sources concurrently and joins them. Source order is
// preserved in the result so fusion stays deterministic. Failures degrade
// to empty contributions.
func (g *Generator) fanOut(ctx context.Context, sources ...retrieval) []sourceResult {
	results := make([]sourceResult, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src retrieval) {
			defer wg.Done()

			start := time.Now()
			cands, err := src.run(ctx)
			metrics.RecordRetrieval(string(src.channel), len(cands), time.Since(start), err)

			results[i] = sourceResult{channel: src.channel, candidates: cands, err: err}
		}(i, src)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			g.logger.Warn().
				Err(r.err).
				Str("source", string(r.channel)).
				Msg("retrieval source failed, contributing nothing")
		}
	}
	return results
}

// fuse merges per-source candidates keyed by work ID. The first source to
// find a work sets its score and source tag; later sources add a damped
// share of their own score, capped at 1.0, never overwriting. Excluded
// works are dropped.
func fuse(results []sourceResult, excl map[int64]struct{}, damping recommend.SourceDamping) []recommend.Candidate {
	factor := map[retrievalChannel]float64{
		channelGraph:         damping.Graph,
		channelCollaborative: damping.Collaborative,
		channelCommunity:     damping.Community,
	}

	byWork := make(map[int64]int)
	var fused []recommend.Candidate

	for _, r := range results {
		for _, c := range r.candidates {
			if _, skip := excl[c.WorkID]; skip {
				continue
			}

			idx, seen := byWork[c.WorkID]
			if !seen {
				byWork[c.WorkID] = len(fused)
				fused = append(fused, c)
				continue
			}

			fused[idx].Score += c.Score * factor[r.channel]
			if fused[idx].Score > 1 {
				fused[idx].Score = 1
			}
		}
	}
	return fused
}

// vectorSource is the nearest-neighbor retrieval seeded by vec. An empty
// vec (no profile, no seed embedding) empties the source.
func (g *Generator) vectorSource(vec []float64, limit int, excl map[int64]struct{}) retrieval {
	return retrieval{channel: channelVector, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.vectors == nil || len(vec) == 0 {
			return nil, nil
		}

		hits, err := g.vectors.KNN(ctx, vec, limit, excl)
		if err != nil {
			return nil, fmt.Errorf("knn: %w", err)
		}

		cands := make([]recommend.Candidate, 0, len(hits))
		for _, h := range hits {
			cands = append(cands, recommend.Candidate{
				WorkID: h.WorkID,
				Score:  clamp01(h.Similarity),
				Source: recommend.SourceVector,
			})
		}
		return cands, nil
	}}
}

// graphAnchorSource expands the top anchors through the work graph. Each
// hit scores GraphSeedFactor times the anchor's normalized weight.
func (g *Generator) graphAnchorSource(anchors []recommend.Anchor) retrieval {
	return retrieval{channel: channelGraph, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.graph == nil {
			return nil, nil
		}

		best := make(map[int64]float64)
		for _, a := range topAnchors(anchors, g.cfg.GraphAnchors) {
			neighbors, err := g.graph.Neighbors(ctx, a.WorkID, g.cfg.MaxHops)
			if err != nil {
				return nil, fmt.Errorf("graph neighbors of %d: %w", a.WorkID, err)
			}

			score := g.cfg.GraphSeedFactor * normalizedWeight(anchors, a)
			for _, id := range neighbors {
				if score > best[id] {
					best[id] = score
				}
			}
		}
		return mapToCandidates(best, recommend.SourceGraph), nil
	}}
}

// graphSeedSource expands one seed work through the graph at full weight.
func (g *Generator) graphSeedSource(seedWorkID int64) retrieval {
	return retrieval{channel: channelGraph, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.graph == nil {
			return nil, nil
		}

		neighbors, err := g.graph.Neighbors(ctx, seedWorkID, g.cfg.MaxHops)
		if err != nil {
			return nil, fmt.Errorf("graph neighbors of %d: %w", seedWorkID, err)
		}

		cands := make([]recommend.Candidate, 0, len(neighbors))
		for _, id := range neighbors {
			cands = append(cands, recommend.Candidate{
				WorkID: id,
				Score:  g.cfg.GraphSeedFactor,
				Source: recommend.SourceGraph,
			})
		}
		return cands, nil
	}}
}

// communityAnchorSource looks up curated-list companions of the top
// anchors. Each hit scores CommunitySeedFactor times the anchor's
// normalized weight.
func (g *Generator) communityAnchorSource(anchors []recommend.Anchor, anchorKeys map[int64]string, limit int) retrieval {
	return retrieval{channel: channelCommunity, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.collab == nil {
			return nil, nil
		}

		best := make(map[string]float64)
		for _, a := range topAnchors(anchors, g.cfg.CommunityAnchors) {
			key, ok := anchorKeys[a.WorkID]
			if !ok || key == "" {
				continue
			}

			mates, err := g.collab.ListMates(ctx, key, limit)
			if err != nil {
				return nil, fmt.Errorf("list mates of %q: %w", key, err)
			}

			score := g.cfg.CommunitySeedFactor * normalizedWeight(anchors, a)
			for _, m := range mates {
				if score > best[m.CatalogKey] {
					best[m.CatalogKey] = score
				}
			}
		}
		return g.resolveKeyedScores(ctx, best, recommend.SourceCollaborative)
	}}
}

// communitySeedSource looks up curated-list companions of one seed work.
func (g *Generator) communitySeedSource(catalogKey string, limit int) retrieval {
	return retrieval{channel: channelCommunity, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.collab == nil || catalogKey == "" {
			return nil, nil
		}

		mates, err := g.collab.ListMates(ctx, catalogKey, limit)
		if err != nil {
			return nil, fmt.Errorf("list mates of %q: %w", catalogKey, err)
		}

		best := make(map[string]float64, len(mates))
		for _, m := range mates {
			best[m.CatalogKey] = g.cfg.CommunitySeedFactor
		}
		return g.resolveKeyedScores(ctx, best, recommend.SourceCollaborative)
	}}
}

// collaborativeAnchorSource runs Jaccard co-occurrence lookups over the top
// anchors' catalog keys.
func (g *Generator) collaborativeAnchorSource(anchors []recommend.Anchor, anchorKeys map[int64]string, limit int) retrieval {
	return retrieval{channel: channelCollaborative, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.collab == nil {
			return nil, nil
		}

		best := make(map[string]float64)
		for _, a := range topAnchors(anchors, g.cfg.CollaborativeAnchors) {
			key, ok := anchorKeys[a.WorkID]
			if !ok || key == "" {
				continue
			}

			similar, err := g.collab.SimilarByCooccurrence(ctx, key, limit)
			if err != nil {
				return nil, fmt.Errorf("cooccurrence of %q: %w", key, err)
			}

			for _, s := range similar {
				score := clamp01(s.Jaccard)
				if score > best[s.CatalogKey] {
					best[s.CatalogKey] = score
				}
			}
		}
		return g.resolveKeyedScores(ctx, best, recommend.SourceCollaborative)
	}}
}

// collaborativeSeedSource combines "also read" and co-occurrence lookups
// for one seed work. Also-read overlap counts are normalized against the
// strongest overlap in the batch.
func (g *Generator) collaborativeSeedSource(catalogKey string, limit int) retrieval {
	return retrieval{channel: channelCollaborative, run: func(ctx context.Context) ([]recommend.Candidate, error) {
		if g.collab == nil || catalogKey == "" {
			return nil, nil
		}

		best := make(map[string]float64)

		alsoRead, err := g.collab.AlsoRead(ctx, catalogKey, limit)
		if err != nil {
			return nil, fmt.Errorf("also read of %q: %w", catalogKey, err)
		}
		maxOverlap := 0
		for _, a := range alsoRead {
			if a.OverlapCount > maxOverlap {
				maxOverlap = a.OverlapCount
			}
		}
		for _, a := range alsoRead {
			if maxOverlap > 0 {
				best[a.CatalogKey] = float64(a.OverlapCount) / float64(maxOverlap)
			}
		}

		similar, err := g.collab.SimilarByCooccurrence(ctx, catalogKey, limit)
		if err != nil {
			return nil, fmt.Errorf("cooccurrence of %q: %w", catalogKey, err)
		}
		for _, s := range similar {
			if score := clamp01(s.Jaccard); score > best[s.CatalogKey] {
				best[s.CatalogKey] = score
			}
		}

		return g.resolveKeyedScores(ctx, best, recommend.SourceCollaborative)
	}}
}

// anchorCatalogKeys fetches catalog keys for the top n anchors. Failure
// empties the collaborative sources instead of failing the request, since
// they are optional.
func (g *Generator) anchorCatalogKeys(ctx context.Context, anchors []recommend.Anchor, n int) map[int64]string {
	top := topAnchors(anchors, n)
	if len(top) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(top))
	for _, a := range top {
		ids = append(ids, a.WorkID)
	}

	meta, err := g.metadata.GetMetadata(ctx, ids)
	if err != nil {
		g.logger.Warn().Err(err).Msg("anchor catalog key lookup failed")
		return nil
	}

	keys := make(map[int64]string, len(meta))
	for id, m := range meta {
		keys[id] = m.CatalogKey
	}
	return keys
}

// resolveKeyedScores maps catalog-keyed scores back onto work IDs. Keys the
// catalog cannot resolve are dropped.
func (g *Generator) resolveKeyedScores(ctx context.Context, scores map[string]float64, source recommend.Source) ([]recommend.Candidate, error) {
	if len(scores) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}

	resolved, err := g.metadata.ResolveCatalogKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog keys: %w", err)
	}

	best := make(map[int64]float64, len(resolved))
	for key, id := range resolved {
		if score := scores[key]; score > best[id] {
			best[id] = score
		}
	}
	return mapToCandidates(best, source), nil
}

// topAnchors returns the first n anchors. Anchors are already ordered by
// weight descending.
func topAnchors(anchors []recommend.Anchor, n int) []recommend.Anchor {
	if len(anchors) > n {
		return anchors[:n]
	}
	return anchors
}

// normalizedWeight scales an anchor's weight by the top anchor's, so the
// strongest anchor seeds at full factor.
func normalizedWeight(anchors []recommend.Anchor, a recommend.Anchor) float64 {
	if len(anchors) == 0 || anchors[0].Weight <= 0 {
		return 1
	}
	return a.Weight / anchors[0].Weight
}

func mapToCandidates(scores map[int64]float64, source recommend.Source) []recommend.Candidate {
	cands := make([]recommend.Candidate, 0, len(scores))
	for id, score := range scores {
		cands = append(cands, recommend.Candidate{WorkID: id, Score: score, Source: source})
	}
	return cands
}
