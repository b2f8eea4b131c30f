// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package rerank

import (
	"github.com/shelfmark/shelfmark/internal/recommend"
)

// selectDiverse runs the greedy MMR loop over the base-score-ordered pool.
// The loop is inherently sequential: each pick depends on everything
// selected before it. Pool order is the tiebreak, so equal MMR scores go to
// the higher base score (first seen).
func (r *Reranker) selectDiverse(pool []scored, embeddings map[int64][]float64, limit int) []recommend.RankedRecommendation {
	var (
		out               []recommend.RankedRecommendation
		selectedEmbedding [][]float64
		selectedAuthors   = make(map[string]struct{})
		remaining         = make([]bool, len(pool))
	)
	for i := range remaining {
		remaining[i] = true
	}

	for len(out) < limit {
		bestIdx := -1
		var bestMMR, bestNovelty float64

		for i, s := range pool {
			if !remaining[i] {
				continue
			}

			novelty := NoveltyScore(embeddings[s.candidate.WorkID], selectedEmbedding)
			penalty := r.cfg.AuthorPenalty * float64(sharedAuthors(s.meta.Authors, selectedAuthors))

			mmr := (1-r.cfg.Lambda)*s.baseScore +
				r.cfg.Lambda*novelty*r.cfg.NoveltyWeight -
				penalty

			// Strictly greater keeps first-seen on ties.
			if bestIdx == -1 || mmr > bestMMR {
				bestIdx = i
				bestMMR = mmr
				bestNovelty = novelty
			}
		}

		if bestIdx == -1 {
			break
		}

		picked := pool[bestIdx]
		remaining[bestIdx] = false

		// Novelty above was computed against the pre-pick state; only now
		// does the pick contribute to future diversity checks.
		if emb, ok := embeddings[picked.candidate.WorkID]; ok {
			selectedEmbedding = append(selectedEmbedding, emb)
		}
		for _, a := range picked.meta.Authors {
			selectedAuthors[a] = struct{}{}
		}

		out = append(out, r.assemble(picked, bestNovelty))
	}

	if out == nil {
		out = []recommend.RankedRecommendation{}
	}
	return out
}

// assemble builds the output row for one selected candidate.
func (r *Reranker) assemble(s scored, novelty float64) recommend.RankedRecommendation {
	finalScore := s.baseScore*(1-r.cfg.Lambda) + novelty*r.cfg.NoveltyWeight

	return recommend.RankedRecommendation{
		WorkID:          s.candidate.WorkID,
		Title:           s.meta.Title,
		Authors:         s.meta.Authors,
		Year:            s.meta.Year,
		RelevanceScore:  s.candidate.Score,
		QualityScore:    s.qualityScore,
		EngagementScore: s.engagementScore,
		DiversityScore:  novelty,
		FinalScore:      finalScore,
		Confidence:      finalScore,
		Grade:           ScoreToGrade(finalScore),
	}
}

// NoveltyScore measures how different an embedding is from everything
// already selected: 1 minus the average cosine similarity. No embedding or
// an empty selection is maximally novel.
func NoveltyScore(embedding []float64, selected [][]float64) float64 {
	if len(embedding) == 0 || len(selected) == 0 {
		return 1.0
	}

	var sum float64
	for _, s := range selected {
		sum += recommend.CosineSimilarity(embedding, s)
	}
	return clamp01(1 - sum/float64(len(selected)))
}

// sharedAuthors counts how many of the work's authors are already selected.
func sharedAuthors(authors []string, selected map[string]struct{}) int {
	n := 0
	for _, a := range authors {
		if _, ok := selected[a]; ok {
			n++
		}
	}
	return n
}

// ScoreToGrade maps a final score onto the six-bucket letter scale. Bucket
// floors are inclusive.
func ScoreToGrade(score float64) recommend.Grade {
	switch {
	case score >= 0.85:
		return recommend.GradeAPlus
	case score >= 0.75:
		return recommend.GradeA
	case score >= 0.65:
		return recommend.GradeAMinus
	case score >= 0.55:
		return recommend.GradeBPlus
	case score >= 0.45:
		return recommend.GradeB
	default:
		return recommend.GradeBMinus
	}
}
