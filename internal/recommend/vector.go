// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package recommend

import "math"

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales v to unit length in place and returns it.
// The zero vector is returned unchanged.
func Normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}

	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// AddScaled accumulates scale*src into dst. dst is allocated on first use
// and must match src's dimension afterwards; mismatched vectors are skipped.
func AddScaled(dst, src []float64, scale float64) []float64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make([]float64, len(src))
	}
	if len(dst) != len(src) {
		return dst
	}

	for i := range src {
		dst[i] += scale * src[i]
	}
	return dst
}
