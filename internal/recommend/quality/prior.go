// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package quality computes blended, count-aware rating priors.
//
// A prior combines one or more external rating sources into a single
// count-weighted average plus a Wilson-style lower bound. The lower bound
// is the conservative estimate the re-ranker blends in, so that a book
// with three perfect ratings does not outrank a book with thousands of
// very good ones.
package quality

import (
	"math"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// z95 is the normal quantile for a 95% Wilson interval.
const z95 = 1.959963984540054

// RatingSource is one external rating aggregate on the 1-5 scale.
type RatingSource struct {
	// Name identifies the source, for diagnostics only.
	Name string

	// Average is the mean rating in [1, 5].
	Average float64

	// Count is the number of ratings behind the average.
	Count int64
}

// BlendPrior folds rating sources into a single prior for the work.
// Sources with no ratings are ignored; if nothing remains, ok is false and
// callers fall back to the neutral default.
func BlendPrior(workID int64, sources []RatingSource) (recommend.QualityPrior, bool) {
	var (
		total    int64
		weighted float64
	)
	for _, s := range sources {
		if s.Count <= 0 {
			continue
		}
		total += s.Count
		weighted += s.Average * float64(s.Count)
	}

	if total == 0 {
		return recommend.QualityPrior{WorkID: workID}, false
	}

	avg := weighted / float64(total)
	return recommend.QualityPrior{
		WorkID:            workID,
		BlendedAverage:    avg,
		BlendedLowerBound: WilsonLowerBound(NormalizeAverage(avg), total),
		TotalRatingCount:  total,
	}, true
}

// NormalizeAverage maps a 1-5 average onto [0, 1].
func NormalizeAverage(avg float64) float64 {
	p := (avg - 1) / 4
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// WilsonLowerBound returns the lower bound of the 95% Wilson score interval
// for a success proportion p observed over n samples.
func WilsonLowerBound(p float64, n int64) float64 {
	if n <= 0 {
		return 0
	}

	nf := float64(n)
	z2 := z95 * z95

	center := p + z2/(2*nf)
	margin := z95 * math.Sqrt((p*(1-p)+z2/(4*nf))/nf)
	lower := (center - margin) / (1 + z2/nf)

	if lower < 0 {
		return 0
	}
	return lower
}

// CountWeight maps a rating count onto [0, 1] on a log scale, saturating
// at 10^4 ratings.
func CountWeight(count int64) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(float64(count)+1)/4)
}
