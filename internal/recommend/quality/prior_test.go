// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package quality

import (
	"math"
	"testing"
)

func TestBlendPrior(t *testing.T) {
	t.Run("count-weighted average", func(t *testing.T) {
		prior, ok := BlendPrior(1, []RatingSource{
			{Name: "a", Average: 4.0, Count: 100},
			{Name: "b", Average: 3.0, Count: 300},
		})
		if !ok {
			t.Fatal("BlendPrior() ok = false, want true")
		}

		want := (4.0*100 + 3.0*300) / 400
		if math.Abs(prior.BlendedAverage-want) > 1e-9 {
			t.Errorf("BlendedAverage = %v, want %v", prior.BlendedAverage, want)
		}
		if prior.TotalRatingCount != 400 {
			t.Errorf("TotalRatingCount = %d, want 400", prior.TotalRatingCount)
		}
	})

	t.Run("empty sources fall back", func(t *testing.T) {
		_, ok := BlendPrior(1, nil)
		if ok {
			t.Error("BlendPrior(nil) ok = true, want false")
		}

		_, ok = BlendPrior(1, []RatingSource{{Name: "a", Average: 5, Count: 0}})
		if ok {
			t.Error("BlendPrior(zero counts) ok = true, want false")
		}
	})

	t.Run("lower bound is below the average", func(t *testing.T) {
		prior, ok := BlendPrior(1, []RatingSource{{Name: "a", Average: 4.5, Count: 50}})
		if !ok {
			t.Fatal("BlendPrior() ok = false, want true")
		}
		if prior.BlendedLowerBound >= NormalizeAverage(prior.BlendedAverage) {
			t.Errorf("lower bound %v not below normalized average %v",
				prior.BlendedLowerBound, NormalizeAverage(prior.BlendedAverage))
		}
	})
}

func TestWilsonLowerBound(t *testing.T) {
	t.Run("more samples tighten the bound", func(t *testing.T) {
		few := WilsonLowerBound(0.9, 10)
		many := WilsonLowerBound(0.9, 10000)
		if few >= many {
			t.Errorf("WilsonLowerBound: few=%v >= many=%v", few, many)
		}
		if many >= 0.9 {
			t.Errorf("lower bound %v must stay below the proportion", many)
		}
	})

	t.Run("zero samples", func(t *testing.T) {
		if got := WilsonLowerBound(0.9, 0); got != 0 {
			t.Errorf("WilsonLowerBound(p, 0) = %v, want 0", got)
		}
	})

	t.Run("stays in range", func(t *testing.T) {
		for _, p := range []float64{0, 0.25, 0.5, 0.75, 1} {
			for _, n := range []int64{1, 10, 1000} {
				got := WilsonLowerBound(p, n)
				if got < 0 || got > 1 {
					t.Errorf("WilsonLowerBound(%v, %d) = %v out of [0,1]", p, n, got)
				}
			}
		}
	})
}

func TestNormalizeAverage(t *testing.T) {
	tests := []struct {
		avg  float64
		want float64
	}{
		{1, 0},
		{3, 0.5},
		{5, 1},
		{0.5, 0},
		{5.5, 1},
	}
	for _, tt := range tests {
		if got := NormalizeAverage(tt.avg); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeAverage(%v) = %v, want %v", tt.avg, got, tt.want)
		}
	}
}

func TestCountWeight(t *testing.T) {
	if got := CountWeight(0); got != 0 {
		t.Errorf("CountWeight(0) = %v, want 0", got)
	}
	if got := CountWeight(9999); math.Abs(got-1) > 1e-4 {
		t.Errorf("CountWeight(9999) = %v, want ~1", got)
	}
	if low, high := CountWeight(10), CountWeight(1000); low >= high {
		t.Errorf("CountWeight not monotonic: %v >= %v", low, high)
	}
}
