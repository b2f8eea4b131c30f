// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package engagement implements the pure event-weighting function at the
// bottom of the recommendation pipeline.
//
// Score maps one reading-history event plus its engagement metadata to a
// signed weight: positive weights contribute to the taste vector, negative
// weights subtract from it, and zero means neutral/excluded. The function
// is deterministic and does no I/O, so it is unit-testable against literal
// inputs.
package engagement

import (
	"math"
	"time"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// Scoring constants. Multiplicative stages run in a fixed order; the shelf
// stage runs last and also determines sign.
const (
	fiveStarBonus = 2.0

	// High engagement selects the longer recency half-life.
	highEngagementCompletions = 3
	highEngagementAvgMinutes  = 15.0
	highEngagementMaxMinutes  = 120.0
	halfLifeHighYears         = 4.0
	halfLifeNormalYears       = 2.0

	recentActivityBoost = 1.1

	rereadBase = 1.5
	rereadCap  = 3.0

	sessionQualityCap     = 0.5
	sessionQualityDivisor = 30.0

	bingeCap     = 0.5
	bingeDivisor = 240.0

	authorLoyaltyThreshold = 3
	authorLoyaltyStep      = 0.25
	authorLoyaltyCap       = 2.0

	seriesVelocityMaxDays = 3
	seriesVelocityBoost   = 1.3

	purchaseBoost = 1.15

	currentlyReadingFactor = 0.8
	toReadFactor           = 0.3
	dnfNegativeFactor      = -0.5

	// A DNF after this much invested time reads as a deliberate move to
	// something new, not dislike, and scores exactly zero.
	dnfNeutralHours = 6.0

	hoursPerYear = 24 * 365.25
)

// Score computes the signed weight of one reading event as of now.
func Score(event recommend.ReadingEvent, now time.Time) float64 {
	m := 1.0

	// Explicit rating: 5 stars doubles, 1 star quarters.
	if event.Rating != nil {
		m *= math.Pow(2, float64(*event.Rating-3)/2)
		if *event.Rating == 5 {
			m *= fiveStarBonus
		}
	}

	m *= recencyDecay(event, now)

	// Reading intensity, log-scaled so marathon books don't dominate.
	if hours := event.Engagement.TotalHours(); hours > 0 {
		m *= 1 + math.Min(1, math.Log10(hours+1))
	}

	if event.Engagement.Recent30DayMinutes > 0 {
		m *= recentActivityBoost
	}

	if event.CompletionCount > 1 {
		m *= math.Min(rereadCap, math.Pow(rereadBase, float64(event.CompletionCount-1)))
	}

	m *= 1 + math.Min(sessionQualityCap, event.Engagement.AvgSessionMinutes/sessionQualityDivisor)
	m *= 1 + math.Min(bingeCap, event.Engagement.MaxSessionMinutes/bingeDivisor)

	if event.AuthorBooksRead >= authorLoyaltyThreshold {
		m *= math.Min(authorLoyaltyCap, 1+float64(event.AuthorBooksRead-2)*authorLoyaltyStep)
	}

	if d := event.DaysSincePreviousFinish; d != nil && *d >= 0 && *d <= seriesVelocityMaxDays {
		m *= seriesVelocityBoost
	}

	if event.Acquisition == recommend.AcquisitionPurchase {
		m *= purchaseBoost
	}

	return applyShelf(event, m)
}

// recencyDecay returns the half-life decay factor for the event's age.
// Age is measured from the finish date, falling back to the last-read
// timestamp; with neither, no decay applies.
func recencyDecay(event recommend.ReadingEvent, now time.Time) float64 {
	ref := event.FinishedAt
	if ref == nil {
		ref = event.Engagement.LastReadAt
	}
	if ref == nil {
		return 1
	}

	ageYears := now.Sub(*ref).Hours() / hoursPerYear
	if ageYears <= 0 {
		return 1
	}

	halfLife := halfLifeNormalYears
	if isHighEngagement(event.Engagement, event.CompletionCount) {
		halfLife = halfLifeHighYears
	}

	return math.Pow(0.5, ageYears/halfLife)
}

// isHighEngagement reports whether the event qualifies for the slower decay.
func isHighEngagement(m recommend.EngagementMetrics, completions int) bool {
	return completions >= highEngagementCompletions ||
		m.AvgSessionMinutes >= highEngagementAvgMinutes ||
		m.MaxSessionMinutes >= highEngagementMaxMinutes
}

// applyShelf applies the final sign/scale stage.
func applyShelf(event recommend.ReadingEvent, m float64) float64 {
	switch event.Shelf {
	case recommend.ShelfRead:
		return m
	case recommend.ShelfCurrentlyReading:
		return m * currentlyReadingFactor
	case recommend.ShelfToRead:
		return m * toReadFactor
	case recommend.ShelfDNF:
		if event.Engagement.TotalHours() >= dnfNeutralHours {
			return 0
		}
		return m * dnfNegativeFactor
	default:
		return 0
	}
}

// Signals derives the anchor explanation booleans from the same metadata
// the scorer uses.
func Signals(event recommend.ReadingEvent) recommend.AnchorSignals {
	return recommend.AnchorSignals{
		FiveStar:           event.Rating != nil && *event.Rating == 5,
		Reread:             event.CompletionCount > 1,
		Binge:              event.Engagement.MaxSessionMinutes >= highEngagementMaxMinutes,
		HighSessionQuality: event.Engagement.AvgSessionMinutes >= highEngagementAvgMinutes,
		AuthorLoyalty:      event.AuthorBooksRead >= authorLoyaltyThreshold,
		SeriesVelocity:     event.DaysSincePreviousFinish != nil && *event.DaysSincePreviousFinish >= 0 && *event.DaysSincePreviousFinish <= seriesVelocityMaxDays,
		Purchased:          event.Acquisition == recommend.AcquisitionPurchase,
	}
}
