// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package profile builds and maintains per-user taste profiles.
//
// A profile is a unit-length vector over the catalog embedding space plus
// a ranked list of anchor books. Building is a full replace and is
// idempotent: identical inputs produce an identical vector and anchor
// order.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/metrics"
	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/engagement"
)

// Builder constructs user profiles from reading history.
// It is safe for concurrent use.
type Builder struct {
	userState recommend.UserStateStore
	metadata  recommend.MetadataStore
	profiles  recommend.ProfileStore
	cfg       recommend.ProfileConfig
	logger    zerolog.Logger

	// now is injectable for deterministic tests.
	now func() time.Time
}

// NewBuilder creates a profile builder.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBuilder(
	userState recommend.UserStateStore,
	metadata recommend.MetadataStore,
	profiles recommend.ProfileStore,
	cfg recommend.ProfileConfig,
	logger zerolog.Logger,
) *Builder {
	return &Builder{
		userState: userState,
		metadata:  metadata,
		profiles:  profiles,
		cfg:       cfg,
		logger:    logger.With().Str("component", "profile").Logger(),
		now:       time.Now,
	}
}

// scoredEvent pairs an event with its computed weight and embedding.
type scoredEvent struct {
	event     recommend.ReadingEvent
	weight    float64
	embedding []float64
}

// BuildProfile rebuilds the user's profile from scratch and persists it.
// A user with no positive events gets an empty profile; that is a defined
// terminal state, not an error.
func (b *Builder) BuildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error) {
	start := time.Now()
	prof, err := b.buildProfile(ctx, userID)
	metrics.ProfileBuildDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.ProfileBuildsTotal.WithLabelValues("error").Inc()
	case prof.IsEmpty():
		metrics.ProfileBuildsTotal.WithLabelValues("empty").Inc()
	default:
		metrics.ProfileBuildsTotal.WithLabelValues("ok").Inc()
	}
	return prof, err
}

func (b *Builder) buildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error) {
	events, err := b.userState.GetReadingEvents(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get reading events: %w", err)
	}

	embeddings, err := b.fetchEmbeddings(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}

	// Only events with a catalog embedding can contribute to the vector.
	withEmbedding := events[:0:0]
	for _, e := range events {
		if _, ok := embeddings[e.WorkID]; ok {
			withEmbedding = append(withEmbedding, e)
		}
	}

	events = b.truncateByPriority(withEmbedding)

	positive, negative := b.scoreAndPartition(events, embeddings)

	prof := &recommend.UserProfile{
		UserID:  userID,
		BuiltAt: b.now(),
	}

	if len(positive) == 0 {
		b.logger.Debug().Int64("user_id", userID).Msg("no positive events, empty profile")
		if err := b.profiles.SaveProfile(ctx, prof); err != nil {
			return nil, fmt.Errorf("save profile: %w", err)
		}
		return prof, nil
	}

	prof.Vector = buildTasteVector(positive, negative, b.cfg.NegativeWeight)

	anchors, err := b.buildAnchors(ctx, positive)
	if err != nil {
		return nil, err
	}
	prof.Anchors = anchors

	if err := b.profiles.SaveProfile(ctx, prof); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}

	b.logger.Debug().
		Int64("user_id", userID).
		Int("events", len(events)).
		Int("anchors", len(prof.Anchors)).
		Msg("profile rebuilt")

	return prof, nil
}

// GetOrBuildProfile returns the persisted profile when present and
// non-empty, rebuilding otherwise.
func (b *Builder) GetOrBuildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error) {
	prof, err := b.profiles.GetProfile(ctx, userID)
	if err == nil && !prof.IsEmpty() {
		return prof, nil
	}
	if err != nil && !errorsIsNotFound(err) {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return b.BuildProfile(ctx, userID)
}

// NeedsRefresh reports whether reading events changed after the last build.
func (b *Builder) NeedsRefresh(ctx context.Context, userID int64) (bool, error) {
	prof, err := b.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errorsIsNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("get profile: %w", err)
	}

	latest, err := b.userState.LatestEventTime(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("latest event time: %w", err)
	}

	return latest.After(prof.BuiltAt), nil
}

// truncateByPriority bounds the event count, dropping lowest-priority
// events first (rating ascending, then oldest).
func (b *Builder) truncateByPriority(events []recommend.ReadingEvent) []recommend.ReadingEvent {
	if len(events) <= b.cfg.MaxEvents {
		return events
	}

	sorted := make([]recommend.ReadingEvent, len(events))
	copy(sorted, events)

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := eventRating(sorted[i]), eventRating(sorted[j])
		if ri != rj {
			return ri > rj
		}
		ti, tj := eventTime(sorted[i]), eventTime(sorted[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return sorted[i].WorkID < sorted[j].WorkID
	})

	return sorted[:b.cfg.MaxEvents]
}

// fetchEmbeddings loads embeddings for the events' works. Events without a
// catalog embedding are skipped by the caller.
func (b *Builder) fetchEmbeddings(ctx context.Context, events []recommend.ReadingEvent) (map[int64][]float64, error) {
	if len(events) == 0 {
		return map[int64][]float64{}, nil
	}

	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.WorkID)
	}

	return b.metadata.GetEmbeddings(ctx, ids)
}

// scoreAndPartition weighs each event and splits positives from negatives.
// Zero-weight events and events without embeddings contribute nothing.
func (b *Builder) scoreAndPartition(events []recommend.ReadingEvent, embeddings map[int64][]float64) (positive, negative []scoredEvent) {
	now := b.now()

	for _, e := range events {
		emb, ok := embeddings[e.WorkID]
		if !ok {
			continue
		}

		w := engagement.Score(e, now)
		se := scoredEvent{event: e, weight: w, embedding: emb}

		switch {
		case w > 0:
			positive = append(positive, se)
		case w < 0:
			negative = append(negative, se)
		}
	}

	return positive, negative
}

// buildTasteVector folds the scored events into one unit-length vector.
// The negative taste vector is subtracted at reduced weight so disliked
// books push the profile away without dominating it.
func buildTasteVector(positive, negative []scoredEvent, negativeWeight float64) []float64 {
	vec := weightedAverage(positive)

	if len(negative) > 0 {
		neg := weightedAverage(negative)
		vec = recommend.AddScaled(vec, neg, -negativeWeight)
	}

	return recommend.Normalize(vec)
}

// weightedAverage computes the |weight|-weighted mean of the embeddings.
func weightedAverage(events []scoredEvent) []float64 {
	var (
		sum       []float64
		weightSum float64
	)
	for _, se := range events {
		w := math.Abs(se.weight)
		sum = recommend.AddScaled(sum, se.embedding, w)
		weightSum += w
	}

	if weightSum == 0 {
		return sum
	}
	for i := range sum {
		sum[i] /= weightSum
	}
	return sum
}

// buildAnchors selects the top positive events by weight and attaches
// titles and explanation signals.
func (b *Builder) buildAnchors(ctx context.Context, positive []scoredEvent) ([]recommend.Anchor, error) {
	sorted := make([]scoredEvent, len(positive))
	copy(sorted, positive)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].weight != sorted[j].weight {
			return sorted[i].weight > sorted[j].weight
		}
		return sorted[i].event.WorkID < sorted[j].event.WorkID
	})

	if len(sorted) > b.cfg.AnchorCount {
		sorted = sorted[:b.cfg.AnchorCount]
	}

	ids := make([]int64, 0, len(sorted))
	for _, se := range sorted {
		ids = append(ids, se.event.WorkID)
	}

	meta, err := b.metadata.GetMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get anchor metadata: %w", err)
	}

	anchors := make([]recommend.Anchor, 0, len(sorted))
	for _, se := range sorted {
		anchors = append(anchors, recommend.Anchor{
			WorkID:  se.event.WorkID,
			Title:   meta[se.event.WorkID].Title,
			Weight:  se.weight,
			Signals: engagement.Signals(se.event),
		})
	}

	return anchors, nil
}

// eventRating returns the explicit rating or 0 when absent.
func eventRating(e recommend.ReadingEvent) int {
	if e.Rating == nil {
		return 0
	}
	return *e.Rating
}

// eventTime returns the event's recency reference: finish date, falling
// back to last-read time, falling back to the zero time.
func eventTime(e recommend.ReadingEvent) time.Time {
	if e.FinishedAt != nil {
		return *e.FinishedAt
	}
	if e.Engagement.LastReadAt != nil {
		return *e.Engagement.LastReadAt
	}
	return time.Time{}
}

// errorsIsNotFound reports whether err is the profile-absent sentinel.
func errorsIsNotFound(err error) bool {
	return errors.Is(err, recommend.ErrProfileNotFound)
}
