// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package profile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// CacheInvalidator drops a user's cached candidate lists after a rebuild.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context, userID int64) error
}

// Sweeper walks every persisted profile and rebuilds the stale ones. It is
// run periodically under the supervisor so profiles converge without
// explicit rebuild requests.
type Sweeper struct {
	builder     *Builder
	profiles    recommend.ProfileStore
	invalidator CacheInvalidator
	logger      zerolog.Logger
}

// NewSweeper creates a sweeper. invalidator may be nil when no candidate
// cache is configured.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewSweeper(builder *Builder, profiles recommend.ProfileStore, invalidator CacheInvalidator, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		builder:     builder,
		profiles:    profiles,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "profile_sweeper").Logger(),
	}
}

// Sweep rebuilds every stale profile. A failing user is logged and skipped
// so one bad record cannot starve the rest of the sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	userIDs, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list profile users: %w", err)
	}

	var rebuilt, failed int
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		stale, err := s.builder.NeedsRefresh(ctx, userID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Staleness check failed")
			failed++
			continue
		}
		if !stale {
			continue
		}

		if _, err := s.builder.BuildProfile(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Profile rebuild failed")
			failed++
			continue
		}
		rebuilt++

		if s.invalidator != nil {
			if err := s.invalidator.InvalidateCache(ctx, userID); err != nil {
				s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Cache invalidation failed")
			}
		}
	}

	s.logger.Info().
		Int("users", len(userIDs)).
		Int("rebuilt", rebuilt).
		Int("failed", failed).
		Msg("Profile sweep completed")

	return nil
}
