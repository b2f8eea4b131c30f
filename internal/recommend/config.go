// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package recommend

import (
	"fmt"
	"time"
)

// Config contains all tuning parameters for the recommendation pipeline.
type Config struct {
	// Profile contains profile-builder parameters.
	Profile ProfileConfig `json:"profile" koanf:"profile"`

	// Generator contains candidate-generation parameters.
	Generator GeneratorConfig `json:"generator" koanf:"generator"`

	// Rerank contains MMR re-ranking parameters.
	Rerank RerankConfig `json:"rerank" koanf:"rerank"`

	// Cache contains candidate-cache parameters.
	Cache CacheConfig `json:"cache" koanf:"cache"`
}

// ProfileConfig contains parameters for the profile builder.
type ProfileConfig struct {
	// MaxEvents bounds how many reading events feed one profile build.
	// Lowest-priority events (rating asc, oldest first) are truncated.
	// Default: 500.
	MaxEvents int `json:"max_events" koanf:"max_events"`

	// AnchorCount is how many top positive events become anchors.
	// Default: 10.
	AnchorCount int `json:"anchor_count" koanf:"anchor_count"`

	// NegativeWeight scales the subtracted negative-taste vector.
	// Default: 0.3.
	NegativeWeight float64 `json:"negative_weight" koanf:"negative_weight"`
}

// SourceDamping contains the per-source additive damping factors applied
// when a work is found by more than one retrieval source. The first source
// to find a work sets its score; later sources add damped contributions,
// capped at 1.0, never overwriting.
type SourceDamping struct {
	// Graph damping. Default: 0.2.
	Graph float64 `json:"graph" koanf:"graph"`

	// Collaborative damping. Default: 0.3.
	Collaborative float64 `json:"collaborative" koanf:"collaborative"`

	// Community damping. Default: 0.15.
	Community float64 `json:"community" koanf:"community"`
}

// GeneratorConfig contains parameters for candidate generation.
type GeneratorConfig struct {
	// GraphAnchors is how many top anchors seed graph expansion.
	// Default: 5.
	GraphAnchors int `json:"graph_anchors" koanf:"graph_anchors"`

	// CommunityAnchors is how many top anchors seed curated-list lookups.
	// Default: 3.
	CommunityAnchors int `json:"community_anchors" koanf:"community_anchors"`

	// CollaborativeAnchors is how many top anchors seed co-occurrence
	// lookups. Default: 10.
	CollaborativeAnchors int `json:"collaborative_anchors" koanf:"collaborative_anchors"`

	// MaxHops bounds graph-neighbor expansion. Default: 2.
	MaxHops int `json:"max_hops" koanf:"max_hops"`

	// GraphSeedFactor scales anchor weight into graph-hit scores.
	// Default: 0.5.
	GraphSeedFactor float64 `json:"graph_seed_factor" koanf:"graph_seed_factor"`

	// CommunitySeedFactor scales anchor weight into community-hit scores.
	// Default: 0.3.
	CommunitySeedFactor float64 `json:"community_seed_factor" koanf:"community_seed_factor"`

	// Damping contains the per-source fusion damping factors.
	Damping SourceDamping `json:"damping" koanf:"damping"`

	// NeutralCategoryScore is assigned to category candidates when the user
	// has no profile vector. Default: 0.5.
	NeutralCategoryScore float64 `json:"neutral_category_score" koanf:"neutral_category_score"`
}

// ScoreWeights are the base-score blend weights used by the re-ranker.
// Novelty is handled separately, so these must sum to at most 1.
type ScoreWeights struct {
	// Relevance weight. Default: 0.4.
	Relevance float64 `json:"relevance" koanf:"relevance"`

	// Quality weight. Default: 0.25.
	Quality float64 `json:"quality" koanf:"quality"`

	// Graph weight. Default: 0.2.
	Graph float64 `json:"graph" koanf:"graph"`

	// Engagement weight. Default: 0.1.
	Engagement float64 `json:"engagement" koanf:"engagement"`
}

// Sum returns the total of all weights.
func (w ScoreWeights) Sum() float64 {
	return w.Relevance + w.Quality + w.Graph + w.Engagement
}

// RerankConfig contains parameters for MMR re-ranking.
type RerankConfig struct {
	// Lambda balances base score against novelty (0 = pure relevance).
	// Default: 0.3.
	Lambda float64 `json:"lambda" koanf:"lambda"`

	// NoveltyWeight scales the novelty term. Default: 0.15.
	NoveltyWeight float64 `json:"novelty_weight" koanf:"novelty_weight"`

	// AuthorPenalty is subtracted once per already-selected shared author.
	// Default: 0.1.
	AuthorPenalty float64 `json:"author_penalty" koanf:"author_penalty"`

	// PoolFactor bounds the MMR pool to PoolFactor*limit candidates, which
	// in turn bounds the deferred embedding fetch. Default: 2.
	PoolFactor int `json:"pool_factor" koanf:"pool_factor"`

	// Weights are the base-score blend weights.
	Weights ScoreWeights `json:"weights" koanf:"weights"`
}

// CacheConfig contains candidate-cache parameters.
type CacheConfig struct {
	// Enabled toggles the cache entirely.
	Enabled bool `json:"enabled" koanf:"enabled"`

	// FastCapacity bounds the volatile LRU tier entry count. Default: 4096.
	FastCapacity int `json:"fast_capacity" koanf:"fast_capacity"`

	// FastTTL is the volatile-tier entry lifetime. Default: 5m.
	FastTTL time.Duration `json:"fast_ttl" koanf:"fast_ttl"`

	// DurableTTL is the durable-tier entry lifetime. Default: 6h.
	DurableTTL time.Duration `json:"durable_ttl" koanf:"durable_ttl"`
}

// DefaultConfig returns the reference pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Profile: ProfileConfig{
			MaxEvents:      500,
			AnchorCount:    10,
			NegativeWeight: 0.3,
		},
		Generator: GeneratorConfig{
			GraphAnchors:         5,
			CommunityAnchors:     3,
			CollaborativeAnchors: 10,
			MaxHops:              2,
			GraphSeedFactor:      0.5,
			CommunitySeedFactor:  0.3,
			Damping: SourceDamping{
				Graph:         0.2,
				Collaborative: 0.3,
				Community:     0.15,
			},
			NeutralCategoryScore: 0.5,
		},
		Rerank: RerankConfig{
			Lambda:        0.3,
			NoveltyWeight: 0.15,
			AuthorPenalty: 0.1,
			PoolFactor:    2,
			Weights: ScoreWeights{
				Relevance:  0.4,
				Quality:    0.25,
				Graph:      0.2,
				Engagement: 0.1,
			},
		},
		Cache: CacheConfig{
			Enabled:      true,
			FastCapacity: 4096,
			FastTTL:      5 * time.Minute,
			DurableTTL:   6 * time.Hour,
		},
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Profile.MaxEvents <= 0 {
		return fmt.Errorf("profile.max_events must be positive, got %d", c.Profile.MaxEvents)
	}
	if c.Profile.AnchorCount <= 0 {
		return fmt.Errorf("profile.anchor_count must be positive, got %d", c.Profile.AnchorCount)
	}
	if c.Profile.NegativeWeight < 0 || c.Profile.NegativeWeight > 1 {
		return fmt.Errorf("profile.negative_weight must be in [0,1], got %f", c.Profile.NegativeWeight)
	}

	if c.Generator.MaxHops <= 0 {
		return fmt.Errorf("generator.max_hops must be positive, got %d", c.Generator.MaxHops)
	}
	for name, d := range map[string]float64{
		"graph":         c.Generator.Damping.Graph,
		"collaborative": c.Generator.Damping.Collaborative,
		"community":     c.Generator.Damping.Community,
	} {
		if d < 0 || d > 1 {
			return fmt.Errorf("generator.damping.%s must be in [0,1], got %f", name, d)
		}
	}

	if c.Rerank.Lambda < 0 || c.Rerank.Lambda > 1 {
		return fmt.Errorf("rerank.lambda must be in [0,1], got %f", c.Rerank.Lambda)
	}
	if c.Rerank.PoolFactor < 1 {
		return fmt.Errorf("rerank.pool_factor must be at least 1, got %d", c.Rerank.PoolFactor)
	}
	if sum := c.Rerank.Weights.Sum(); sum <= 0 || sum > 1 {
		return fmt.Errorf("rerank.weights must sum to (0,1], got %f", sum)
	}

	if c.Cache.Enabled {
		if c.Cache.FastCapacity <= 0 {
			return fmt.Errorf("cache.fast_capacity must be positive, got %d", c.Cache.FastCapacity)
		}
		if c.Cache.FastTTL <= 0 || c.Cache.DurableTTL <= 0 {
			return fmt.Errorf("cache TTLs must be positive")
		}
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
