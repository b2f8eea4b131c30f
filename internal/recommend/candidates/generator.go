// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package candidates generates scored recommendation candidates from
// multiple retrieval sources.
//
// Three modes share the same fusion and exclusion machinery: general
// (seeded by the profile vector), seed-book (seeded by one work) and
// category (subject/year constrained). Retrieval sources run in parallel
// and are individually optional: a failing source empties its contribution
// instead of failing the request. Only the metadata store and the user
// state store are required.
package candidates

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/candidatecache"
)

// Category is one named retrieval category with its subject and year
// constraints. Category definitions come from static configuration.
type Category struct {
	Slug            string   `json:"slug" koanf:"slug"`
	Subjects        []string `json:"subjects" koanf:"subjects"`
	ExcludeSubjects []string `json:"exclude_subjects" koanf:"exclude_subjects"`
	MinYear         int      `json:"min_year" koanf:"min_year"`
	MaxYear         int      `json:"max_year" koanf:"max_year"`
}

// ProfileProvider supplies the user profile. Satisfied by profile.Builder.
type ProfileProvider interface {
	GetOrBuildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error)
}

// Generator produces fused candidate lists. It is safe for concurrent use.
type Generator struct {
	vectors   recommend.VectorIndex
	graph     recommend.GraphStore
	collab    recommend.CollaborativeStore
	metadata  recommend.MetadataStore
	userState recommend.UserStateStore
	profiles  ProfileProvider
	cache     *candidatecache.Cache

	categories map[string]Category
	cfg        recommend.GeneratorConfig
	logger     zerolog.Logger
}

// NewGenerator creates a candidate generator. vectors, graph and collab may
// be nil, disabling their sources. cache may be nil, disabling caching.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewGenerator(
	vectors recommend.VectorIndex,
	graph recommend.GraphStore,
	collab recommend.CollaborativeStore,
	metadata recommend.MetadataStore,
	userState recommend.UserStateStore,
	profiles ProfileProvider,
	cache *candidatecache.Cache,
	categories []Category,
	cfg recommend.GeneratorConfig,
	logger zerolog.Logger,
) *Generator {
	bySlug := make(map[string]Category, len(categories))
	for _, c := range categories {
		bySlug[c.Slug] = c
	}

	return &Generator{
		vectors:    vectors,
		graph:      graph,
		collab:     collab,
		metadata:   metadata,
		userState:  userState,
		profiles:   profiles,
		cache:      cache,
		categories: bySlug,
		cfg:        cfg,
		logger:     logger.With().Str("component", "candidates").Logger(),
	}
}

// Generate returns up to limit candidates for the user's general feed.
// A user with an empty profile gets an empty result, not an error.
func (g *Generator) Generate(ctx context.Context, userID int64, limit int) ([]recommend.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", recommend.ErrInvalidLimit, limit)
	}

	key := candidatecache.Key(userID, "general", "")
	if cands, ok := g.cache.Get(ctx, key); ok {
		return truncate(cands, limit), nil
	}

	prof, err := g.profiles.GetOrBuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if prof.IsEmpty() {
		return []recommend.Candidate{}, nil
	}

	excl, blocks, err := g.exclusions(ctx, userID)
	if err != nil {
		return nil, err
	}

	anchorKeys := g.anchorCatalogKeys(ctx, prof.Anchors, g.cfg.CollaborativeAnchors)

	results := g.fanOut(ctx,
		g.vectorSource(prof.Vector, limit, excl),
		g.graphAnchorSource(prof.Anchors),
		g.communityAnchorSource(prof.Anchors, anchorKeys, limit),
		g.collaborativeAnchorSource(prof.Anchors, anchorKeys, limit),
	)

	fused := fuse(results, excl, g.cfg.Damping)

	fused, err = g.dropBlockedAuthors(ctx, fused, blocks)
	if err != nil {
		return nil, err
	}

	out := truncate(sortCandidates(fused), limit)
	g.cache.Put(ctx, key, out)
	return out, nil
}

// GenerateFromSeed returns up to limit candidates similar to one seed work.
// The seed itself is always excluded.
func (g *Generator) GenerateFromSeed(ctx context.Context, userID, seedWorkID int64, limit int) ([]recommend.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", recommend.ErrInvalidLimit, limit)
	}
	if seedWorkID <= 0 {
		return nil, fmt.Errorf("%w: %d", recommend.ErrInvalidSeed, seedWorkID)
	}

	key := candidatecache.Key(userID, "seed", strconv.FormatInt(seedWorkID, 10))
	if cands, ok := g.cache.Get(ctx, key); ok {
		return truncate(cands, limit), nil
	}

	meta, err := g.metadata.GetMetadata(ctx, []int64{seedWorkID})
	if err != nil {
		return nil, fmt.Errorf("get seed metadata: %w", err)
	}
	seedMeta, ok := meta[seedWorkID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown work %d", recommend.ErrInvalidSeed, seedWorkID)
	}

	excl, blocks, err := g.exclusions(ctx, userID)
	if err != nil {
		return nil, err
	}
	excl[seedWorkID] = struct{}{}

	// Seed embedding absence only empties the vector source.
	var seedEmbedding []float64
	if embs, err := g.metadata.GetEmbeddings(ctx, []int64{seedWorkID}); err == nil {
		seedEmbedding = embs[seedWorkID]
	}

	results := g.fanOut(ctx,
		g.vectorSource(seedEmbedding, limit, excl),
		g.graphSeedSource(seedWorkID),
		g.communitySeedSource(seedMeta.CatalogKey, limit),
		g.collaborativeSeedSource(seedMeta.CatalogKey, limit),
	)

	fused := fuse(results, excl, g.cfg.Damping)

	fused, err = g.dropBlockedAuthors(ctx, fused, blocks)
	if err != nil {
		return nil, err
	}

	out := truncate(sortCandidates(fused), limit)
	g.cache.Put(ctx, key, out)
	return out, nil
}

// GenerateForCategory returns up to limit candidates matching a named
// category, scored by profile similarity when a profile exists.
func (g *Generator) GenerateForCategory(ctx context.Context, userID int64, slug string, limit int) ([]recommend.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", recommend.ErrInvalidLimit, limit)
	}
	category, ok := g.categories[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %q", recommend.ErrUnknownCategory, slug)
	}

	key := candidatecache.Key(userID, "category", slug)
	if cands, ok := g.cache.Get(ctx, key); ok {
		return truncate(cands, limit), nil
	}

	excl, blocks, err := g.exclusions(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Over-fetch so exclusion filtering still leaves a full page.
	ids, err := g.metadata.FindByCategory(ctx,
		category.Subjects, category.ExcludeSubjects,
		category.MinYear, category.MaxYear, limit*2+len(excl))
	if err != nil {
		return nil, fmt.Errorf("find by category: %w", err)
	}

	kept := ids[:0:0]
	for _, id := range ids {
		if _, skip := excl[id]; !skip {
			kept = append(kept, id)
		}
	}

	cands, err := g.scoreCategoryCandidates(ctx, userID, kept)
	if err != nil {
		return nil, err
	}

	cands, err = g.dropBlockedAuthors(ctx, cands, blocks)
	if err != nil {
		return nil, err
	}

	out := truncate(sortCandidates(cands), limit)
	g.cache.Put(ctx, key, out)
	return out, nil
}

// InvalidateCache drops the user's cached candidates. Called after a
// profile rebuild.
func (g *Generator) InvalidateCache(ctx context.Context, userID int64) error {
	return g.cache.Invalidate(ctx, userID)
}

// exclusions builds the excluded-work set (already read plus explicitly
// blocked) and returns the raw blocks for author filtering.
func (g *Generator) exclusions(ctx context.Context, userID int64) (map[int64]struct{}, recommend.Blocks, error) {
	read, err := g.userState.GetReadWorkIDs(ctx, userID)
	if err != nil {
		return nil, recommend.Blocks{}, fmt.Errorf("get read works: %w", err)
	}
	blocks, err := g.userState.GetBlocks(ctx, userID)
	if err != nil {
		return nil, recommend.Blocks{}, fmt.Errorf("get blocks: %w", err)
	}

	excl := make(map[int64]struct{}, len(read)+len(blocks.WorkIDs))
	for _, id := range read {
		excl[id] = struct{}{}
	}
	for _, id := range blocks.WorkIDs {
		excl[id] = struct{}{}
	}
	return excl, blocks, nil
}

// scoreCategoryCandidates scores category matches by cosine similarity to
// the profile vector, falling back to the neutral constant when the user
// has no profile.
func (g *Generator) scoreCategoryCandidates(ctx context.Context, userID int64, ids []int64) ([]recommend.Candidate, error) {
	prof, err := g.profiles.GetOrBuildProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var embeddings map[int64][]float64
	if !prof.IsEmpty() {
		embeddings, err = g.metadata.GetEmbeddings(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get category embeddings: %w", err)
		}
	}

	cands := make([]recommend.Candidate, 0, len(ids))
	for _, id := range ids {
		score := g.cfg.NeutralCategoryScore
		if emb, ok := embeddings[id]; ok {
			score = clamp01(recommend.CosineSimilarity(prof.Vector, emb))
		}
		cands = append(cands, recommend.Candidate{
			WorkID: id,
			Score:  score,
			Source: recommend.SourceCategory,
		})
	}
	return cands, nil
}

// dropBlockedAuthors removes candidates sharing an author with the user's
// block list. Runs after fusion so a blocked author suppresses the work no
// matter which source found it.
func (g *Generator) dropBlockedAuthors(ctx context.Context, cands []recommend.Candidate, blocks recommend.Blocks) ([]recommend.Candidate, error) {
	if len(blocks.AuthorIDs) == 0 || len(cands) == 0 {
		return cands, nil
	}

	blocked := make(map[string]struct{}, len(blocks.AuthorIDs))
	for _, a := range blocks.AuthorIDs {
		blocked[a] = struct{}{}
	}

	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.WorkID)
	}
	meta, err := g.metadata.GetMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get metadata for author filter: %w", err)
	}

	kept := cands[:0:0]
	for _, c := range cands {
		if hasBlockedAuthor(meta[c.WorkID].Authors, blocked) {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

func hasBlockedAuthor(authors []string, blocked map[string]struct{}) bool {
	for _, a := range authors {
		if _, ok := blocked[a]; ok {
			return true
		}
	}
	return false
}

// sortCandidates orders by fused score descending, work ID ascending for
// determinism.
func sortCandidates(cands []recommend.Candidate) []recommend.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].WorkID < cands[j].WorkID
	})
	return cands
}

func truncate(cands []recommend.Candidate, limit int) []recommend.Candidate {
	if len(cands) > limit {
		return cands[:limit]
	}
	return cands
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
