// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package candidates

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmark/shelfmark/internal/recommend"
	"github.com/shelfmark/shelfmark/internal/recommend/candidatecache"
)

// mockVectorIndex implements recommend.VectorIndex.
type mockVectorIndex struct {
	hits  []recommend.VectorHit
	err   error
	calls int
}

func (m *mockVectorIndex) KNN(ctx context.Context, vector []float64, limit int, exclude map[int64]struct{}) ([]recommend.VectorHit, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []recommend.VectorHit
	for _, h := range m.hits {
		if _, skip := exclude[h.WorkID]; skip {
			continue
		}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// mockGraph implements recommend.GraphStore.
type mockGraph struct {
	neighbors map[int64][]int64
	proximity map[int64]float64
	err       error
}

func (m *mockGraph) Neighbors(ctx context.Context, workID int64, maxHops int) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.neighbors[workID], nil
}

func (m *mockGraph) Proximity(ctx context.Context, userID int64, workIDs []int64) (map[int64]float64, error) {
	return m.proximity, nil
}

// mockCollab implements recommend.CollaborativeStore.
type mockCollab struct {
	alsoRead  map[string][]recommend.CoReadEntry
	listMates map[string][]recommend.ListMateEntry
	similar   map[string][]recommend.CooccurrenceEntry
	err       error
}

func (m *mockCollab) AlsoRead(ctx context.Context, catalogKey string, limit int) ([]recommend.CoReadEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.alsoRead[catalogKey], nil
}

func (m *mockCollab) ListMates(ctx context.Context, catalogKey string, limit int) ([]recommend.ListMateEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.listMates[catalogKey], nil
}

func (m *mockCollab) SimilarByCooccurrence(ctx context.Context, catalogKey string, limit int) ([]recommend.CooccurrenceEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.similar[catalogKey], nil
}

// mockMetadata implements recommend.MetadataStore.
type mockMetadata struct {
	metadata   map[int64]recommend.WorkMetadata
	embeddings map[int64][]float64
	keys       map[string]int64
	byCategory []int64
}

func (m *mockMetadata) GetMetadata(ctx context.Context, ids []int64) (map[int64]recommend.WorkMetadata, error) {
	out := make(map[int64]recommend.WorkMetadata)
	for _, id := range ids {
		if md, ok := m.metadata[id]; ok {
			out[id] = md
		}
	}
	return out, nil
}

func (m *mockMetadata) GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float64, error) {
	out := make(map[int64][]float64)
	for _, id := range ids {
		if e, ok := m.embeddings[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

func (m *mockMetadata) ResolveCatalogKeys(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64)
	for _, k := range keys {
		if id, ok := m.keys[k]; ok {
			out[k] = id
		}
	}
	return out, nil
}

func (m *mockMetadata) FindByCategory(ctx context.Context, subjects, excludeSubjects []string, minYear, maxYear, limit int) ([]int64, error) {
	if len(m.byCategory) > limit {
		return m.byCategory[:limit], nil
	}
	return m.byCategory, nil
}

// mockUserState implements recommend.UserStateStore.
type mockUserState struct {
	readWorkIDs []int64
	blocks      recommend.Blocks
}

func (m *mockUserState) GetReadWorkIDs(ctx context.Context, userID int64) ([]int64, error) {
	return m.readWorkIDs, nil
}

func (m *mockUserState) GetBlocks(ctx context.Context, userID int64) (recommend.Blocks, error) {
	return m.blocks, nil
}

func (m *mockUserState) GetReadingEvents(ctx context.Context, userID int64) ([]recommend.ReadingEvent, error) {
	return nil, nil
}

func (m *mockUserState) LatestEventTime(ctx context.Context, userID int64) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockUserState) GetWorkEngagement(ctx context.Context, userID int64, workIDs []int64) (map[int64]recommend.EngagementMetrics, error) {
	return nil, nil
}

// mockProfiles implements ProfileProvider.
type mockProfiles struct {
	profile *recommend.UserProfile
	err     error
}

func (m *mockProfiles) GetOrBuildProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.profile, nil
}

type fixture struct {
	vectors  *mockVectorIndex
	graph    *mockGraph
	collab   *mockCollab
	metadata *mockMetadata
	state    *mockUserState
	profiles *mockProfiles
}

func newFixture() *fixture {
	return &fixture{
		vectors: &mockVectorIndex{hits: []recommend.VectorHit{
			{WorkID: 100, Similarity: 0.9},
			{WorkID: 101, Similarity: 0.8},
			{WorkID: 200, Similarity: 0.6},
		}},
		graph: &mockGraph{neighbors: map[int64][]int64{
			10: {200},
			11: {201},
		}},
		collab: &mockCollab{
			listMates: map[string][]recommend.ListMateEntry{
				"OL10W": {{CatalogKey: "OL300W", SharedListCount: 4}},
			},
			similar: map[string][]recommend.CooccurrenceEntry{
				"OL10W": {{CatalogKey: "OL301W", Jaccard: 0.35}},
			},
			alsoRead: map[string][]recommend.CoReadEntry{},
		},
		metadata: &mockMetadata{
			metadata: map[int64]recommend.WorkMetadata{
				10:  {ID: 10, CatalogKey: "OL10W", Authors: []string{"Anne Writer"}},
				11:  {ID: 11, CatalogKey: "OL11W"},
				100: {ID: 100, Authors: []string{"Anne Writer"}},
				101: {ID: 101, Authors: []string{"Bob Author"}},
				200: {ID: 200},
				201: {ID: 201},
				300: {ID: 300},
				301: {ID: 301},
			},
			embeddings: map[int64][]float64{},
			keys: map[string]int64{
				"OL300W": 300,
				"OL301W": 301,
			},
		},
		state: &mockUserState{},
		profiles: &mockProfiles{profile: &recommend.UserProfile{
			UserID: 1,
			Vector: []float64{1, 0},
			Anchors: []recommend.Anchor{
				{WorkID: 10, Weight: 2.0},
				{WorkID: 11, Weight: 1.0},
			},
			BuiltAt: time.Now(),
		}},
	}
}

func (f *fixture) generator(cache *candidatecache.Cache, categories ...Category) *Generator {
	return NewGenerator(
		f.vectors, f.graph, f.collab, f.metadata, f.state, f.profiles,
		cache, categories, recommend.DefaultConfig().Generator, zerolog.Nop(),
	)
}

func scoreOf(t *testing.T, cands []recommend.Candidate, workID int64) float64 {
	t.Helper()
	for _, c := range cands {
		if c.WorkID == workID {
			return c.Score
		}
	}
	t.Fatalf("work %d not in candidates %+v", workID, cands)
	return 0
}

func TestGenerateInvalidLimit(t *testing.T) {
	g := newFixture().generator(nil)
	if _, err := g.Generate(context.Background(), 1, 0); !errors.Is(err, recommend.ErrInvalidLimit) {
		t.Errorf("Generate(limit=0) error = %v, want ErrInvalidLimit", err)
	}
}

func TestGenerateEmptyProfile(t *testing.T) {
	f := newFixture()
	f.profiles.profile = &recommend.UserProfile{UserID: 1}

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("Generate() with empty profile = %+v, want empty", cands)
	}
}

func TestGenerateExcludesReadAndBlocked(t *testing.T) {
	f := newFixture()
	f.state.readWorkIDs = []int64{100, 200}
	f.state.blocks = recommend.Blocks{WorkIDs: []int64{101}}

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, c := range cands {
		switch c.WorkID {
		case 100, 101, 200:
			t.Errorf("excluded work %d returned", c.WorkID)
		}
	}
	if len(cands) == 0 {
		t.Error("Generate() returned nothing, want remaining sources' hits")
	}
}

func TestGenerateFusion(t *testing.T) {
	f := newFixture()

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Work 200 is found by vector (0.6) and graph (0.5 x 2.0/2.0 = 0.5);
	// the graph contribution fuses damped: 0.6 + 0.5*0.2.
	if got, want := scoreOf(t, cands, 200), 0.6+0.5*0.2; math.Abs(got-want) > 1e-9 {
		t.Errorf("fused score for 200 = %v, want %v", got, want)
	}

	// Work 201 is graph-only from the half-weight anchor: 0.5 x 0.5.
	if got, want := scoreOf(t, cands, 201), 0.25; math.Abs(got-want) > 1e-9 {
		t.Errorf("graph score for 201 = %v, want %v", got, want)
	}

	// Work 301 is collaborative-only: raw Jaccard.
	if got, want := scoreOf(t, cands, 301), 0.35; math.Abs(got-want) > 1e-9 {
		t.Errorf("collaborative score for 301 = %v, want %v", got, want)
	}

	// Work 300 is community-only: 0.3 x normalized anchor weight 1.0.
	if got, want := scoreOf(t, cands, 300), 0.3; math.Abs(got-want) > 1e-9 {
		t.Errorf("community score for 300 = %v, want %v", got, want)
	}

	// First-seen source tag survives fusion.
	for _, c := range cands {
		if c.WorkID == 200 && c.Source != recommend.SourceVector {
			t.Errorf("source tag for 200 = %s, want vector", c.Source)
		}
	}

	// Sorted descending.
	for i := 1; i < len(cands); i++ {
		if cands[i].Score > cands[i-1].Score {
			t.Errorf("candidates not sorted at %d: %+v", i, cands)
		}
	}
}

func TestGenerateScoreCap(t *testing.T) {
	f := newFixture()
	f.vectors.hits = []recommend.VectorHit{{WorkID: 200, Similarity: 0.95}}
	f.graph.neighbors = map[int64][]int64{10: {200}, 11: {200}}

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := scoreOf(t, cands, 200); got > 1.0 {
		t.Errorf("fused score %v exceeds 1.0", got)
	}
}

func TestGenerateOptionalSourceFailure(t *testing.T) {
	f := newFixture()
	f.graph.err = errors.New("graph store down")
	f.collab.err = errors.New("collab store down")

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() with failing optional sources error = %v", err)
	}

	// Vector hits survive.
	if len(cands) != 3 {
		t.Errorf("Generate() = %d candidates, want 3 vector hits", len(cands))
	}
}

func TestGenerateAuthorBlock(t *testing.T) {
	f := newFixture()
	f.state.blocks = recommend.Blocks{AuthorIDs: []string{"Anne Writer"}}

	cands, err := f.generator(nil).Generate(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, c := range cands {
		if c.WorkID == 100 {
			t.Error("work by blocked author returned")
		}
	}
}

func TestGenerateCacheAside(t *testing.T) {
	f := newFixture()
	cache := candidatecache.New(recommend.CacheConfig{
		Enabled:      true,
		FastCapacity: 16,
		FastTTL:      time.Minute,
		DurableTTL:   time.Hour,
	}, nil, zerolog.Nop())

	g := f.generator(cache)
	ctx := context.Background()

	first, err := g.Generate(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := g.Generate(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if f.vectors.calls != 1 {
		t.Errorf("vector index called %d times, want 1 (second call cached)", f.vectors.calls)
	}
	if len(first) != len(second) {
		t.Fatalf("cached result length differs: %d != %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("cached candidate %d = %+v, want %+v", i, second[i], first[i])
		}
	}

	// Invalidation forces a recompute.
	if err := g.InvalidateCache(ctx, 1); err != nil {
		t.Fatalf("InvalidateCache() error = %v", err)
	}
	if _, err := g.Generate(ctx, 1, 10); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if f.vectors.calls != 2 {
		t.Errorf("vector index called %d times after invalidation, want 2", f.vectors.calls)
	}
}

func TestGenerateFromSeed(t *testing.T) {
	f := newFixture()
	f.metadata.embeddings[10] = []float64{0, 1}
	f.collab.alsoRead["OL10W"] = []recommend.CoReadEntry{
		{CatalogKey: "OL300W", OverlapCount: 40},
		{CatalogKey: "OL301W", OverlapCount: 20},
	}

	cands, err := f.generator(nil).GenerateFromSeed(context.Background(), 1, 10, 10)
	if err != nil {
		t.Fatalf("GenerateFromSeed() error = %v", err)
	}

	// The seed itself is excluded.
	for _, c := range cands {
		if c.WorkID == 10 {
			t.Error("seed work returned as candidate")
		}
	}

	// Work 300 is first found by the community source (0.3), then the
	// collaborative source adds its normalized also-read score damped:
	// 0.3 + (40/40)*0.3 = 0.6.
	if got := scoreOf(t, cands, 300); math.Abs(got-0.6) > 1e-9 {
		t.Errorf("fused seed score for 300 = %v, want 0.6", got)
	}
	if got := scoreOf(t, cands, 301); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("also-read score for 301 = %v, want 0.5", got)
	}

	// Graph expansion from the seed contributes at full seed factor.
	if got := scoreOf(t, cands, 200); got < 0.5 {
		t.Errorf("graph seed score for 200 = %v, want >= 0.5", got)
	}
}

func TestGenerateFromSeedInvalid(t *testing.T) {
	g := newFixture().generator(nil)
	ctx := context.Background()

	if _, err := g.GenerateFromSeed(ctx, 1, -5, 10); !errors.Is(err, recommend.ErrInvalidSeed) {
		t.Errorf("GenerateFromSeed(seed=-5) error = %v, want ErrInvalidSeed", err)
	}
	if _, err := g.GenerateFromSeed(ctx, 1, 9999, 10); !errors.Is(err, recommend.ErrInvalidSeed) {
		t.Errorf("GenerateFromSeed(unknown seed) error = %v, want ErrInvalidSeed", err)
	}
}

func TestGenerateForCategory(t *testing.T) {
	category := Category{Slug: "science-fiction", Subjects: []string{"Science Fiction"}}

	t.Run("unknown slug", func(t *testing.T) {
		g := newFixture().generator(nil, category)
		_, err := g.GenerateForCategory(context.Background(), 1, "nope", 10)
		if !errors.Is(err, recommend.ErrUnknownCategory) {
			t.Errorf("error = %v, want ErrUnknownCategory", err)
		}
	})

	t.Run("profile similarity scoring", func(t *testing.T) {
		f := newFixture()
		f.metadata.byCategory = []int64{100, 101}
		f.metadata.embeddings[100] = []float64{1, 0}  // aligned with profile
		f.metadata.embeddings[101] = []float64{0, 1}  // orthogonal

		cands, err := f.generator(nil, category).GenerateForCategory(context.Background(), 1, "science-fiction", 10)
		if err != nil {
			t.Fatalf("GenerateForCategory() error = %v", err)
		}

		if got := scoreOf(t, cands, 100); math.Abs(got-1.0) > 1e-9 {
			t.Errorf("aligned work score = %v, want 1.0", got)
		}
		if got := scoreOf(t, cands, 101); got != 0 {
			t.Errorf("orthogonal work score = %v, want 0", got)
		}
		for _, c := range cands {
			if c.Source != recommend.SourceCategory {
				t.Errorf("source = %s, want category", c.Source)
			}
		}
	})

	t.Run("neutral score without profile", func(t *testing.T) {
		f := newFixture()
		f.profiles.profile = &recommend.UserProfile{UserID: 1}
		f.metadata.byCategory = []int64{100}

		cands, err := f.generator(nil, category).GenerateForCategory(context.Background(), 1, "science-fiction", 10)
		if err != nil {
			t.Fatalf("GenerateForCategory() error = %v", err)
		}
		if got := scoreOf(t, cands, 100); got != 0.5 {
			t.Errorf("neutral score = %v, want 0.5", got)
		}
	})

	t.Run("excludes read works", func(t *testing.T) {
		f := newFixture()
		f.state.readWorkIDs = []int64{100}
		f.metadata.byCategory = []int64{100, 101}

		cands, err := f.generator(nil, category).GenerateForCategory(context.Background(), 1, "science-fiction", 10)
		if err != nil {
			t.Fatalf("GenerateForCategory() error = %v", err)
		}
		for _, c := range cands {
			if c.WorkID == 100 {
				t.Error("read work returned in category results")
			}
		}
	})
}
