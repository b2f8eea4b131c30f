// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package recommend

import (
	"context"
	"time"
)

// VectorHit is one approximate nearest-neighbor result from the vector index.
type VectorHit struct {
	WorkID int64
	// Similarity is cosine similarity in [-1, 1]. ANN results are acceptable.
	Similarity float64
}

// VectorIndex is the external embedding index. The core never writes to it.
type VectorIndex interface {
	// KNN returns up to limit nearest neighbors of vector, excluding the
	// given work IDs. Results are ordered by descending similarity.
	KNN(ctx context.Context, vector []float64, limit int, exclude map[int64]struct{}) ([]VectorHit, error)
}

// GraphStore exposes the work-relationship graph (shared series, subjects,
// award lists and the like, resolved externally).
type GraphStore interface {
	// Neighbors returns works reachable from workID within maxHops.
	Neighbors(ctx context.Context, workID int64, maxHops int) ([]int64, error)

	// Proximity returns a [0,1] closeness signal between the user's history
	// and each given work. Works absent from the result have no proximity.
	Proximity(ctx context.Context, userID int64, workIDs []int64) (map[int64]float64, error)
}

// CoReadEntry is one "readers of this book also read" result.
type CoReadEntry struct {
	CatalogKey   string
	OverlapCount int
}

// ListMateEntry is one "appears together in curated lists" result.
type ListMateEntry struct {
	CatalogKey      string
	SharedListCount int
}

// CooccurrenceEntry is one Jaccard reader-overlap result.
type CooccurrenceEntry struct {
	CatalogKey string
	Jaccard    float64
}

// CollaborativeStore exposes reader-overlap lookups keyed by catalog key.
// All three lookups are optional sources: an unavailable collaborative
// store empties its contribution, it never fails a request.
type CollaborativeStore interface {
	AlsoRead(ctx context.Context, catalogKey string, limit int) ([]CoReadEntry, error)
	ListMates(ctx context.Context, catalogKey string, limit int) ([]ListMateEntry, error)
	SimilarByCooccurrence(ctx context.Context, catalogKey string, limit int) ([]CooccurrenceEntry, error)
}

// MetadataStore is the external catalog. It is a required dependency: if it
// is unreachable the request fails.
type MetadataStore interface {
	// GetMetadata returns metadata for the given works. Unknown IDs are
	// simply absent from the result map.
	GetMetadata(ctx context.Context, ids []int64) (map[int64]WorkMetadata, error)

	// GetEmbeddings returns embedding vectors for the given works. Works
	// without an embedding are absent from the result map. Kept separate
	// from GetMetadata so vector loads can be deferred until after pool
	// bounding.
	GetEmbeddings(ctx context.Context, ids []int64) (map[int64][]float64, error)

	// ResolveCatalogKeys maps external catalog keys back to canonical work
	// IDs. Identity resolution itself is the catalog's concern.
	ResolveCatalogKeys(ctx context.Context, keys []string) (map[string]int64, error)

	// FindByCategory returns works matching the subject/year constraints.
	FindByCategory(ctx context.Context, subjects, excludeSubjects []string, minYear, maxYear, limit int) ([]int64, error)
}

// QualityStore returns rating priors. Works with no ratings are absent from
// the result map; callers substitute the neutral default.
type QualityStore interface {
	GetQuality(ctx context.Context, ids []int64) (map[int64]QualityPrior, error)
}

// Blocks are the user's explicit exclusions.
type Blocks struct {
	WorkIDs   []int64  `json:"work_ids"`
	AuthorIDs []string `json:"author_ids"`
}

// UserStateStore exposes per-user reading state owned by ingestion.
type UserStateStore interface {
	// GetReadWorkIDs returns every work the user has already seen.
	GetReadWorkIDs(ctx context.Context, userID int64) ([]int64, error)

	// GetBlocks returns the user's explicitly blocked works and authors.
	GetBlocks(ctx context.Context, userID int64) (Blocks, error)

	// GetReadingEvents returns the user's full scored-history input.
	GetReadingEvents(ctx context.Context, userID int64) ([]ReadingEvent, error)

	// LatestEventTime returns the most recent modification time across the
	// user's reading events and engagement aggregates.
	LatestEventTime(ctx context.Context, userID int64) (time.Time, error)

	// GetWorkEngagement returns the user's own engagement with specific
	// works, including partial reads that never became reading events.
	GetWorkEngagement(ctx context.Context, userID int64, workIDs []int64) (map[int64]EngagementMetrics, error)
}

// ProfileStore persists user profiles. Rebuilds are full replaces.
type ProfileStore interface {
	// GetProfile returns the persisted profile or ErrProfileNotFound.
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)

	// SaveProfile upserts the profile.
	SaveProfile(ctx context.Context, profile *UserProfile) error

	// ListUserIDs returns every user with a persisted profile. Used by the
	// background refresh sweeper.
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// CacheStore is the durable candidate-cache tier. Implementations must be
// tolerant of unavailability: callers treat any error as a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}
