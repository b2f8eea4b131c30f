// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package recommend

import (
	"time"
)

// Shelf is the reading-status label attached to a reading event.
type Shelf int

const (
	// ShelfRead indicates the book was finished.
	ShelfRead Shelf = iota
	// ShelfCurrentlyReading indicates the book is in progress.
	ShelfCurrentlyReading
	// ShelfToRead indicates the book is queued but unread.
	ShelfToRead
	// ShelfDNF indicates the book was abandoned ("did not finish").
	ShelfDNF
)

// String returns the wire name for the shelf.
func (s Shelf) String() string {
	switch s {
	case ShelfRead:
		return "read"
	case ShelfCurrentlyReading:
		return "currently-reading"
	case ShelfToRead:
		return "to-read"
	case ShelfDNF:
		return "dnf"
	default:
		return "unknown"
	}
}

// AcquisitionType records how the user obtained the book.
type AcquisitionType int

const (
	// AcquisitionUnknown is the zero value when no acquisition data exists.
	AcquisitionUnknown AcquisitionType = iota
	// AcquisitionPurchase indicates a paid purchase.
	AcquisitionPurchase
	// AcquisitionSubscription indicates a subscription borrow.
	AcquisitionSubscription
	// AcquisitionBorrow indicates a library or personal loan.
	AcquisitionBorrow
)

// String returns the wire name for the acquisition type.
func (a AcquisitionType) String() string {
	switch a {
	case AcquisitionPurchase:
		return "purchase"
	case AcquisitionSubscription:
		return "subscription"
	case AcquisitionBorrow:
		return "borrow"
	default:
		return "unknown"
	}
}

// EngagementMetrics aggregates time-on-book signals for one user-work pair.
// Produced by ingestion; consumed read-only by the scorer and re-ranker.
type EngagementMetrics struct {
	// TotalMinutes is the total time spent on the book.
	TotalMinutes float64 `json:"total_minutes"`

	// SessionCount is the number of distinct reading sessions.
	SessionCount int `json:"session_count"`

	// AvgSessionMinutes is the mean session length.
	AvgSessionMinutes float64 `json:"avg_session_minutes"`

	// MaxSessionMinutes is the longest single session.
	MaxSessionMinutes float64 `json:"max_session_minutes"`

	// Recent30DayMinutes is time spent on the book in the last 30 days.
	Recent30DayMinutes float64 `json:"recent_30_day_minutes"`

	// LastReadAt is the most recent session timestamp, if known.
	LastReadAt *time.Time `json:"last_read_at,omitempty"`
}

// TotalHours converts TotalMinutes to hours.
func (m EngagementMetrics) TotalHours() float64 {
	return m.TotalMinutes / 60.0
}

// ReadingEvent is one immutable reading-history record. Optional fields use
// pointers so absence is explicit rather than inferred from zero values;
// presence is validated once at the ingestion boundary.
type ReadingEvent struct {
	// UserID identifies the reader.
	UserID int64 `json:"user_id"`

	// WorkID identifies the canonical book record.
	WorkID int64 `json:"work_id"`

	// Shelf is the reading-status label.
	Shelf Shelf `json:"shelf"`

	// Rating is the explicit 1-5 star rating, if given.
	Rating *int `json:"rating,omitempty"`

	// FinishedAt is when the user finished the book, if recorded.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Engagement holds the derived time-on-book aggregates.
	Engagement EngagementMetrics `json:"engagement"`

	// CompletionCount is the number of complete reads (re-reads included).
	CompletionCount int `json:"completion_count"`

	// AuthorBooksRead is the highest per-author count of this work's
	// authors the user has read.
	AuthorBooksRead int `json:"author_books_read"`

	// DaysSincePreviousFinish is the gap to the user's previous finished
	// book, if both finish dates are known.
	DaysSincePreviousFinish *int `json:"days_since_previous_finish,omitempty"`

	// Acquisition records how the user obtained the book.
	Acquisition AcquisitionType `json:"acquisition"`
}

// AnchorSignals are the named booleans explaining why an anchor's weight is
// high. They are derived from the same engagement metadata used for scoring.
type AnchorSignals struct {
	FiveStar           bool `json:"five_star"`
	Reread             bool `json:"reread"`
	Binge              bool `json:"binge"`
	HighSessionQuality bool `json:"high_session_quality"`
	AuthorLoyalty      bool `json:"author_loyalty"`
	SeriesVelocity     bool `json:"series_velocity"`
	Purchased          bool `json:"purchased"`
}

// Anchor is a high-weight book from the user's history, used both to explain
// recommendations and to seed graph/collaborative expansion.
type Anchor struct {
	WorkID  int64         `json:"work_id"`
	Title   string        `json:"title"`
	Weight  float64       `json:"weight"`
	Signals AnchorSignals `json:"signals"`
}

// UserProfile is the per-user taste model: a unit-length vector plus ranked
// anchors. Rebuilt lazily; a rebuild is a full replace.
type UserProfile struct {
	UserID  int64     `json:"user_id"`
	Vector  []float64 `json:"vector"`
	Anchors []Anchor  `json:"anchors"`
	BuiltAt time.Time `json:"built_at"`
}

// IsEmpty reports whether the profile carries no taste signal. An empty
// profile is a defined terminal state for users with no positive events,
// not an error.
func (p *UserProfile) IsEmpty() bool {
	return p == nil || len(p.Vector) == 0
}

// Source tags which retrieval source produced a candidate.
type Source string

const (
	// SourceVector marks nearest-neighbor hits from the vector index.
	SourceVector Source = "vector"
	// SourceGraph marks bounded-hop graph-neighbor expansion hits.
	SourceGraph Source = "graph"
	// SourceCollaborative marks co-occurrence and reader-overlap hits.
	SourceCollaborative Source = "collaborative"
	// SourceCategory marks subject/year category matches.
	SourceCategory Source = "category"
	// SourceTrending marks popularity-driven fallback hits.
	SourceTrending Source = "trending"
)

// Candidate is an ephemeral scored retrieval result. Candidates live only
// for the duration of a request or a cache TTL.
type Candidate struct {
	WorkID int64   `json:"work_id"`
	Score  float64 `json:"score"`
	Source Source  `json:"source"`
}

// WorkMetadata is read-only reference data owned by the external catalog.
type WorkMetadata struct {
	ID         int64    `json:"id"`
	CatalogKey string   `json:"catalog_key"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Year       int      `json:"year,omitempty"`
	Subjects   []string `json:"subjects,omitempty"`
}

// QualityPrior is a blended, count-aware rating summary for one work.
// Recomputed periodically outside the core.
type QualityPrior struct {
	WorkID int64 `json:"work_id"`

	// BlendedAverage is the count-weighted mean rating on the 1-5 scale.
	BlendedAverage float64 `json:"blended_average"`

	// BlendedLowerBound is the Wilson-style conservative estimate in [0,1].
	BlendedLowerBound float64 `json:"blended_lower_bound"`

	// TotalRatingCount is the combined rating count across sources.
	TotalRatingCount int64 `json:"total_rating_count"`
}

// Grade is the letter bucket assigned to a final score.
type Grade string

// Grade buckets, best to worst.
const (
	GradeAPlus  Grade = "A+"
	GradeA      Grade = "A"
	GradeAMinus Grade = "A-"
	GradeBPlus  Grade = "B+"
	GradeB      Grade = "B"
	GradeBMinus Grade = "B-"
)

// RankedRecommendation is one re-ranked output row. Slice order is the rank.
type RankedRecommendation struct {
	WorkID  int64    `json:"work_id"`
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    int      `json:"year,omitempty"`

	// RelevanceScore is the fused retrieval score carried in from the
	// candidate generator.
	RelevanceScore float64 `json:"relevance_score"`

	// QualityScore is the blended rating prior contribution in [0,1].
	QualityScore float64 `json:"quality_score"`

	// EngagementScore reflects the user's own partial engagement with this
	// specific work, in [0,1].
	EngagementScore float64 `json:"engagement_score"`

	// DiversityScore is the novelty versus already-selected items, in [0,1].
	DiversityScore float64 `json:"diversity_score"`

	// FinalScore combines base score and novelty; Confidence equals it.
	FinalScore float64 `json:"final_score"`
	Confidence float64 `json:"confidence"`

	Grade Grade `json:"grade"`
}
