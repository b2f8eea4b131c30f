// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package recommend

import "errors"

// Error taxonomy. Missing-data conditions (no embedding, no quality row,
// no profile vector) are resolved with documented defaults and never
// surface as errors. Only invalid input and required-dependency failures
// reach callers.
var (
	// ErrInvalidLimit rejects non-positive result limits before any I/O.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrUnknownCategory rejects category slugs absent from configuration.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidSeed rejects seed-book requests with a non-positive work ID.
	ErrInvalidSeed = errors.New("seed work id must be positive")

	// ErrProfileNotFound is returned by profile stores when no profile has
	// been persisted for the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrCacheMiss is returned by cache stores when a key is absent or
	// expired. Durable-tier failures are also treated as misses by callers.
	ErrCacheMiss = errors.New("cache miss")
)
