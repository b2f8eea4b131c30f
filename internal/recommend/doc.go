// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package recommend defines the domain model and external store contracts
// for the recommendation core.
//
// The core is a three-stage pipeline:
//
//  1. Profile building: a user's reading history is scored event by event
//     and folded into a unit-length taste vector plus a ranked anchor list
//     (package profile, using package engagement).
//  2. Candidate generation: the taste vector and anchors seed parallel
//     retrieval against vector, graph and collaborative sources, fused into
//     one deduplicated candidate set (package candidates).
//  3. Re-ranking: candidates are scored against quality, graph and
//     engagement signals and greedily diversified via Maximal Marginal
//     Relevance (package rerank).
//
// This package has no dependencies on the pipeline subpackages. All data
// access goes through the store interfaces declared here, which are
// implemented by external systems (vector index, graph store, catalog,
// user state) and by in-memory fakes in tests. The core issues
// well-defined queries and never owns a storage engine.
package recommend
