// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

// BadgerStore is the durable candidate-cache tier backed by BadgerDB.
// Entries expire via badger's native TTL support.
type BadgerStore struct {
	db *badger.DB
}

var _ recommend.CacheStore = (*BadgerStore)(nil)

// NewBadgerStore wraps an open badger database as a durable cache tier.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get returns the value for key, or recommend.ErrCacheMiss when absent or
// expired.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, recommend.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return value, nil
}

// Set stores the value under key with the given TTL.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (s *BadgerStore) DeletePrefix(ctx context.Context, prefix string) error {
	err := s.db.DropPrefix([]byte(prefix))
	if err != nil {
		return fmt.Errorf("badger drop prefix: %w", err)
	}
	return nil
}

// RunGC runs badger's value-log garbage collection until there is nothing
// left to collect. Intended to be called periodically from a supervisor.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	for {
		if err := s.db.RunValueLogGC(discardRatio); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				return nil
			}
			return fmt.Errorf("badger gc: %w", err)
		}
	}
}
