// Shelfmark - Book Recommendation Engine
// Copyright 2026 Shelfmark Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfmark/shelfmark

// Package store provides badger-backed persistence for Shelfmark-owned data.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/shelfmark/shelfmark/internal/recommend"
)

const profileKeyPrefix = "profile:"

// BadgerProfileStore implements recommend.ProfileStore on BadgerDB.
// Profiles survive restarts; rebuilds overwrite the whole record.
type BadgerProfileStore struct {
	db *badger.DB
}

var _ recommend.ProfileStore = (*BadgerProfileStore)(nil)

// NewBadgerProfileStore creates a BadgerDB-backed profile store.
func NewBadgerProfileStore(db *badger.DB) *BadgerProfileStore {
	return &BadgerProfileStore{db: db}
}

func profileKey(userID int64) []byte {
	return []byte(profileKeyPrefix + strconv.FormatInt(userID, 10))
}

// GetProfile returns the persisted profile or recommend.ErrProfileNotFound.
func (s *BadgerProfileStore) GetProfile(ctx context.Context, userID int64) (*recommend.UserProfile, error) {
	var profile recommend.UserProfile

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return recommend.ErrProfileNotFound
		}
		if err != nil {
			return fmt.Errorf("get profile: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if err != nil {
		return nil, err
	}

	return &profile, nil
}

// SaveProfile upserts the profile.
func (s *BadgerProfileStore) SaveProfile(ctx context.Context, profile *recommend.UserProfile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.UserID), data)
	})
}

// ListUserIDs returns every user with a persisted profile, in key order.
func (s *BadgerProfileStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(profileKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			id, err := strconv.ParseInt(key[len(profileKeyPrefix):], 10, 64)
			if err != nil {
				return fmt.Errorf("malformed profile key %q: %w", key, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}
