// Connectlify - SMS Relay and Wallet Billing Platform
// Copyright 2026 Hammad Soomro
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Hammadsoomro/Connectlify

// Package store persists Connectlify documents in BadgerDB. Each entity
// lives under its own key prefix with JSON-encoded values; secondary
// lookups (email, phone number, carrier SID) are maintained as index keys
// pointing at the primary key.
package store

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/Hammadsoomro/Connectlify/internal/config"
	"github.com/Hammadsoomro/Connectlify/internal/logging"
	"github.com/Hammadsoomro/Connectlify/internal/metrics"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("store: not found")

// Key prefixes for BadgerDB storage.
const (
	accountKeyPrefix      = "account:"
	accountEmailKeyPrefix = "account_email:"
	walletKeyPrefix       = "wallet:"
	numberKeyPrefix       = "number:"
	numberE164KeyPrefix   = "number_e164:"
	contactKeyPrefix      = "contact:"
	contactPhoneKeyPrefix = "contact_phone:"
	messageKeyPrefix      = "message:"
	messageIDKeyPrefix    = "message_id:"
	messageSIDKeyPrefix   = "message_sid:"
	cycleKeyPrefix        = "cycle:"
)

// Store is a BadgerDB-backed document store for all Connectlify entities.
type Store struct {
	db *badger.DB
}

// Open opens the store at the configured path, or fully in memory when
// cfg.InMemory is set.
func Open(cfg config.StoreConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	// Badger logs through its own interface; route it to a discard logger
	// and let callers observe errors through returned values.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", cfg.Path, err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Document store opened")

	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Backup streams a full backup of the database to w and returns the
// version watermark of the snapshot. Safe to run while the store serves
// traffic.
func (s *Store) Backup(w io.Writer) (uint64, error) {
	return s.db.Backup(w, 0)
}

// Restore replaces the database contents from a backup stream produced by
// Backup. The store must not serve traffic while restoring.
func (s *Store) Restore(r io.Reader) error {
	return s.db.Load(r, 16)
}

// DB exposes the underlying BadgerDB handle for maintenance tasks.
func (s *Store) DB() *badger.DB {
	return s.db
}

// keyPrefixOf extracts the entity prefix of a key for metric labels.
func keyPrefixOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// put JSON-encodes v and stores it under key.
func (s *Store) put(key string, v interface{}) error {
	start := time.Now()
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	metrics.RecordStoreOp("put", keyPrefixOf(key), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// get loads and decodes the document at key into out. Returns ErrNotFound
// when the key does not exist.
func (s *Store) get(key string, out interface{}) error {
	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	metrics.RecordStoreOp("get", keyPrefixOf(key), time.Since(start), err)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return err
}

// getIndexed resolves an index key to its target value (a plain string).
func (s *Store) getIndexed(indexKey string) (string, error) {
	var target string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			target = string(val)
			return nil
		})
	})
	return target, err
}

// putIndex stores a plain-string index entry.
func (s *Store) putIndex(indexKey, target string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(indexKey), []byte(target))
	})
}

// iteratePrefix calls fn with each value under the given prefix. Iteration
// stops on the first error. Values are copied before fn is invoked.
func (s *Store) iteratePrefix(prefix string, fn func(key string, val []byte) error) error {
	start := time.Now()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), val); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordStoreOp("scan", keyPrefixOf(prefix), time.Since(start), err)
	return err
}

// delete removes the given keys in one transaction. Missing keys are not
// an error.
func (s *Store) delete(keys ...string) error {
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if len(keys) > 0 {
		metrics.RecordStoreOp("delete", keyPrefixOf(keys[0]), time.Since(start), err)
	}
	return err
}
