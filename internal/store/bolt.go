// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	bolt "go.etcd.io/bbolt"
)

const dbFileName = "cells.db"

// options holds optional overrides for opening a Bolt store.
type options struct {
	guard   MemoryGuard
	timeout time.Duration
	noSync  bool
}

// Option customizes how a Bolt store is opened.
type Option func(*options)

// WithMemoryGuard replaces HeapGuard as the check run before a value is
// copied out of the store.
func WithMemoryGuard(g MemoryGuard) Option {
	return func(o *options) { o.guard = g }
}

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithNoSync skips fsync on commit. The store is deleted on close anyway, so
// this only trades crash consistency of a throwaway file for speed.
func WithNoSync() Option {
	return func(o *options) { o.noSync = true }
}

type pendingOp struct {
	value   []byte
	deleted bool
}

// Bolt is a Store backed by a single bbolt file with one bucket per table.
type Bolt struct {
	mu      sync.Mutex
	db      *bolt.DB
	guard   MemoryGuard
	tempDir string // removed on Close when non-empty
	pending map[string]map[string]pendingOp
}

// Open opens (or creates) a bolt file at path.
func Open(path string, opts ...Option) (*Bolt, error) {
	o := options{guard: HeapGuard, timeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{ //nolint:mnd
		Timeout: o.timeout,
		NoSync:  o.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	log.Debugf("opened store %s", path)

	return &Bolt{
		db:      db,
		guard:   o.guard,
		pending: make(map[string]map[string]pendingOp),
	}, nil
}

// OpenTemp creates a fresh store in a new temporary directory beneath dir.
// The directory and file are removed when the store is closed.
func OpenTemp(dir string, opts ...Option) (*Bolt, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	tmp, err := os.MkdirTemp(dir, "store-")
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	b, err := Open(filepath.Join(tmp, dbFileName), opts...)
	if err != nil {
		_ = os.RemoveAll(tmp)
		return nil, err
	}
	b.tempDir = tmp
	return b, nil
}

// Path returns the location of the backing file.
func (b *Bolt) Path() string {
	return b.db.Path()
}

func (b *Bolt) staged(table string, key []byte) (pendingOp, bool) {
	ops, ok := b.pending[table]
	if !ok {
		return pendingOp{}, false
	}
	op, ok := ops[string(key)]
	return op, ok
}

func (b *Bolt) stage(table string, key []byte, op pendingOp) {
	ops, ok := b.pending[table]
	if !ok {
		ops = make(map[string]pendingOp)
		b.pending[table] = ops
	}
	ops[string(key)] = op
}

func (b *Bolt) checkOpen() error {
	if b.db == nil {
		return ErrClosed
	}
	return nil
}

// Get implements Store.
func (b *Bolt) Get(table string, key []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	if op, ok := b.staged(table, key); ok {
		if op.deleted {
			return nil, nil
		}
		if err := b.guard(len(op.value)); err != nil {
			return nil, err
		}
		return bytes.Clone(op.value), nil
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(table))
		if bkt == nil {
			return nil
		}
		v := bkt.Get(key)
		if v == nil {
			return nil
		}
		if err := b.guard(len(v)); err != nil {
			return err
		}
		// v is only valid for the life of the transaction.
		out = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%x: %w", table, key, err)
	}
	return out, nil
}

// Has implements Store.
func (b *Bolt) Has(table string, key []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return false, err
	}

	if op, ok := b.staged(table, key); ok {
		return !op.deleted, nil
	}

	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		if bkt := tx.Bucket([]byte(table)); bkt != nil {
			found = bkt.Get(key) != nil
		}
		return nil
	})
	return found, err
}

// Put implements Store.
func (b *Bolt) Put(table string, key, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	b.stage(table, key, pendingOp{value: bytes.Clone(value)})
	return nil
}

// Delete implements Store.
func (b *Bolt) Delete(table string, key []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	b.stage(table, key, pendingOp{deleted: true})
	return nil
}

// Discard implements Store.
func (b *Bolt) Discard(table string, key []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ops, ok := b.pending[table]
	if !ok {
		return
	}
	delete(ops, string(key))
	if len(ops) == 0 {
		delete(b.pending, table)
	}
}

// Keys implements Store.
func (b *Bolt) Keys(table string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	return b.keysLocked(table)
}

func (b *Bolt) keysLocked(table string) ([][]byte, error) {
	set := make(map[string]struct{})
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(table))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, _ []byte) error {
			set[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}

	for k, op := range b.pending[table] {
		if op.deleted {
			delete(set, k)
		} else {
			set[k] = struct{}{}
		}
	}

	keys := make([][]byte, 0, len(set))
	for k := range set {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i], keys[j]) < 0
	})
	return keys, nil
}

// Len implements Store.
func (b *Bolt) Len(table string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	// Fast path: nothing staged, so bucket stats are exact.
	if len(b.pending[table]) == 0 {
		var n int
		err := b.db.View(func(tx *bolt.Tx) error {
			if bkt := tx.Bucket([]byte(table)); bkt != nil {
				n = bkt.Stats().KeyN
			}
			return nil
		})
		return n, err
	}

	keys, err := b.keysLocked(table)
	return len(keys), err
}

// DropTable implements Store.
func (b *Bolt) DropTable(table string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}

	delete(b.pending, table)
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(table)) == nil {
			return nil
		}
		if err := tx.DeleteBucket([]byte(table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
		return nil
	})
}

// Commit implements Store. All staged writes land in one transaction.
func (b *Bolt) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	if len(b.pending) == 0 {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		for table, ops := range b.pending {
			bkt := tx.Bucket([]byte(table))
			for k, op := range ops {
				if op.deleted {
					if bkt == nil {
						continue
					}
					if err := bkt.Delete([]byte(k)); err != nil {
						return err
					}
					continue
				}
				if bkt == nil {
					var err error
					if bkt, err = tx.CreateBucketIfNotExists([]byte(table)); err != nil {
						return err
					}
				}
				if err := bkt.Put([]byte(k), op.value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	b.pending = make(map[string]map[string]pendingOp)
	return nil
}

// Size implements Store.
func (b *Bolt) Size() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Size()
		return nil
	})
	return n, err
}

// Close implements Store. Uncommitted writes are discarded. A store opened
// with OpenTemp removes its files.
func (b *Bolt) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}

	path := b.db.Path()
	err := b.db.Close()
	b.db = nil
	b.pending = nil

	if b.tempDir != "" {
		if rmErr := os.RemoveAll(b.tempDir); rmErr != nil {
			log.WithError(rmErr).Warnf("failed to remove store directory %s", b.tempDir)
		} else {
			log.Debugf("removed store %s", path)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return nil
}
