// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import "errors"

// ErrTransient is returned when a value could not be materialized because of
// memory pressure. The read may succeed if retried once memory is reclaimed.
var ErrTransient = errors.New("transient resource exhaustion")

// ErrClosed is returned by any operation on a store that has been closed.
var ErrClosed = errors.New("store is closed")

// Store is a table-addressed key/value engine. Put and Delete are staged and
// are only durable after Commit, but are visible to reads immediately.
type Store interface {
	// Get returns a copy of the value stored under key, or nil if absent.
	Get(table string, key []byte) ([]byte, error)
	Has(table string, key []byte) (bool, error)
	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	// Keys returns every key in table in ascending byte order.
	Keys(table string) ([][]byte, error)
	Len(table string) (int, error)
	// DropTable removes table and everything in it, including staged writes.
	DropTable(table string) error
	Commit() error
	// Discard drops any staged Put or Delete for key, so reads see the last
	// committed value again.
	Discard(table string, key []byte)
	// Size reports the bytes currently held by the backing file.
	Size() (int64, error)
	Close() error
}
