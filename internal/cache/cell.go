// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import "encoding"

// Cell is the contract a unit must satisfy to be staged by a Service.
type Cell interface {
	// Update refreshes size and dirty state. ElementSize and Dirty are only
	// meaningful after it has been called.
	Update()
	ElementSize() int64
	Dirty() bool

	// CacheOnFinalize allows or forbids the cell from re-staging itself when
	// its owner releases it.
	CacheOnFinalize(enabled bool)

	SetCacheID(id string)
	SetIndex(index int)
	SetService(s Recacher)

	// Equal reports value equality with another cell.
	Equal(other Cell) bool

	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Recacher is the back-reference a retrieved cell uses to re-stage itself.
type Recacher interface {
	Cache(cacheID string, index int, c Cell) (Result, error)
}
