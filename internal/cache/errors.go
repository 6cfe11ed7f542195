// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import "errors"

// ErrClosed is returned by any operation on a service that has not been
// initialized or has already been disposed.
var ErrClosed = errors.New("cache service is not open")

// ErrInvalidCacheID is returned when a cache id is empty.
var ErrInvalidCacheID = errors.New("invalid cache id")

// ErrInvalidIndex is returned when a cell index is negative.
var ErrInvalidIndex = errors.New("invalid cell index")

// ErrNoFactory is returned when a service is built without a cell factory.
var ErrNoFactory = errors.New("cell factory is required")
