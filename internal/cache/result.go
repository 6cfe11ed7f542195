// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import "fmt"

// Result is the outcome of a Cache call. None of these are faults; callers
// branch on them. Unknown is the zero value and accompanies every error.
type Result int

const (
	Unknown Result = iota
	Success
	NotDirty
	CacheNotFound
	DuplicateFound
	CacheDisabled
	DiskFull
)

// Results lists every outcome a successful Cache call can report, in
// declaration order.
var Results = []Result{Success, NotDirty, CacheNotFound, DuplicateFound, CacheDisabled, DiskFull}

func (r Result) String() string {
	switch r {
	case Unknown:
		return "UNKNOWN"
	case Success:
		return "SUCCESS"
	case NotDirty:
		return "NOT_DIRTY"
	case CacheNotFound:
		return "CACHE_NOT_FOUND"
	case DuplicateFound:
		return "DUPLICATE_FOUND"
	case CacheDisabled:
		return "CACHE_DISABLED"
	case DiskFull:
		return "DISK_FULL"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}
