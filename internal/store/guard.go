// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"math"
	"runtime/debug"
	"runtime/metrics"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
)

// MemoryGuard decides whether n more bytes may be allocated right now. It
// returns an error wrapping ErrTransient when they may not.
type MemoryGuard func(n int) error

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapGuard refuses allocations that would push live heap objects past the
// runtime soft memory limit (GOMEMLIMIT). With no limit set it always allows.
// A value larger than the limit itself is allowed too: no amount of
// collection makes room for it and the limit is soft.
func HeapGuard(n int) error {
	limit := debug.SetMemoryLimit(-1)
	if limit == math.MaxInt64 || n <= 0 {
		return nil
	}

	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return nil
	}

	return checkHeap(uint64(n), sample[0].Value.Uint64(), uint64(limit))
}

// checkHeap reports ErrTransient when need bytes do not fit beside inUse
// under limit but would fit once the heap shrinks.
func checkHeap(need, inUse, limit uint64) error {
	if need > limit {
		log.Debugf("%s exceeds the %s memory limit, allowing",
			humanize.IBytes(need), humanize.IBytes(limit))
		return nil
	}
	if inUse+need > limit {
		return fmt.Errorf("%w: need %s with %s in use of %s limit",
			ErrTransient,
			humanize.IBytes(need),
			humanize.IBytes(inUse),
			humanize.IBytes(limit),
		)
	}
	return nil
}
