// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import "math/bits"

// wouldOverflow is the capacity gate. It projects the table size as if every
// stored entry were as large as the incoming one and reports whether one more
// entry would reach the budget: (entries+1)*elementSize >= budget.
//
// This is intentionally pessimistic and ignores the real sizes of entries
// already on disk.
func wouldOverflow(entries int, elementSize, budget int64) bool {
	if budget <= 0 {
		return true
	}
	if entries < 0 {
		entries = 0
	}
	if elementSize < 0 {
		elementSize = 0
	}

	hi, lo := bits.Mul64(uint64(entries)+1, uint64(elementSize))
	return hi != 0 || lo >= uint64(budget)
}
