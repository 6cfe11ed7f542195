// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import "sync/atomic"

// counters tracks service activity. Every field is updated atomically.
type counters struct {
	results [DiskFull + 1]atomic.Int64

	hits           atomic.Int64
	misses         atomic.Int64
	bytesStaged    atomic.Int64
	bytesRetrieved atomic.Int64
	retries        atomic.Int64
	cleared        atomic.Int64
}

// Stats is a point-in-time snapshot of service activity.
type Stats struct {
	// Outcomes counts Cache calls by result name.
	Outcomes map[string]int64 `json:"outcomes" yaml:"outcomes"`
	// Hits and Misses count Retrieve and RetrieveNoRecache calls.
	Hits           int64 `json:"hits" yaml:"hits"`
	Misses         int64 `json:"misses" yaml:"misses"`
	BytesStaged    int64 `json:"bytes_staged" yaml:"bytes_staged"`
	BytesRetrieved int64 `json:"bytes_retrieved" yaml:"bytes_retrieved"`
	// Retries counts store reads repeated because of memory pressure.
	Retries int64 `json:"retries" yaml:"retries"`
	// Cleared counts entries removed by ClearCache.
	Cleared int64 `json:"cleared" yaml:"cleared"`
}

func (c *counters) record(r Result) Result {
	if r > Unknown && int(r) < len(c.results) {
		c.results[r].Add(1)
	}
	return r
}

func (c *counters) snapshot() Stats {
	s := Stats{
		Outcomes:       make(map[string]int64, len(Results)),
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		BytesStaged:    c.bytesStaged.Load(),
		BytesRetrieved: c.bytesRetrieved.Load(),
		Retries:        c.retries.Load(),
		Cleared:        c.cleared.Load(),
	}
	for _, r := range Results {
		s.Outcomes[r.String()] = c.results[r].Load()
	}
	return s
}
