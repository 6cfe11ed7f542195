// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"
	"hash/maphash"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/store"
)

// DefaultRetryPause is how long a lookup waits between attempts when the
// store reports memory pressure.
const DefaultRetryPause = 5 * time.Millisecond

const stripeCount = 64

// Key derives the store key for index within cacheID. It is a pure function
// of its inputs.
func Key(cacheID string, index int) []byte {
	return []byte(cacheutil.EncodeKey(cacheID + "/" + strconv.Itoa(index)))
}

// keyLocks serializes compound check-then-act sequences on a single key.
type keyLocks struct {
	seed    maphash.Seed
	stripes [stripeCount]sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{seed: maphash.MakeSeed()}
}

func (l *keyLocks) lock(table string, key []byte) func() {
	var h maphash.Hash
	h.SetSeed(l.seed)
	_, _ = h.WriteString(table)
	_ = h.WriteByte(0)
	_, _ = h.Write(key)

	m := &l.stripes[h.Sum64()%stripeCount]
	m.Lock()
	return m.Unlock
}

// read fetches the raw bytes under key, waiting out memory pressure. It
// retries only on store.ErrTransient, forever, yielding to the collector
// between attempts. Any other error is returned.
func (s *Service) read(table string, key []byte) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		raw, err := s.store.Get(table, key)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, store.ErrTransient) {
			return nil, err
		}

		s.stats.retries.Add(1)
		log.WithFields(log.Fields{
			"cache":   table,
			"attempt": attempt,
		}).Debugf("waiting for memory: %v", err)

		runtime.GC()
		time.Sleep(s.retryPause)
	}
}

// load reads and decodes the cell under key without touching its
// back-references. It returns nil if nothing is stored.
func (s *Service) load(table string, key []byte) (Cell, error) {
	raw, err := s.read(table, key)
	if err != nil || raw == nil {
		return nil, err
	}

	c := s.factory()
	if err := c.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to decode cell %s/%s: %w", table, key, err)
	}
	return c, nil
}

// getCell loads the cell at (cacheID, index) and rehydrates it so that it may
// be staged again later.
func (s *Service) getCell(cacheID string, index int, key []byte) (Cell, error) {
	c, err := s.load(cacheID, key)
	if err != nil || c == nil {
		return nil, err
	}

	c.SetCacheID(cacheID)
	c.SetIndex(index)
	c.SetService(s)
	c.CacheOnFinalize(true)
	return c, nil
}
