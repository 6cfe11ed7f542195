// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/staranto/cellcachego/internal/cacheutil"
	"github.com/staranto/cellcachego/internal/store"
)

// options holds optional overrides for building a Service.
type options struct {
	store      store.Store
	dir        string
	storeOpts  []store.Option
	maxBytes   int64
	enabled    bool
	cacheAll   bool
	retryPause time.Duration
}

// Option customizes a Service.
type Option func(*options)

// WithStore uses s instead of opening a temporary bolt store. The service
// takes ownership and closes it on Dispose.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithDir sets the directory the temporary store is created beneath.
// Defaults to cacheutil.Dir().
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithStoreOptions passes options through to the temporary bolt store.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithMaxBytesOnDisk sets the initial byte budget.
func WithMaxBytesOnDisk(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithEnabled sets whether writes are allowed at all.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// WithCacheAll stages cells even when they are not dirty.
func WithCacheAll(all bool) Option {
	return func(o *options) { o.cacheAll = all }
}

// WithRetryPause sets the pause between reads retried under memory pressure.
func WithRetryPause(d time.Duration) Option {
	return func(o *options) { o.retryPause = d }
}

// Service stages cells into named caches held in a single store.
//
// A Service must be initialized before use and disposed exactly once. All
// methods are safe for concurrent use.
type Service struct {
	factory    func() Cell
	dir        string
	storeOpts  []store.Option
	retryPause time.Duration

	// mu guards caches and the store lifecycle. Cell operations hold it for
	// reading; registry changes and Dispose hold it for writing.
	mu     sync.RWMutex
	caches map[string]struct{}
	store  store.Store
	closed bool

	keys *keyLocks

	maxBytes atomic.Int64
	diskFull atomic.Bool
	enabled  atomic.Bool
	cacheAll atomic.Bool

	stats counters
}

// New builds a Service that decodes stored cells with factory. The service
// is not usable until Initialize is called.
func New(factory func() Cell, opts ...Option) (*Service, error) {
	if factory == nil {
		return nil, ErrNoFactory
	}

	o := options{
		dir:        cacheutil.Dir(),
		maxBytes:   cacheutil.Unbounded,
		enabled:    true,
		retryPause: DefaultRetryPause,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Service{
		factory:    factory,
		dir:        o.dir,
		storeOpts:  o.storeOpts,
		retryPause: o.retryPause,
		caches:     make(map[string]struct{}),
		store:      o.store,
		keys:       newKeyLocks(),
	}
	s.maxBytes.Store(o.maxBytes)
	s.enabled.Store(o.enabled)
	s.cacheAll.Store(o.cacheAll)
	return s, nil
}

// Open is New followed by Initialize.
func Open(factory func() Cell, opts ...Option) (*Service, error) {
	s, err := New(factory, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	return s, nil
}

// Initialize opens a fresh, process-local store that is deleted on Dispose.
// It is a no-op if a store is already attached.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.store != nil {
		return nil
	}

	b, err := store.OpenTemp(s.dir, s.storeOpts...)
	if err != nil {
		return err
	}
	s.store = b
	log.WithField("path", b.Path()).Debug("cache service initialized")
	return nil
}

// Dispose clears every cache and closes the store. It may be called once;
// later calls, and every other operation afterwards, return ErrClosed.
func (s *Service) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	var clearErr error
	for _, id := range s.sortedCaches() {
		if err := s.clearLocked(id); err != nil && clearErr == nil {
			clearErr = err
		}
	}

	closeErr := s.store.Close()
	s.closed = true
	s.caches = nil
	log.Debug("cache service disposed")

	if clearErr != nil {
		return clearErr
	}
	return closeErr
}

func (s *Service) checkOpen() error {
	if s.closed || s.store == nil {
		return ErrClosed
	}
	return nil
}

func (s *Service) sortedCaches() []string {
	ids := make([]string, 0, len(s.caches))
	for id := range s.caches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validate(cacheID string, index int) error {
	if cacheID == "" {
		return ErrInvalidCacheID
	}
	if index < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return nil
}

// AddCache registers cacheID. Registering an id twice is not an error.
func (s *Service) AddCache(cacheID string) error {
	if cacheID == "" {
		return ErrInvalidCacheID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.caches[cacheID]; !ok {
		s.caches[cacheID] = struct{}{}
		log.WithField("cache", cacheID).Debug("cache added")
	}
	return nil
}

// DropCache empties cacheID and forgets it. Unregistered ids are ignored.
func (s *Service) DropCache(cacheID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.caches[cacheID]; !ok {
		return nil
	}

	if err := s.store.DropTable(cacheID); err != nil {
		return err
	}
	delete(s.caches, cacheID)
	log.WithField("cache", cacheID).Debug("cache dropped")
	return nil
}

// ClearCache removes every cell staged under cacheID while keeping the id
// registered. Each removed cell has re-staging disabled first so it cannot
// come back on its own. Unregistered ids are ignored.
func (s *Service) ClearCache(cacheID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.caches[cacheID]; !ok {
		return nil
	}
	return s.clearLocked(cacheID)
}

// ClearAllCaches applies ClearCache to every registered id.
func (s *Service) ClearAllCaches() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, id := range s.sortedCaches() {
		if err := s.clearLocked(id); err != nil {
			return err
		}
	}
	return nil
}

// clearLocked requires s.mu to be held.
func (s *Service) clearLocked(cacheID string) error {
	keys, err := s.store.Keys(cacheID)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.evict(cacheID, key); err != nil {
			return err
		}
	}

	if err := s.store.Commit(); err != nil {
		for _, key := range keys {
			s.store.Discard(cacheID, key)
		}
		return err
	}
	s.stats.cleared.Add(int64(len(keys)))
	log.WithFields(log.Fields{
		"cache":   cacheID,
		"entries": len(keys),
	}).Debug("cache cleared")
	return nil
}

func (s *Service) evict(cacheID string, key []byte) error {
	unlock := s.keys.lock(cacheID, key)
	defer unlock()

	c, err := s.load(cacheID, key)
	if err != nil {
		return err
	}
	if c != nil {
		c.CacheOnFinalize(false)
	}
	return s.store.Delete(cacheID, key)
}

// Cache stages c at index within cacheID. The checks run in a fixed order and
// the first that applies decides the result: not dirty, unknown cache,
// duplicate of what is stored, caching disabled, budget exhausted. Only
// Success writes anything. Errors are reserved for lifecycle misuse and store
// faults and come with Unknown; a failed write leaves the store as it was.
func (s *Service) Cache(cacheID string, index int, c Cell) (Result, error) {
	if err := validate(cacheID, index); err != nil {
		return Unknown, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return Unknown, err
	}

	c.Update()
	if !(s.CacheAll() || c.Dirty()) {
		return s.stats.record(NotDirty), nil
	}
	if _, ok := s.caches[cacheID]; !ok {
		return s.stats.record(CacheNotFound), nil
	}

	key := Key(cacheID, index)
	unlock := s.keys.lock(cacheID, key)
	defer unlock()

	existing, err := s.load(cacheID, key)
	if err != nil {
		return Unknown, err
	}
	if existing != nil && existing.Equal(c) {
		return s.stats.record(DuplicateFound), nil
	}

	entries, err := s.store.Len(cacheID)
	if err != nil {
		return Unknown, err
	}
	size := c.ElementSize()
	s.diskFull.Store(wouldOverflow(entries, size, s.maxBytes.Load()))

	if !s.Enabled() {
		return s.stats.record(CacheDisabled), nil
	}
	if s.DiskFull() {
		log.WithFields(log.Fields{
			"cache":   cacheID,
			"index":   index,
			"entries": entries,
			"size":    cacheutil.FormatBytes(size),
			"budget":  cacheutil.FormatBytes(s.maxBytes.Load()),
		}).Debug("disk full")
		return s.stats.record(DiskFull), nil
	}

	data, err := c.MarshalBinary()
	if err != nil {
		return Unknown, fmt.Errorf("failed to encode cell %s/%d: %w", cacheID, index, err)
	}
	if err := s.store.Put(cacheID, key, data); err != nil {
		return Unknown, err
	}
	if err := s.store.Commit(); err != nil {
		s.store.Discard(cacheID, key)
		return Unknown, err
	}
	c.CacheOnFinalize(false)

	s.stats.bytesStaged.Add(size)
	log.WithFields(log.Fields{
		"cache": cacheID,
		"index": index,
		"size":  size,
	}).Debug("cell staged")
	return s.stats.record(Success), nil
}

// Retrieve removes and returns the cell at index within cacheID. The cell
// comes back able to re-stage itself. A miss returns nil, nil. If the removal
// cannot be committed the cell stays stored and an error is returned.
func (s *Service) Retrieve(cacheID string, index int) (Cell, error) {
	if err := validate(cacheID, index); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key := Key(cacheID, index)
	unlock := s.keys.lock(cacheID, key)
	defer unlock()

	c, err := s.getCell(cacheID, index, key)
	if err != nil {
		return nil, err
	}
	if c == nil {
		s.stats.misses.Add(1)
		return nil, nil
	}

	if err := s.store.Delete(cacheID, key); err != nil {
		return nil, err
	}
	if err := s.store.Commit(); err != nil {
		s.store.Discard(cacheID, key)
		return nil, err
	}

	s.stats.hits.Add(1)
	s.stats.bytesRetrieved.Add(c.ElementSize())
	return c, nil
}

// RetrieveNoRecache is Retrieve for callers that manage the cell's lifetime
// themselves. The returned cell will not re-stage itself.
func (s *Service) RetrieveNoRecache(cacheID string, index int) (Cell, error) {
	c, err := s.Retrieve(cacheID, index)
	if err != nil || c == nil {
		return nil, err
	}
	c.CacheOnFinalize(false)
	return c, nil
}

// SetMaxBytesOnDisk sets the byte budget checked on every write.
func (s *Service) SetMaxBytesOnDisk(n int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	s.maxBytes.Store(n)
	log.Debugf("max bytes on disk: %s", cacheutil.FormatBytes(n))
	return nil
}

// MaxBytesOnDisk returns the current byte budget. Like the other flag
// getters it keeps answering after Dispose.
func (s *Service) MaxBytesOnDisk() int64 {
	return s.maxBytes.Load()
}

// SetEnabled turns writes on or off.
func (s *Service) SetEnabled(enabled bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	s.enabled.Store(enabled)
	return nil
}

func (s *Service) Enabled() bool {
	return s.enabled.Load()
}

// SetCacheAll makes the service stage cells whether or not they are dirty.
func (s *Service) SetCacheAll(all bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	s.cacheAll.Store(all)
	return nil
}

func (s *Service) CacheAll() bool {
	return s.cacheAll.Load()
}

// DiskFull reports the capacity gate as of the last write attempt.
func (s *Service) DiskFull() bool {
	return s.diskFull.Load()
}

// Caches returns the registered cache ids in sorted order.
func (s *Service) Caches() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.sortedCaches(), nil
}

// Len returns the number of cells staged under cacheID.
func (s *Service) Len(cacheID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.store.Len(cacheID)
}

// SizeOnDisk reports the bytes held by the backing store.
func (s *Service) SizeOnDisk() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return s.store.Size()
}

// Stats returns a snapshot of service activity. It stays readable after
// Dispose.
func (s *Service) Stats() Stats {
	return s.stats.snapshot()
}
