// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/cellcachego/internal/cache"
	"github.com/staranto/cellcachego/internal/cell"
	"github.com/staranto/cellcachego/internal/store"
)

func setupTestService(t *testing.T, opts ...cache.Option) *cache.Service {
	t.Helper()

	opts = append([]cache.Option{
		cache.WithDir(t.TempDir()),
		cache.WithStoreOptions(store.WithNoSync()),
	}, opts...)

	svc, err := cache.Open(cell.Blank, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Dispose() })
	return svc
}

// dirtyCell returns a cell of size bytes whose contents no longer match its
// source. seed varies the contents.
func dirtyCell(size int, seed byte) *cell.Cell {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}
	c := cell.New([]int{size}, data)
	if size > 0 {
		c.Data()[0] ^= 0xff
	}
	return c
}

func TestResult_String(t *testing.T) {
	want := []string{"SUCCESS", "NOT_DIRTY", "CACHE_NOT_FOUND", "DUPLICATE_FOUND", "CACHE_DISABLED", "DISK_FULL"}
	for i, r := range cache.Results {
		assert.Equal(t, want[i], r.String())
	}
	assert.Equal(t, "Result(42)", cache.Result(42).String())

	var zero cache.Result
	assert.Equal(t, cache.Unknown, zero)
	assert.Equal(t, "UNKNOWN", zero.String())
	assert.NotContains(t, cache.Results, cache.Unknown)
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := cache.New(nil)
	assert.ErrorIs(t, err, cache.ErrNoFactory)
}

func TestService_NotDirty(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))

	clean := cell.New([]int{4}, []byte{1, 2, 3, 4})
	res, err := svc.Cache("A", 0, clean)
	require.NoError(t, err)
	assert.Equal(t, cache.NotDirty, res)

	n, err := svc.Len("A")
	require.NoError(t, err)
	assert.Zero(t, n, "nothing written")

	// Not dirty wins even over an unknown cache.
	res, err = svc.Cache("missing", 0, clean)
	require.NoError(t, err)
	assert.Equal(t, cache.NotDirty, res)
}

func TestService_CacheAllStagesCleanCells(t *testing.T) {
	svc := setupTestService(t, cache.WithCacheAll(true))
	require.NoError(t, svc.AddCache("A"))

	res, err := svc.Cache("A", 0, cell.New([]int{4}, []byte{1, 2, 3, 4}))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)
}

func TestService_CacheNotFound(t *testing.T) {
	svc := setupTestService(t)

	for i := 0; i < 3; i++ {
		res, err := svc.Cache("never-added", i, dirtyCell(8, byte(i)))
		require.NoError(t, err)
		assert.Equal(t, cache.CacheNotFound, res)
	}

	require.NoError(t, svc.SetCacheAll(true))
	res, err := svc.Cache("never-added", 0, cell.New([]int{1}, []byte{1}))
	require.NoError(t, err)
	assert.Equal(t, cache.CacheNotFound, res)

	c, err := svc.Retrieve("never-added", 0)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestService_DuplicateFound(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))

	c := dirtyCell(16, 1)

	res, err := svc.Cache("A", 0, c)
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)

	res, err = svc.Cache("A", 0, c)
	require.NoError(t, err)
	assert.Equal(t, cache.DuplicateFound, res)

	// A value-equal but distinct instance is also a duplicate.
	res, err = svc.Cache("A", 0, dirtyCell(16, 1))
	require.NoError(t, err)
	assert.Equal(t, cache.DuplicateFound, res)

	// Different contents at the same slot overwrite.
	res, err = svc.Cache("A", 0, dirtyCell(16, 2))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)

	n, err := svc.Len("A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_CacheDisabled(t *testing.T) {
	svc := setupTestService(t, cache.WithEnabled(false))
	require.NoError(t, svc.AddCache("A"))

	res, err := svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)
	assert.Equal(t, cache.CacheDisabled, res)

	// Disabled is checked before the budget.
	require.NoError(t, svc.SetMaxBytesOnDisk(1))
	res, err = svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)
	assert.Equal(t, cache.CacheDisabled, res)
	assert.True(t, svc.DiskFull(), "gate is still recomputed")

	require.NoError(t, svc.SetEnabled(true))
	require.NoError(t, svc.SetMaxBytesOnDisk(1 << 20))
	res, err = svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)
	assert.False(t, svc.DiskFull())
}

func TestService_CapacityScenario(t *testing.T) {
	svc := setupTestService(t, cache.WithMaxBytesOnDisk(250))
	require.NoError(t, svc.AddCache("A"))

	want := []cache.Result{cache.Success, cache.Success, cache.DiskFull}
	for i, w := range want {
		res, err := svc.Cache("A", i, dirtyCell(100, byte(i)))
		require.NoError(t, err)
		assert.Equal(t, w, res, "index %d", i)
	}
	assert.True(t, svc.DiskFull())

	n, err := svc.Len("A")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestService_CapacityBoundary(t *testing.T) {
	tests := []struct {
		budget int64
		stored int
		size   int
		want   cache.Result
	}{
		{budget: 300, stored: 2, size: 100, want: cache.DiskFull}, // 3*100 == 300
		{budget: 301, stored: 2, size: 100, want: cache.Success},
		{budget: 100, stored: 0, size: 100, want: cache.DiskFull},
		{budget: 101, stored: 0, size: 100, want: cache.Success},
		{budget: 0, stored: 0, size: 1, want: cache.DiskFull},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("B=%d n=%d s=%d", tt.budget, tt.stored, tt.size), func(t *testing.T) {
			svc := setupTestService(t)
			require.NoError(t, svc.AddCache("A"))

			for i := 0; i < tt.stored; i++ {
				res, err := svc.Cache("A", i, dirtyCell(tt.size, byte(i)))
				require.NoError(t, err)
				require.Equal(t, cache.Success, res)
			}

			require.NoError(t, svc.SetMaxBytesOnDisk(tt.budget))
			assert.Equal(t, tt.budget, svc.MaxBytesOnDisk())

			res, err := svc.Cache("A", tt.stored, dirtyCell(tt.size, 99))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestService_CapacityIsPerCache(t *testing.T) {
	svc := setupTestService(t, cache.WithMaxBytesOnDisk(250))
	require.NoError(t, svc.AddCache("A"))
	require.NoError(t, svc.AddCache("B"))

	for i := 0; i < 2; i++ {
		res, err := svc.Cache("A", i, dirtyCell(100, byte(i)))
		require.NoError(t, err)
		require.Equal(t, cache.Success, res)
	}

	// The projection counts only entries in the target cache.
	res, err := svc.Cache("B", 0, dirtyCell(100, 7))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)
}

func TestService_RoundTrip(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))

	c := dirtyCell(32, 3)
	c.CacheOnFinalize(true)
	res, err := svc.Cache("A", 5, c)
	require.NoError(t, err)
	require.Equal(t, cache.Success, res)
	assert.False(t, c.Recaching(), "staged cells must not re-stage themselves")

	got, err := svc.Retrieve("A", 5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, c.Equal(got))

	gc := got.(*cell.Cell)
	assert.Equal(t, "A", gc.CacheID())
	assert.Equal(t, 5, gc.Index())
	assert.True(t, gc.Recaching())

	again, err := svc.Retrieve("A", 5)
	require.NoError(t, err)
	assert.Nil(t, again, "reads are destructive")

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Outcomes["SUCCESS"])
	assert.Equal(t, int64(32), stats.BytesStaged)
	assert.Equal(t, int64(32), stats.BytesRetrieved)
}

func TestService_RetrieveNoRecache(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))

	_, err := svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)

	got, err := svc.RetrieveNoRecache("A", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.(*cell.Cell).Recaching())

	miss, err := svc.RetrieveNoRecache("A", 0)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestService_ReleaseRestages(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))

	_, err := svc.Cache("A", 2, dirtyCell(8, 0))
	require.NoError(t, err)

	got, err := svc.Retrieve("A", 2)
	require.NoError(t, err)

	res, err := got.(*cell.Cell).Release()
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)

	back, err := svc.Retrieve("A", 2)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, got.Equal(back))

	// A no-recache cell is simply dropped on release.
	_, err = svc.Cache("A", 2, back)
	require.NoError(t, err)
	nr, err := svc.RetrieveNoRecache("A", 2)
	require.NoError(t, err)
	res, err = nr.(*cell.Cell).Release()
	require.NoError(t, err)
	assert.Equal(t, cache.Unknown, res, "nothing offered")

	n, err := svc.Len("A")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_ClearCache(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))
	require.NoError(t, svc.AddCache("B"))

	for i := 0; i < 4; i++ {
		_, err := svc.Cache("A", i, dirtyCell(8, byte(i)))
		require.NoError(t, err)
	}
	_, err := svc.Cache("B", 0, dirtyCell(8, 0))
	require.NoError(t, err)

	require.NoError(t, svc.ClearCache("A"))

	n, err := svc.Len("A")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = svc.Len("B")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "other caches are untouched")

	// The id stays usable.
	res, err := svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)

	// Clearing an unknown id is a no-op.
	require.NoError(t, svc.ClearCache("nope"))
	assert.Equal(t, int64(4), svc.Stats().Cleared)
}

func TestService_ClearAllCaches(t *testing.T) {
	svc := setupTestService(t)
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, svc.AddCache(id))
		_, err := svc.Cache(id, 0, dirtyCell(8, 0))
		require.NoError(t, err)
	}

	require.NoError(t, svc.ClearAllCaches())

	ids, err := svc.Caches()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	for _, id := range ids {
		n, err := svc.Len(id)
		require.NoError(t, err)
		assert.Zero(t, n, id)
	}
}

func TestService_DropCache(t *testing.T) {
	svc := setupTestService(t)
	require.NoError(t, svc.AddCache("A"))
	require.NoError(t, svc.AddCache("A"), "adding twice is fine")

	_, err := svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)

	require.NoError(t, svc.DropCache("A"))
	ids, err := svc.Caches()
	require.NoError(t, err)
	assert.Empty(t, ids)

	res, err := svc.Cache("A", 0, dirtyCell(8, 1))
	require.NoError(t, err)
	assert.Equal(t, cache.CacheNotFound, res)

	require.NoError(t, svc.DropCache("A"), "dropping twice is a no-op")

	require.NoError(t, svc.AddCache("A"))
	got, err := svc.Retrieve("A", 0)
	require.NoError(t, err)
	assert.Nil(t, got, "dropped caches come back empty")

	res, err = svc.Cache("A", 0, dirtyCell(8, 1))
	require.NoError(t, err)
	assert.Equal(t, cache.Success, res)
}

func TestService_InvalidArguments(t *testing.T) {
	svc := setupTestService(t)

	assert.ErrorIs(t, svc.AddCache(""), cache.ErrInvalidCacheID)

	_, err := svc.Cache("", 0, dirtyCell(1, 0))
	assert.ErrorIs(t, err, cache.ErrInvalidCacheID)

	_, err = svc.Cache("A", -1, dirtyCell(1, 0))
	assert.ErrorIs(t, err, cache.ErrInvalidIndex)

	_, err = svc.Retrieve("A", -3)
	assert.ErrorIs(t, err, cache.ErrInvalidIndex)
}

func TestService_Lifecycle(t *testing.T) {
	dir := t.TempDir()

	svc, err := cache.New(cell.Blank, cache.WithDir(dir))
	require.NoError(t, err)

	// Unusable before Initialize.
	assert.ErrorIs(t, svc.AddCache("A"), cache.ErrClosed)

	require.NoError(t, svc.Initialize())
	require.NoError(t, svc.Initialize(), "initialize is idempotent")
	require.NoError(t, svc.AddCache("A"))
	_, err = svc.Cache("A", 0, dirtyCell(8, 0))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "one store directory while open")

	size, err := svc.SizeOnDisk()
	require.NoError(t, err)
	assert.Positive(t, size)

	require.NoError(t, svc.Dispose())

	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "store removed on dispose")

	assert.ErrorIs(t, svc.Dispose(), cache.ErrClosed)
	assert.ErrorIs(t, svc.AddCache("A"), cache.ErrClosed)
	assert.ErrorIs(t, svc.DropCache("A"), cache.ErrClosed)
	assert.ErrorIs(t, svc.ClearCache("A"), cache.ErrClosed)
	assert.ErrorIs(t, svc.ClearAllCaches(), cache.ErrClosed)
	assert.ErrorIs(t, svc.Initialize(), cache.ErrClosed)

	_, err = svc.Cache("A", 0, dirtyCell(8, 0))
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = svc.Retrieve("A", 0)
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = svc.Len("A")
	assert.ErrorIs(t, err, cache.ErrClosed)
	_, err = svc.Caches()
	assert.ErrorIs(t, err, cache.ErrClosed)

	assert.ErrorIs(t, svc.SetMaxBytesOnDisk(1), cache.ErrClosed)
	assert.ErrorIs(t, svc.SetEnabled(false), cache.ErrClosed)
	assert.ErrorIs(t, svc.SetCacheAll(true), cache.ErrClosed)
	assert.True(t, svc.Enabled(), "rejected setters leave the flags alone")
	assert.False(t, svc.CacheAll())
}
