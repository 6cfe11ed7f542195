// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package cell provides a fixed-size byte cell that can be staged by the
// cache service.
package cell

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/apex/log"

	"github.com/staranto/cellcachego/internal/cache"
)

const (
	magic   = "CELL"
	version = 1
)

// ErrCorrupt is returned when decoding bytes that are not an encoded cell.
var ErrCorrupt = errors.New("corrupt cell encoding")

// Cell is a block of an out-of-core array. Its payload length is fixed at
// construction; the contents may be modified in place through Data.
//
// A cell is dirty when its contents differ from what it held when it was
// read from its source.
type Cell struct {
	dims []int
	data []byte

	// source is the content hash as originally read.
	source uint64
	dirty  bool

	cacheID string
	index   int
	service cache.Recacher
	recache bool
}

// New returns a clean cell holding data, as if just read from its source.
func New(dims []int, data []byte) *Cell {
	c := &Cell{
		dims: append([]int(nil), dims...),
		data: data,
	}
	c.source = c.sum()
	return c
}

// Blank returns an empty cell for decoding into. It satisfies the factory
// signature the cache service expects.
func Blank() cache.Cell {
	return &Cell{}
}

func (c *Cell) sum() uint64 {
	h := fnv.New64a()
	for _, d := range c.dims {
		_ = binary.Write(h, binary.LittleEndian, int64(d))
	}
	_, _ = h.Write(c.data)
	return h.Sum64()
}

// Data returns the payload for reading or in-place modification. Call Update
// afterwards to refresh the dirty state.
func (c *Cell) Data() []byte { return c.data }

// Dims returns the cell's extent along each axis.
func (c *Cell) Dims() []int { return c.dims }

func (c *Cell) CacheID() string { return c.cacheID }

func (c *Cell) Index() int { return c.index }

// Recaching reports whether the cell may re-stage itself on Release.
func (c *Cell) Recaching() bool { return c.recache }

// Update implements cache.Cell.
func (c *Cell) Update() {
	c.dirty = c.sum() != c.source
}

// ElementSize implements cache.Cell.
func (c *Cell) ElementSize() int64 {
	return int64(len(c.data))
}

// Dirty implements cache.Cell.
func (c *Cell) Dirty() bool { return c.dirty }

// CacheOnFinalize implements cache.Cell.
func (c *Cell) CacheOnFinalize(enabled bool) { c.recache = enabled }

// SetCacheID implements cache.Cell.
func (c *Cell) SetCacheID(id string) { c.cacheID = id }

// SetIndex implements cache.Cell.
func (c *Cell) SetIndex(index int) { c.index = index }

// SetService implements cache.Cell.
func (c *Cell) SetService(s cache.Recacher) { c.service = s }

// Equal implements cache.Cell. Cells are equal when their dims and contents
// match; bookkeeping is ignored.
func (c *Cell) Equal(other cache.Cell) bool {
	o, ok := other.(*Cell)
	if !ok || o == nil {
		return false
	}
	if len(c.dims) != len(o.dims) {
		return false
	}
	for i := range c.dims {
		if c.dims[i] != o.dims[i] {
			return false
		}
	}
	return bytes.Equal(c.data, o.data)
}

// Release hands the cell back. If it was retrieved with re-staging allowed
// it is offered to the service it came from and the service's answer is
// returned. Otherwise nothing is offered and Release returns cache.Unknown
// with a nil error.
func (c *Cell) Release() (cache.Result, error) {
	if !c.recache || c.service == nil {
		return cache.Unknown, nil
	}

	svc := c.service
	c.service = nil
	res, err := svc.Cache(c.cacheID, c.index, c)
	if err != nil {
		return res, fmt.Errorf("failed to re-stage cell %s/%d: %w", c.cacheID, c.index, err)
	}
	log.WithFields(log.Fields{
		"cache":  c.cacheID,
		"index":  c.index,
		"result": res,
	}).Debug("cell released")
	return res, nil
}

// Encoding layout, little endian:
//
//	magic[4] version[1] ndims[u32] dims[ndims]i64 source[u64] len[u64] data
const headerLen = len(magic) + 1 + 4

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Cell) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, headerLen+8*len(c.dims)+16+len(c.data)))
	buf.WriteString(magic)
	buf.WriteByte(version)

	le := binary.LittleEndian
	_ = binary.Write(buf, le, uint32(len(c.dims)))
	for _, d := range c.dims {
		_ = binary.Write(buf, le, int64(d))
	}
	_ = binary.Write(buf, le, c.source)
	_ = binary.Write(buf, le, uint64(len(c.data)))
	buf.Write(c.data)
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The decoded cell
// keeps its original source hash, so a cell that was modified before staging
// is still dirty when it comes back.
func (c *Cell) UnmarshalBinary(raw []byte) error {
	if len(raw) < headerLen || string(raw[:len(magic)]) != magic {
		return ErrCorrupt
	}
	if v := raw[len(magic)]; v != version {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	le := binary.LittleEndian
	r := bytes.NewReader(raw[len(magic)+1:])

	var ndims uint32
	if err := binary.Read(r, le, &ndims); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if int64(ndims)*8 > int64(r.Len()) {
		return fmt.Errorf("%w: %d dims exceed payload", ErrCorrupt, ndims)
	}

	dims := make([]int, ndims)
	for i := range dims {
		var d int64
		if err := binary.Read(r, le, &d); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		dims[i] = int(d)
	}

	var source, n uint64
	if err := binary.Read(r, le, &source); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := binary.Read(r, le, &n); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if n != uint64(r.Len()) {
		return fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, r.Len(), n)
	}

	data := make([]byte, n)
	_, _ = r.Read(data)

	c.dims = dims
	c.data = data
	c.source = source
	c.Update()
	return nil
}
