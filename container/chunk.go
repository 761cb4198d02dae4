package container

import (
	"container/list"
	"fmt"
	"slices"
)

// chunkKey is a chunk's grid coordinate (element offset divided by chunk size).
type chunkKey [3]uint64

// chunkRef locates a stored chunk.
type chunkRef struct {
	addr uint64
	size uint32
	mask uint32
}

type cachedChunk struct {
	key   chunkKey
	data  []byte
	dirty bool
}

// chunkCache keeps the most recently used decoded chunks of one array.
type chunkCache struct {
	capacity int
	order    *list.List // front = most recent
	entries  map[chunkKey]*list.Element
}

func newChunkCache(capacity int) *chunkCache {
	return &chunkCache{capacity: capacity, order: list.New(), entries: make(map[chunkKey]*list.Element)}
}

func (cc *chunkCache) get(k chunkKey) *cachedChunk {
	e, ok := cc.entries[k]
	if !ok {
		return nil
	}
	cc.order.MoveToFront(e)
	return e.Value.(*cachedChunk)
}

func (cc *chunkCache) add(ch *cachedChunk) {
	cc.entries[ch.key] = cc.order.PushFront(ch)
}

func (cc *chunkCache) full() bool { return cc.order.Len() >= cc.capacity }

func (cc *chunkCache) oldest() *cachedChunk {
	if e := cc.order.Back(); e != nil {
		return e.Value.(*cachedChunk)
	}
	return nil
}

func (cc *chunkCache) remove(k chunkKey) {
	if e, ok := cc.entries[k]; ok {
		cc.order.Remove(e)
		delete(cc.entries, k)
	}
}

func (cc *chunkCache) dirty() []*cachedChunk {
	var out []*cachedChunk
	for e := cc.order.Back(); e != nil; e = e.Prev() {
		if ch := e.Value.(*cachedChunk); ch.dirty {
			out = append(out, ch)
		}
	}
	return out
}

func (a *ExtendableArray) chunkBytes() int {
	n := int(a.elem.size)
	for _, d := range a.chunk {
		n *= int(d)
	}
	return n
}

func keyOf(grid []uint64) chunkKey {
	var k chunkKey
	copy(k[:], grid)
	return k
}

// chunkFor returns the decoded chunk at k. Missing chunks are created
// zero-filled when create is set and reported as nil otherwise.
func (a *ExtendableArray) chunkFor(k chunkKey, create bool) (*cachedChunk, error) {
	if ch := a.cache.get(k); ch != nil {
		return ch, nil
	}
	ref, stored := a.chunks[k]
	if !stored && !create {
		return nil, nil
	}
	if a.cache.full() {
		victim := a.cache.oldest()
		if victim.dirty {
			if err := a.storeChunk(victim); err != nil {
				return nil, err
			}
		}
		a.cache.remove(victim.key)
	}

	ch := &cachedChunk{key: k}
	if stored {
		data, err := a.loadChunk(ref)
		if err != nil {
			return nil, err
		}
		ch.data = data
	} else {
		ch.data = make([]byte, a.chunkBytes())
	}
	a.cache.add(ch)
	return ch, nil
}

func (a *ExtendableArray) loadChunk(ref chunkRef) ([]byte, error) {
	raw := make([]byte, ref.size)
	if _, err := a.c.file.ReadAt(raw, int64(ref.addr)); err != nil {
		return nil, &IOError{Path: a.c.path, Op: "read chunk", Err: err}
	}
	data, err := a.pipe.Decode(raw, ref.mask)
	if err != nil {
		return nil, err
	}
	if len(data) != a.chunkBytes() {
		return nil, fmt.Errorf("chunk at %d decoded to %d bytes, want %d", ref.addr, len(data), a.chunkBytes())
	}
	return data, nil
}

// storeChunk encodes a dirty chunk and writes it. Unfiltered chunks are
// rewritten in place; filtered chunks move to fresh space and the old
// space is released at the next commit.
func (a *ExtendableArray) storeChunk(ch *cachedChunk) error {
	enc, mask, err := a.pipe.Encode(ch.data)
	if err != nil {
		return err
	}
	if uint64(len(enc)) > uint64(^uint32(0)) {
		return fmt.Errorf("encoded chunk of %d bytes exceeds 4 GiB", len(enc))
	}
	old, stored := a.chunks[ch.key]
	addr := old.addr
	if !stored || !a.pipe.Empty() || old.size != uint32(len(enc)) {
		addr = a.c.alloc.Alloc(uint64(len(enc)))
	}
	if _, err := a.c.file.WriteAt(enc, int64(addr)); err != nil {
		return &IOError{Path: a.c.path, Op: "write chunk", Err: err}
	}
	if stored && addr != old.addr {
		a.c.alloc.Free(old.addr, uint64(old.size))
	}
	a.chunks[ch.key] = chunkRef{addr: addr, size: uint32(len(enc)), mask: mask}
	ch.dirty = false
	return nil
}

// flushChunks stores every dirty cached chunk.
func (a *ExtendableArray) flushChunks() error {
	for _, ch := range a.cache.dirty() {
		if err := a.storeChunk(ch); err != nil {
			return err
		}
	}
	return nil
}

// eachIndex calls fn for every index tuple in the box [lo, hi). A zero-rank
// box has exactly one (empty) index.
func eachIndex(lo, hi []uint64, fn func(idx []uint64) error) error {
	for i := range lo {
		if lo[i] >= hi[i] {
			return nil
		}
	}
	idx := slices.Clone(lo)
	for {
		if err := fn(idx); err != nil {
			return err
		}
		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < hi[d] {
				break
			}
			idx[d] = lo[d]
		}
		if d < 0 {
			return nil
		}
	}
}

// linear returns the row-major position of idx inside a box at origin with shape.
func linear(idx, origin, shape []uint64) uint64 {
	var off uint64
	for i := range idx {
		off = off*shape[i] + idx[i] - origin[i]
	}
	return off
}

// transfer copies between packed box data and the chunks overlapping the
// box [start, start+count). write selects the direction.
func (a *ExtendableArray) transfer(start, count []uint64, data []byte, write bool) error {
	rank := len(start)
	end := make([]uint64, rank)
	gridLo := make([]uint64, rank)
	gridHi := make([]uint64, rank)
	for i := range rank {
		if count[i] == 0 {
			return nil
		}
		end[i] = start[i] + count[i]
		gridLo[i] = start[i] / a.chunk[i]
		gridHi[i] = (end[i]-1)/a.chunk[i] + 1
	}
	es := uint64(a.elem.size)
	origin := make([]uint64, rank)
	lo := make([]uint64, rank)
	hi := make([]uint64, rank)

	return eachIndex(gridLo, gridHi, func(grid []uint64) error {
		for i := range rank {
			origin[i] = grid[i] * a.chunk[i]
			lo[i] = max(start[i], origin[i])
			hi[i] = min(end[i], origin[i]+a.chunk[i])
		}
		ch, err := a.chunkFor(keyOf(grid), write)
		if err != nil {
			return err
		}
		run := (hi[rank-1] - lo[rank-1]) * es
		err = eachIndex(lo[:rank-1], hi[:rank-1], func(prefix []uint64) error {
			idx := append(slices.Clone(prefix), lo[rank-1])
			src := linear(idx, start, count) * es
			dst := linear(idx, origin, a.chunk) * es
			switch {
			case write:
				copy(ch.data[dst:dst+run], data[src:src+run])
			case ch != nil:
				copy(data[src:src+run], ch.data[dst:dst+run])
			}
			return nil
		})
		if write {
			ch.dirty = true
		}
		return err
	})
}
