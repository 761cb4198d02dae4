package alloc

import (
	"fmt"
	"sort"
	"sync"
)

// Allocator hands out file addresses. Freed space is held back until Release
// and then reused first-fit; everything else is appended at end of file.
type Allocator struct {
	mu sync.Mutex

	eofAddr  uint64
	baseAddr uint64

	free    []Block // reusable, sorted by address, coalesced
	pending []Block // freed since the last Release

	stats Stats
}

// Block is a contiguous range of file space.
type Block struct {
	Addr uint64
	Size uint64
}

// End returns the first address past the block.
func (b Block) End() uint64 { return b.Addr + b.Size }

// Stats contains allocation statistics.
type Stats struct {
	Allocations  uint64 // number of Alloc calls with a non-zero size
	BytesAlloc   uint64 // bytes handed out
	BytesReused  uint64 // bytes handed out from released space
	BytesFree    uint64 // bytes currently reusable
	BytesPending uint64 // bytes freed but not yet released
	LargestAlloc uint64
}

// New creates an Allocator whose first allocation is at baseAddr.
func New(baseAddr uint64) *Allocator {
	return &Allocator{eofAddr: baseAddr, baseAddr: baseAddr}
}

// Alloc returns the address of a block of the given size.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if size == 0 {
		return a.eofAddr
	}
	a.stats.Allocations++
	a.stats.BytesAlloc += size
	if size > a.stats.LargestAlloc {
		a.stats.LargestAlloc = size
	}

	for i, b := range a.free {
		if b.Size < size {
			continue
		}
		addr := b.Addr
		if b.Size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i] = Block{Addr: b.Addr + size, Size: b.Size - size}
		}
		a.stats.BytesReused += size
		a.stats.BytesFree -= size
		return addr
	}

	addr := a.eofAddr
	a.eofAddr += size
	return addr
}

// Free marks a block as no longer referenced by the next commit.
func (a *Allocator) Free(addr, size uint64) {
	if size == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, Block{Addr: addr, Size: size})
	a.stats.BytesPending += size
}

// Release makes every pending block reusable.
func (a *Allocator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.pending) == 0 {
		return
	}
	all := append(a.free, a.pending...)
	sort.Slice(all, func(i, j int) bool { return all[i].Addr < all[j].Addr })

	merged := all[:0]
	for _, b := range all {
		if n := len(merged); n > 0 && merged[n-1].End() >= b.Addr {
			if b.End() > merged[n-1].End() {
				merged[n-1].Size = b.End() - merged[n-1].Addr
			}
			continue
		}
		merged = append(merged, b)
	}
	a.free = merged
	a.pending = nil

	a.stats.BytesPending = 0
	a.stats.BytesFree = 0
	for _, b := range a.free {
		a.stats.BytesFree += b.Size
	}
}

// EOFAddr returns the end-of-file address.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eofAddr
}

// SetEOFAddr moves the end-of-file address, used when loading an existing file.
func (a *Allocator) SetEOFAddr(addr uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if addr < a.baseAddr {
		addr = a.baseAddr
	}
	a.eofAddr = addr
}

// BaseAddr returns the first allocatable address.
func (a *Allocator) BaseAddr() uint64 { return a.baseAddr }

// Stats returns a copy of the allocation statistics.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// FreeBlocks returns a copy of the reusable blocks.
func (a *Allocator) FreeBlocks() []Block {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Block, len(a.free))
	copy(out, a.free)
	return out
}

// Validate checks that the reusable space is inside the file and disjoint.
func (a *Allocator) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, b := range a.free {
		if b.Addr < a.baseAddr || b.End() > a.eofAddr {
			return fmt.Errorf("free block [0x%x, size %d] outside [0x%x, 0x%x)", b.Addr, b.Size, a.baseAddr, a.eofAddr)
		}
		if i > 0 && a.free[i-1].End() > b.Addr {
			return fmt.Errorf("overlapping free blocks at 0x%x and 0x%x", a.free[i-1].Addr, b.Addr)
		}
	}
	return nil
}
