package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorAppends(t *testing.T) {
	a := New(48)
	assert.Equal(t, uint64(48), a.Alloc(100))
	assert.Equal(t, uint64(148), a.Alloc(200))
	assert.Equal(t, uint64(348), a.EOFAddr())

	// Zero-size allocations do not move EOF.
	assert.Equal(t, uint64(348), a.Alloc(0))
	assert.Equal(t, uint64(348), a.EOFAddr())
}

func TestFreeIsDeferredUntilRelease(t *testing.T) {
	a := New(0)
	first := a.Alloc(64)
	a.Alloc(64)

	a.Free(first, 64)
	assert.Equal(t, uint64(128), a.Alloc(32), "pending space must not be reused")
	assert.Equal(t, uint64(64), a.Stats().BytesPending)

	a.Release()
	assert.Equal(t, first, a.Alloc(32))
	assert.Equal(t, first+32, a.Alloc(32))
	assert.Equal(t, uint64(64), a.Stats().BytesReused)
	assert.Empty(t, a.FreeBlocks())
}

func TestReleaseCoalesces(t *testing.T) {
	a := New(0)
	x := a.Alloc(10)
	y := a.Alloc(20)
	z := a.Alloc(30)
	a.Alloc(5)

	a.Free(z, 30)
	a.Free(x, 10)
	a.Free(y, 20)
	a.Release()

	require.Equal(t, []Block{{Addr: 0, Size: 60}}, a.FreeBlocks())
	require.NoError(t, a.Validate())
	assert.Equal(t, uint64(60), a.Stats().BytesFree)

	// A request larger than any free block goes to EOF.
	assert.Equal(t, uint64(65), a.Alloc(100))
}

func TestSetEOFAddr(t *testing.T) {
	a := New(48)
	a.SetEOFAddr(4096)
	assert.Equal(t, uint64(4096), a.Alloc(8))
	a.SetEOFAddr(0)
	assert.Equal(t, uint64(48), a.EOFAddr())
}

func TestConcurrentAlloc(t *testing.T) {
	a := New(0)
	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- a.Alloc(16)
		}()
	}
	wg.Wait()
	close(seen)

	addrs := make(map[uint64]bool)
	for addr := range seen {
		assert.False(t, addrs[addr], "duplicate address %d", addr)
		addrs[addr] = true
	}
	assert.Equal(t, uint64(1600), a.EOFAddr())
}
