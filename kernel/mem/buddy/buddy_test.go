package buddy

import (
	"testing"

	"kernelcore/kernel/mem"

	"github.com/stretchr/testify/require"
)

func TestAllocateReleaseRoundTrip(t *testing.T) {
	m := New(0, 256) // 256 * 4KiB = 1MiB arena
	initialFree := m.FreeSize()

	addr, size, ok := m.Allocate(mem.PageSize, 0)
	require.True(t, ok)
	require.Equal(t, mem.PageSize, size)
	require.True(t, mem.PhysAddr(addr).Aligned())

	require.Less(t, m.FreeSize(), initialFree)
	m.Release(addr)
	require.Equal(t, initialFree, m.FreeSize())
}

func TestAllocateExactlyMaxBlockSize(t *testing.T) {
	blockCount := 1 << uint(MaxOrder-MinOrder)
	m := New(0, blockCount)

	addr, size, ok := m.Allocate(mem.Size(1)<<uint(MaxOrder), 0)
	require.True(t, ok)
	require.Equal(t, uint32(0), addr)
	require.Equal(t, mem.Size(1)<<uint(MaxOrder), size)

	// One byte more (i.e. a second top-order block) now fails: the arena
	// only had one top-order block.
	_, _, ok = m.Allocate(mem.Size(1)<<uint(MaxOrder), 0)
	require.False(t, ok)
}

func TestSplitToRequestedSize(t *testing.T) {
	m := New(0, 16)
	addr, size, ok := m.Allocate(mem.PageSize, mem.PageSize)
	require.True(t, ok)
	require.Equal(t, mem.PageSize, size)
	require.Equal(t, uint8(MinOrder), m.OrderAt(addr))
}

func TestBuddyCoalescesOnRelease(t *testing.T) {
	m := New(0, 2)

	a1, _, ok := m.Allocate(mem.PageSize, mem.PageSize)
	require.True(t, ok)
	a2, _, ok := m.Allocate(mem.PageSize, mem.PageSize)
	require.True(t, ok)

	buddyOfA1, ok := m.GetBuddy(a1)
	require.True(t, ok)
	require.Equal(t, a2, buddyOfA1)

	m.Release(a1)
	m.Release(a2)

	// Both blocks coalesced back into a single top-order block; a full
	// arena allocation should now succeed in one call.
	addr, size, ok := m.Allocate(mem.PageSize*2, 0)
	require.True(t, ok)
	require.Equal(t, uint32(0), addr)
	require.Equal(t, mem.PageSize*2, size)
}

func TestExhaustionReturnsFalse(t *testing.T) {
	m := New(0, 1)
	_, _, ok := m.Allocate(mem.PageSize, 0)
	require.True(t, ok)
	_, _, ok = m.Allocate(mem.PageSize, 0)
	require.False(t, ok)
}

func TestGrowAddsUsableFreeSpace(t *testing.T) {
	m := New(0, 1)
	_, _, ok := m.Allocate(mem.PageSize, 0)
	require.True(t, ok)
	_, _, ok = m.Allocate(mem.PageSize, 0)
	require.False(t, ok)

	m.Grow(1)
	addr, _, ok := m.Allocate(mem.PageSize, 0)
	require.True(t, ok)
	require.Equal(t, m.beginAddr+uint32(mem.PageSize), addr)
}

func TestConcurrentAllocateReleaseLIFOPreservesFreeSize(t *testing.T) {
	m := New(0, 64)
	initial := m.FreeSize()

	done := make(chan struct{})
	for w := 0; w < 2; w++ {
		go func() {
			var addrs []uint32
			for i := 0; i < 1000; i++ {
				a, _, ok := m.Allocate(mem.PageSize, 0)
				if ok {
					addrs = append(addrs, a)
				}
			}
			for i := len(addrs) - 1; i >= 0; i-- {
				m.Release(addrs[i])
			}
			done <- struct{}{}
		}()
	}
	<-done
	<-done
	require.Equal(t, initial, m.FreeSize())
}
