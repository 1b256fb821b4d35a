package vmm

import (
	"testing"

	"kernelcore/kernel/mem"

	"github.com/stretchr/testify/require"
)

type fakeExtender struct {
	growCalls  int
	blocksLeft int
}

func (f *fakeExtender) Grow(currentBlockCount int) int {
	f.growCalls++
	if f.blocksLeft <= 0 {
		return 0
	}
	n := f.blocksLeft
	f.blocksLeft = 0
	return n
}

func TestLinearAllocateAndRelease(t *testing.T) {
	l := NewLinear(0x10000000, 16, nil)
	addr, err := l.AllocateOrExtend(mem.PageSize)
	require.Nil(t, err)
	require.True(t, addr.Aligned())

	l.Release(addr)
	require.Equal(t, uint64(16)*uint64(mem.PageSize), l.FreeSize())
}

func TestLinearSelfExtendsWhenExhausted(t *testing.T) {
	ext := &fakeExtender{blocksLeft: 4}
	l := NewLinear(0x10000000, 1, ext)

	_, err := l.AllocateOrExtend(mem.PageSize)
	require.Nil(t, err)

	// Arena only had 1 block; the next allocation must trigger exactly one
	// self-extension round before it succeeds.
	_, err = l.AllocateOrExtend(mem.PageSize)
	require.Nil(t, err)
	require.Equal(t, 1, ext.growCalls)
}

func TestLinearExhaustedWithNoExtender(t *testing.T) {
	l := NewLinear(0x10000000, 1, nil)
	_, err := l.AllocateOrExtend(mem.PageSize)
	require.Nil(t, err)

	_, err = l.AllocateOrExtend(mem.PageSize)
	require.Equal(t, ErrLinearExhausted, err)
}

func TestLinearExhaustedWhenExtenderCannotGrowFurther(t *testing.T) {
	ext := &fakeExtender{blocksLeft: 0}
	l := NewLinear(0x10000000, 1, ext)
	_, err := l.AllocateOrExtend(mem.PageSize)
	require.Nil(t, err)

	_, err = l.AllocateOrExtend(mem.PageSize)
	require.Equal(t, ErrLinearExhausted, err)
	require.Equal(t, 1, ext.growCalls)
}

func TestLinearMarkMappedTracksPartialMapping(t *testing.T) {
	l := NewLinear(0x10000000, 16, nil)
	addr, err := l.AllocateOrExtend(mem.PageSize * 4)
	require.Nil(t, err)

	require.Equal(t, mem.Size(0), l.CheckAndUnmap(addr))
	l.MarkMapped(addr, mem.PageSize)
	require.Equal(t, mem.PageSize, l.CheckAndUnmap(addr))
	l.MarkMapped(addr, mem.PageSize)
	require.Equal(t, mem.PageSize*2, l.CheckAndUnmap(addr))
}
