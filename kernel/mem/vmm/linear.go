package vmm

import (
	"kernelcore/kernel"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/mem/buddy"
	"kernelcore/kernel/sync"
)

// ErrLinearExhausted is returned when a linear range cannot be satisfied
// even after the manager's self-extension hook has been given a chance to
// grow the backing header array.
var ErrLinearExhausted = &kernel.Error{Module: "vmm", Code: -3, Message: "no free linear address range"}

// Extender backs a Linear's self-extension protocol: when the underlying
// buddy header array runs out of room to describe more free space, Grow maps
// one additional backing page for it and reports how many more minimum-order
// blocks that page can now describe.
type Extender interface {
	// Grow is called with the number of blocks the header array can
	// currently address; it must map whatever backing memory is needed to
	// describe at least one further block and return the number of new
	// blocks now available (0 if no further growth is possible).
	Grow(currentBlockCount int) int
}

// Linear is the linear (virtual address range) block manager: a
// buddy.Manager specialised with a map of currently-mapped sizes (since a
// linear allocation's region is, unlike a physical frame, not homogeneous --
// the caller may only have mapped a prefix of a larger reserved range) and a
// self-extension hook for growing its own header array on demand.
//
// Grounded on original_source/src/kernel/memory/linearblock.c
// (allocateLinearPages self-extension loop: try allocate, on failure map one
// more header page and retry) and kernel/mem/buddy for the underlying
// segregated free-list mechanics.
type Linear struct {
	buddy    *buddy.Manager
	lock     sync.Spinlock
	mapped   map[uint32]mem.Size
	extend   Extender
	maxRetry int
}

// NewLinear creates a linear block manager covering blockCount minimum-size
// ranges starting at beginAddr, using extend to grow its own backing header
// array when exhausted.
func NewLinear(beginAddr uint32, blockCount int, extend Extender) *Linear {
	return &Linear{
		buddy:    buddy.New(beginAddr, blockCount),
		mapped:   make(map[uint32]mem.Size),
		extend:   extend,
		maxRetry: 64,
	}
}

// AllocateOrExtend reserves a virtual range of at least size bytes,
// self-extending the manager's own header array (via Extender.Grow) when the
// first attempt is exhausted, up to maxRetry attempts. mappedSize records how
// much of the returned range the caller has actually backed with physical
// pages so far; it starts at 0 and is advanced by MarkMapped as the caller
// installs page table entries lazily.
func (l *Linear) AllocateOrExtend(size mem.Size) (mem.VirtAddr, *kernel.Error) {
	for attempt := 0; ; attempt++ {
		addr, _, ok := l.buddy.Allocate(size, 0)
		if ok {
			l.lock.Acquire()
			l.mapped[addr] = 0
			l.lock.Release()
			return mem.VirtAddr(addr), nil
		}
		if l.extend == nil || attempt >= l.maxRetry {
			return 0, ErrLinearExhausted
		}
		added := l.extend.Grow(l.buddy.BlockCount())
		if added <= 0 {
			return 0, ErrLinearExhausted
		}
		l.buddy.Grow(added)
	}
}

// MarkMapped records that size bytes of vaddr's range are now backed by
// physical mappings, for accounting by CheckAndUnmap.
func (l *Linear) MarkMapped(vaddr mem.VirtAddr, size mem.Size) {
	l.lock.Acquire()
	defer l.lock.Release()
	l.mapped[uint32(vaddr)] += size
}

// MappedSize reports how much of vaddr's range has been marked mapped.
func (l *Linear) MappedSize(vaddr mem.VirtAddr) mem.Size {
	l.lock.Acquire()
	defer l.lock.Release()
	return l.mapped[uint32(vaddr)]
}

// Release returns vaddr's range to the free pool. The caller is responsible
// for having already unmapped and released any physical pages backing it
// (see CheckAndUnmap).
func (l *Linear) Release(vaddr mem.VirtAddr) {
	l.lock.Acquire()
	delete(l.mapped, uint32(vaddr))
	l.lock.Release()
	l.buddy.Release(uint32(vaddr))
}

// CheckAndUnmap returns how many bytes of vaddr's range are currently
// recorded as mapped (see MarkMapped); a nonzero result tells a caller it
// must unmap before releasing the range back to this manager. It does not
// unmap anything itself.
func (l *Linear) CheckAndUnmap(vaddr mem.VirtAddr) mem.Size {
	return l.MappedSize(vaddr)
}

// FreeSize returns the number of unreserved bytes of address space.
func (l *Linear) FreeSize() uint64 {
	return l.buddy.FreeSize()
}
