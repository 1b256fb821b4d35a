// Package pmm implements the physical block manager: a buddy.Manager
// specialised to physical memory frames, with a per-block reference count so
// that a frame shared by several mappings is only returned to the buddy
// allocator once every mapping has been torn down.
//
// Grounded on original_source/src/kernel/memory/physicalblock.c
// (allocatePhysicalPages, addSharedPhysicalPages, releasePhysicalPages) and
// the teacher's pmm.Frame index type (kernel/mem/pmm/frame.go), generalized
// here to a PhysAddr-keyed reference count table per spec.md §3.3/§4.2.
package pmm

import (
	"kernelcore/kernel"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/mem/buddy"
	"kernelcore/kernel/sync"
)

// MaxRefCount is the reference-count ceiling; further AddReference calls
// once a frame is at this count fail with ErrCannotShare.
const MaxRefCount = ^uint32(0)

var (
	// ErrExhausted is returned when no free physical frame is available.
	ErrExhausted = &kernel.Error{Module: "pmm", Code: -1, Message: "no free physical frames"}
	// ErrCannotShare is returned when AddReference would overflow a
	// frame's reference count.
	ErrCannotShare = &kernel.Error{Module: "pmm", Code: -2, Message: "cannot share: reference count at maximum"}
)

// Manager is the physical block manager: a buddy allocator plus a
// reference-count table, one entry per minimum-size block in range.
type Manager struct {
	buddy *buddy.Manager
	lock  sync.Spinlock
	refs  map[uint32]uint32 // PhysAddr -> refcount, keyed by block base address
}

// New creates a physical block manager covering blockCount frames starting
// at beginAddr.
func New(beginAddr uint32, blockCount int) *Manager {
	return &Manager{
		buddy: buddy.New(beginAddr, blockCount),
		refs:  make(map[uint32]uint32),
	}
}

// Allocate reserves a single physical frame and pre-sets its reference count
// to 1, per spec.md §3.3 ("every fresh allocation starts at 1").
func (m *Manager) Allocate() (mem.PhysAddr, *kernel.Error) {
	addr, _, ok := m.buddy.Allocate(mem.PageSize, mem.PageSize)
	if !ok {
		return 0, ErrExhausted
	}
	m.lock.Acquire()
	m.refs[addr] = 1
	m.lock.Release()
	return mem.PhysAddr(addr), nil
}

// AllocateRange reserves a contiguous run of frames large enough for size
// bytes, splitting the result down to page granularity so every page in the
// run gets its own independent reference count.
func (m *Manager) AllocateRange(size mem.Size) (mem.PhysAddr, *kernel.Error) {
	base, actual, ok := m.buddy.Allocate(size, mem.PageSize)
	if !ok {
		return 0, ErrExhausted
	}
	m.lock.Acquire()
	for off := mem.Size(0); off < actual; off += mem.PageSize {
		m.refs[base+uint32(off)] = 1
	}
	m.lock.Release()
	return mem.PhysAddr(base), nil
}

// AddReference increments addr's reference count, failing when it is
// already at MaxRefCount. Addresses outside the managed range are treated as
// success: they are BIOS-fixed regions (e.g. the multiboot info blob) that
// this manager never owned in the first place, so there is nothing to
// track.
func (m *Manager) AddReference(addr mem.PhysAddr) *kernel.Error {
	m.lock.Acquire()
	defer m.lock.Release()
	cur, tracked := m.refs[uint32(addr)]
	if !tracked {
		return nil
	}
	if cur == MaxRefCount {
		return ErrCannotShare
	}
	m.refs[uint32(addr)] = cur + 1
	return nil
}

// Release decrements addr's reference count and, on transition to zero,
// returns the underlying block to the buddy allocator.
func (m *Manager) Release(addr mem.PhysAddr) {
	m.lock.Acquire()
	cur, tracked := m.refs[uint32(addr)]
	if !tracked {
		m.lock.Release()
		return
	}
	cur--
	if cur == 0 {
		delete(m.refs, uint32(addr))
		m.lock.Release()
		m.buddy.Release(uint32(addr))
		return
	}
	m.refs[uint32(addr)] = cur
	m.lock.Release()
}

// RefCount returns the current reference count for addr, or 0 if it is not
// currently allocated.
func (m *Manager) RefCount(addr mem.PhysAddr) uint32 {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.refs[uint32(addr)]
}

// FreeSize returns the number of free bytes remaining.
func (m *Manager) FreeSize() uint64 {
	return m.buddy.FreeSize()
}
