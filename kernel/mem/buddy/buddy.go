// Package buddy implements an order-based buddy block allocator over an
// index-addressed array of fixed-size headers, one per minimum-size (4 KiB)
// block. It underlies both the physical-frame allocator (kernel/mem/pmm) and
// the virtual-range allocator (kernel/mem/vmm), which specialise it with
// their own per-block extra fields (reference counts, mapped-size).
//
// Grounded on original_source/src/kernel/memory/buddy.c
// (allocateBlock_noLock, getBuddy, releaseBlock_noLock) and the free-list
// idiom of the teacher's bitmap allocator
// (kernel/mem/pmm/allocator/bitmap_allocator.go), generalized from a bitmap
// to an explicit order-segregated free list per spec.
package buddy

import (
	"kernelcore/kernel/mem"
	"kernelcore/kernel/sync"
)

const (
	// MinOrder is the order of the smallest block this allocator hands
	// out: one page (4 KiB).
	MinOrder = mem.MinBlockOrder

	// MaxOrder is the order of the largest block: 2^30 bytes.
	MaxOrder = mem.MaxBlockOrder

	// NumOrders is the number of distinct free lists, one per order in
	// [MinOrder, MaxOrder].
	NumOrders = MaxOrder - MinOrder + 1

	noIndex = -1
)

// Status is a block's tri-state tag. A block is only ever on a free list
// while its status is FreeOrCovered.
type Status uint8

const (
	// FreeOrCovered means the block may be free, or may be covered by an
	// in-use block of a larger order that was split from it.
	FreeOrCovered Status = iota
	// InUse means the block (or a larger block covering it) is
	// allocated.
	InUse
	// Releasing is a transient state held while Release is unwinding a
	// block's mappings; it exists so that a concurrent lookup never
	// observes a block as simultaneously InUse and already handed back.
	Releasing
)

// block is one buddy-allocator header. prev/next model the intrusive
// doubly-linked free list as indices into Manager.blocks rather than raw
// pointers, per the kernel's guidance for memory-safe intrusive queues: the
// "in free list?" predicate becomes "prev/next != noIndex".
type block struct {
	order  uint8
	status Status
	prev   int32
	next   int32
}

// Manager is a buddy allocator over a contiguous address range starting at
// BeginAddr, divided into BlockCount minimum-size blocks.
type Manager struct {
	lock      sync.Spinlock
	beginAddr uint32
	blocks    []block
	freeHead  [NumOrders]int32
	freeSize  uint64
}

// New creates a buddy manager covering [beginAddr, beginAddr+blockCount*4KiB).
// All blocks start FreeOrCovered and are threaded onto the free lists by
// order, largest-first, the same greedy split-from-the-top layout the
// original C initMemoryBlockManager produces.
func New(beginAddr uint32, blockCount int) *Manager {
	m := &Manager{
		beginAddr: beginAddr,
		blocks:    make([]block, blockCount),
	}
	for i := range m.freeHead {
		m.freeHead[i] = noIndex
	}
	m.layoutInitialFreeBlocks()
	return m
}

// layoutInitialFreeBlocks partitions the whole arena into the largest
// power-of-two blocks that fit, so that a freshly constructed manager is
// immediately usable by Allocate without a separate "format" pass.
func (m *Manager) layoutInitialFreeBlocks() {
	idx := 0
	remaining := len(m.blocks)
	for remaining > 0 {
		order := MaxOrder
		span := 1 << uint(order-MinOrder)
		for span > remaining || !isOrderAligned(idx, order) {
			order--
			span = 1 << uint(order-MinOrder)
		}
		m.blocks[idx] = block{order: uint8(order), status: FreeOrCovered, prev: noIndex, next: noIndex}
		m.pushFree(idx)
		m.freeSize += uint64(mem.PageSize) << uint(order-MinOrder)
		idx += span
		remaining -= span
	}
}

func isOrderAligned(index, order int) bool {
	span := 1 << uint(order-MinOrder)
	return index%span == 0
}

func (m *Manager) pushFree(index int) {
	order := m.blocks[index].order
	head := m.freeHead[order-MinOrder]
	m.blocks[index].prev = noIndex
	m.blocks[index].next = head
	if head != noIndex {
		m.blocks[head].prev = int32(index)
	}
	m.freeHead[order-MinOrder] = int32(index)
}

func (m *Manager) removeFree(index int) {
	b := &m.blocks[index]
	if b.prev != noIndex {
		m.blocks[b.prev].next = b.next
	} else {
		m.freeHead[b.order-MinOrder] = b.next
	}
	if b.next != noIndex {
		m.blocks[b.next].prev = b.prev
	}
	b.prev, b.next = noIndex, noIndex
}

func ceilOrder(size mem.Size) int {
	order := MinOrder
	for mem.Size(1)<<uint(order) < size {
		order++
	}
	return order
}

// Allocate finds the smallest free block of order >= ceil(log2(size)),
// optionally splitting it down to splitSize-sized sub-blocks and handing
// back the first one. Ties are broken by lowest order first, and within an
// order, by list-head first -- the same tie-break the original C allocator
// uses. It returns the allocated address and the block's actual (possibly
// larger than requested) size.
func (m *Manager) Allocate(size mem.Size, splitSize mem.Size) (addr uint32, actualSize mem.Size, ok bool) {
	m.lock.Acquire()
	defer m.lock.Release()

	wantOrder := ceilOrder(size)
	splitOrder := wantOrder
	if splitSize > 0 {
		so := ceilOrder(splitSize)
		if so < wantOrder {
			splitOrder = so
		}
	}
	if wantOrder > MaxOrder {
		return 0, 0, false
	}

	foundOrder := -1
	for o := wantOrder; o <= MaxOrder; o++ {
		if m.freeHead[o-MinOrder] != noIndex {
			foundOrder = o
			break
		}
	}
	if foundOrder == -1 {
		return 0, 0, false
	}

	index := int(m.freeHead[foundOrder-MinOrder])
	m.removeFree(index)
	m.blocks[index].status = InUse

	for m.blocks[index].order > uint8(wantOrder) {
		m.blocks[index].order--
		buddyIdx, hasBuddy := m.buddyIndex(index)
		if !hasBuddy {
			break
		}
		m.blocks[buddyIdx] = block{order: m.blocks[index].order, status: FreeOrCovered, prev: noIndex, next: noIndex}
		m.pushFree(buddyIdx)
	}

	// Re-split the allocated run into in-use splitOrder sub-blocks, each
	// with its own header so it can be released on its own.
	step := 1 << uint(splitOrder-MinOrder)
	for i := step; i < 1<<uint(wantOrder-MinOrder); i += step {
		m.blocks[index+i] = block{order: uint8(splitOrder), status: InUse, prev: noIndex, next: noIndex}
	}
	m.blocks[index].order = uint8(splitOrder)

	m.freeSize -= uint64(mem.PageSize) << uint(wantOrder-MinOrder)
	return m.indexToAddr(index), mem.Size(1) << uint(wantOrder), true
}

// Release returns a previously allocated block to the free pool, coalescing
// with its buddy while the buddy exists, is free, and has equal order.
// Coalescing always keeps the lower-address representative, matching
// getBuddy's index-XOR identity.
func (m *Manager) Release(addr uint32) {
	m.lock.Acquire()
	defer m.lock.Release()

	index := m.addrToIndex(addr)
	m.blocks[index].status = Releasing
	m.freeSize += uint64(mem.PageSize) << uint(m.blocks[index].order-MinOrder)

	for {
		buddyIdx, hasBuddy := m.buddyIndex(index)
		if !hasBuddy {
			break
		}
		bb := &m.blocks[buddyIdx]
		if bb.status != FreeOrCovered || bb.order != m.blocks[index].order {
			break
		}
		if bb.order == MaxOrder {
			break
		}
		m.removeFree(buddyIdx)
		if buddyIdx < index {
			index = buddyIdx
		}
		m.blocks[index].order++
	}

	m.blocks[index].status = FreeOrCovered
	m.pushFree(index)
}

// GetBuddy returns the address of addr's buddy block at its current order,
// or ok=false if the computed index falls outside the managed range.
func (m *Manager) GetBuddy(addr uint32) (buddyAddr uint32, ok bool) {
	m.lock.Acquire()
	defer m.lock.Release()
	idx, has := m.buddyIndex(m.addrToIndex(addr))
	if !has {
		return 0, false
	}
	return m.indexToAddr(idx), true
}

// buddyIndex XORs index with 1<<(order-MinOrder); callers must already hold
// m.lock.
func (m *Manager) buddyIndex(index int) (int, bool) {
	order := m.blocks[index].order
	buddy := index ^ (1 << uint(order-MinOrder))
	if buddy >= len(m.blocks) {
		return 0, false
	}
	return buddy, true
}

func (m *Manager) addrToIndex(addr uint32) int {
	return int((addr - m.beginAddr) / uint32(mem.PageSize))
}

func (m *Manager) indexToAddr(index int) uint32 {
	return m.beginAddr + uint32(index)*uint32(mem.PageSize)
}

// FreeSize returns the total number of bytes currently free.
func (m *Manager) FreeSize() uint64 {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.freeSize
}

// BeginAddr returns the base address of the managed range.
func (m *Manager) BeginAddr() uint32 {
	return m.beginAddr
}

// BlockCount returns the number of minimum-size blocks currently tracked.
func (m *Manager) BlockCount() int {
	m.lock.Acquire()
	defer m.lock.Release()
	return len(m.blocks)
}

// Grow appends additionalBlocks freshly-free minimum-order blocks to the end
// of the managed range and pushes each onto the minimum-order free list; the
// new blocks are not coalesced with each other or with their buddies. It backs
// the linear manager's self-extension: when an allocation request can't be
// satisfied, the caller maps one more backing page for this header array and
// retries via Grow before calling Allocate again.
func (m *Manager) Grow(additionalBlocks int) {
	m.lock.Acquire()
	defer m.lock.Release()
	start := len(m.blocks)
	for i := 0; i < additionalBlocks; i++ {
		m.blocks = append(m.blocks, block{order: MinOrder, status: FreeOrCovered, prev: noIndex, next: noIndex})
		idx := start + i
		m.pushFree(idx)
		m.freeSize += uint64(mem.PageSize)
	}
}

// StatusAt reports the status of the block containing addr, for tests and
// invariant checks.
func (m *Manager) StatusAt(addr uint32) Status {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.blocks[m.addrToIndex(addr)].status
}

// OrderAt reports the order of the block containing addr.
func (m *Manager) OrderAt(addr uint32) uint8 {
	m.lock.Acquire()
	defer m.lock.Release()
	return m.blocks[m.addrToIndex(addr)].order
}
