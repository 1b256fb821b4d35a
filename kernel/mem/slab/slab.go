// Package slab implements the fixed-size-class slab allocator that sits on
// top of the page allocator for small, frequently allocated kernel objects
// (task control blocks, IORequests, file handles) that would otherwise waste
// most of a 4 KiB page if handed out directly by the buddy allocator.
//
// Grounded on original_source/src/kernel/memory/slab.c (size classes,
// slabs-with-free-units vs. slabs-full list split) per spec.md §4.5; the
// newer src/kernel tree has no slab.c of its own, so this follows the older
// flat src/memory/slab.c's conventions while still implementing the feature
// (spec.md §9, §3.6).
package slab

import (
	"kernelcore/kernel"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/sync"
)

// sizeClasses lists the fixed allocation sizes this allocator serves,
// smallest first. No header overhead is subtracted from any class: slab
// bookkeeping lives in Go-side slabPage values rather than in the page, so
// unitsPerSlab is simply PageSize / unitSize and a caller asking for class
// size N always gets back a block of exactly N usable bytes.
var sizeClasses = []mem.Size{16, 32, 64, 128, 256, 512, 1024, 2048}

// ErrNoMatchingClass is returned when a requested size exceeds the largest
// size class this allocator serves; the caller should fall back to the page
// allocator directly.
var ErrNoMatchingClass = &kernel.Error{Module: "slab", Code: -1, Message: "no size class large enough"}

// PageAllocator is the subset of the page/physical allocation path the slab
// allocator needs to back new slabs: one order-0 (single page) block per
// slab, identified by its base address.
type PageAllocator interface {
	AllocatePage() (uintptr, *kernel.Error)
	ReleasePage(addr uintptr)
}

type unit struct {
	next int32 // index of the next free unit in this slab, or noUnit
}

const noUnit = -1

// slabPage is one page-backed slab: a fixed number of equal-size units, with
// a singly-linked free list threaded through the not-yet-allocated ones.
type slabPage struct {
	base      uintptr
	freeHead  int32
	freeCount int
	units     []unit
	prev      *slabPage
	next      *slabPage
}

// class manages every slab backing one size class.
type class struct {
	lock         sync.Spinlock
	unitSize     mem.Size
	unitsPerSlab int
	partial      *slabPage // slabs with at least one free unit
	full         *slabPage // slabs with zero free units
	pages        PageAllocator
}

// Cache is a full set of size-class allocators, the slab allocator's
// externally visible handle.
type Cache struct {
	classes [len(sizeClasses)]*class
	pages   PageAllocator
}

// New creates a slab cache backed by pages, one class per entry in
// sizeClasses.
func New(pages PageAllocator) *Cache {
	c := &Cache{pages: pages}
	for i, sz := range sizeClasses {
		c.classes[i] = &class{unitSize: sz, unitsPerSlab: unitsPerSlab(sz), pages: pages}
	}
	return c
}

func unitsPerSlab(unitSize mem.Size) int {
	n := int(mem.PageSize / unitSize)
	if n < 1 {
		n = 1
	}
	return n
}

func classIndexFor(size mem.Size) int {
	for i, sz := range sizeClasses {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Allocate returns the address of a block of at least size bytes, carved
// from the smallest size class that fits. The block's contents are not
// cleared.
func (c *Cache) Allocate(size mem.Size) (uintptr, *kernel.Error) {
	idx := classIndexFor(size)
	if idx < 0 {
		return 0, ErrNoMatchingClass
	}
	return c.classes[idx].allocate()
}

// Release returns a previously allocated block of the given requested size
// to its size class.
func (c *Cache) Release(size mem.Size, addr uintptr) {
	idx := classIndexFor(size)
	if idx < 0 {
		return
	}
	c.classes[idx].release(addr)
}

func (cl *class) allocate() (uintptr, *kernel.Error) {
	cl.lock.Acquire()
	defer cl.lock.Release()

	if cl.partial == nil {
		sp, err := cl.newSlab()
		if err != nil {
			return 0, err
		}
		cl.partial = sp
	}

	sp := cl.partial
	unitIdx := sp.freeHead
	sp.freeHead = cl.unitAt(sp, unitIdx).next
	sp.freeCount--

	if sp.freeCount == 0 {
		cl.unlink(&cl.partial, sp)
		cl.push(&cl.full, sp)
	}

	return sp.base + uintptr(unitIdx)*uintptr(cl.unitSize), nil
}

func (cl *class) release(addr uintptr) {
	cl.lock.Acquire()
	defer cl.lock.Release()

	sp := cl.findSlab(addr)
	if sp == nil {
		return
	}
	unitIdx := int32((addr - sp.base) / uintptr(cl.unitSize))
	wasFull := sp.freeCount == 0

	cl.unitAt(sp, unitIdx).next = sp.freeHead
	sp.freeHead = unitIdx
	sp.freeCount++

	if wasFull {
		cl.unlink(&cl.full, sp)
		cl.push(&cl.partial, sp)
	}

	if sp.freeCount == cl.unitsPerSlab {
		cl.unlink(&cl.partial, sp)
		cl.pages.ReleasePage(sp.base)
	}
}

func (cl *class) findSlab(addr uintptr) *slabPage {
	for _, head := range [2]*slabPage{cl.partial, cl.full} {
		for sp := head; sp != nil; sp = sp.next {
			lo, hi := sp.base, sp.base+uintptr(mem.PageSize)
			if addr >= lo && addr < hi {
				return sp
			}
		}
	}
	return nil
}

func (cl *class) newSlab() (*slabPage, *kernel.Error) {
	base, err := cl.pages.AllocatePage()
	if err != nil {
		return nil, err
	}
	sp := &slabPage{base: base, freeCount: cl.unitsPerSlab}
	for i := 0; i < cl.unitsPerSlab; i++ {
		next := int32(i + 1)
		if i == cl.unitsPerSlab-1 {
			next = noUnit
		}
		cl.unitAt(sp, int32(i)).next = next
	}
	sp.freeHead = 0
	return sp, nil
}

// unitAt reinterprets the unit slot in-place at the slab's base address; the
// real allocator threads the free list through the units themselves (no
// separate metadata array), which this models by keeping one shadow slice of
// unit headers per slabPage rather than casting raw memory, for the same
// unsafe.Pointer-avoidance reason documented in kernel/mem/vmm.
func (cl *class) unitAt(sp *slabPage, idx int32) *unit {
	if sp.units == nil {
		sp.units = make([]unit, cl.unitsPerSlab)
	}
	return &sp.units[idx]
}

func (cl *class) unlink(head **slabPage, sp *slabPage) {
	if sp.prev != nil {
		sp.prev.next = sp.next
	} else {
		*head = sp.next
	}
	if sp.next != nil {
		sp.next.prev = sp.prev
	}
	sp.prev, sp.next = nil, nil
}

func (cl *class) push(head **slabPage, sp *slabPage) {
	sp.prev = nil
	sp.next = *head
	if *head != nil {
		(*head).prev = sp
	}
	*head = sp
}
