package vmm

import (
	"kernelcore/kernel"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/mem/pmm"
	"kernelcore/kernel/sync"
)

var (
	// ErrInvalidArgument covers misaligned addresses and out-of-range
	// translations.
	ErrInvalidArgument = &kernel.Error{Module: "vmm", Code: -1, Message: "invalid address or attribute"}
	// ErrExhausted is returned when a mapping request cannot be
	// satisfied because no physical frame is available.
	ErrExhausted = &kernel.Error{Module: "vmm", Code: -2, Message: "no free physical frames"}

	// kernelPDEs holds the leaf page tables for the kernel window,
	// created once at boot and shared by every PageManager's pdes slice
	// via copy-reference (same *[PTEsPerTable]pageTableEntry pointer),
	// so a store into one address space's kernel-window PT is visible
	// from every other address space without any extra propagation step.
	kernelPDEs [PDEsPerTable - kernelWindowFirstPDE]*[PTEsPerTable]pageTableEntry
)

// PageManager owns one address space's page directory: a slice of PDE slots,
// each either nil (not yet backed by a leaf page table) or a pointer to a
// [PTEsPerTable]pageTableEntry leaf table. Kernel-window slots always point
// at the shared kernelPDEs tables.
type PageManager struct {
	pdtFrame mem.PhysAddr // identity used for CR3/shootdown comparisons
	pdes     [PDEsPerTable]*[PTEsPerTable]pageTableEntry
	ptFrames [PDEsPerTable]mem.PhysAddr // physical frame backing each owned (non-kernel) leaf PT
	pdeLocks [pdeLockShards]sync.Spinlock
	phys     *pmm.Manager
}

// NewPageManager creates a fresh address space. Its kernel-window PDE slots
// are populated by copy-reference from kernelPDEs so that every address
// space observes identical kernel mappings, per spec.md §4.4's invariant
// that kernel-window PDEs are identical across all page managers at any
// instant.
func NewPageManager(phys *pmm.Manager) (*PageManager, *kernel.Error) {
	pdtFrame, err := phys.Allocate()
	if err != nil {
		return nil, err
	}
	pm := &PageManager{pdtFrame: pdtFrame, phys: phys}
	for i := range kernelPDEs {
		pm.pdes[int(kernelWindowFirstPDE)+i] = kernelPDEs[i]
	}
	return pm, nil
}

// InitKernelWindow establishes the shared kernel-window leaf tables. Called
// once, on the bootstrap CPU, before any other PageManager is created.
func InitKernelWindow() {
	for i := range kernelPDEs {
		kernelPDEs[i] = &[PTEsPerTable]pageTableEntry{}
	}
}

func (pm *PageManager) pdeLock(idx uint32) *sync.Spinlock {
	return &pm.pdeLocks[idx%pdeLockShards]
}

func (pm *PageManager) isKernelWindow(idx uint32) bool {
	return idx >= kernelWindowFirstPDE
}

// leafTable returns the leaf page table covering idx, lazily allocating one
// (and a backing physical frame for it, for refcount bookkeeping) on first
// use within a non-kernel PDE's range.
func (pm *PageManager) leafTable(idx uint32, create bool) (*[PTEsPerTable]pageTableEntry, *kernel.Error) {
	lock := pm.pdeLock(idx)
	lock.Acquire()
	defer lock.Release()

	if pm.pdes[idx] != nil {
		return pm.pdes[idx], nil
	}
	if !create || pm.isKernelWindow(idx) {
		return nil, nil
	}

	frame, err := pm.phys.Allocate()
	if err != nil {
		return nil, err
	}
	pt := &[PTEsPerTable]pageTableEntry{}
	pm.pdes[idx] = pt
	pm.ptFrames[idx] = frame
	return pt, nil
}

// Map establishes a mapping for every page in [vaddr, vaddr+size), each
// backed by a freshly allocated physical frame with reference count 1. If
// any page in the range cannot be mapped, every page installed earlier in
// this call is unmapped and its frame released, leaving the address space
// unchanged.
func (pm *PageManager) Map(vaddr mem.VirtAddr, size mem.Size, attr Flag) *kernel.Error {
	if !vaddr.Aligned() {
		return ErrInvalidArgument
	}
	pages := size.Pages()
	mapped := make([]mem.VirtAddr, 0, pages)
	for i := uint32(0); i < pages; i++ {
		va := vaddr + mem.VirtAddr(i)*mem.VirtAddr(mem.PageSize)
		frame, err := pm.phys.Allocate()
		if err != nil {
			pm.rollback(mapped)
			return err
		}
		if err := pm.installPTE(va, frame, attr|FlagPresent); err != nil {
			pm.phys.Release(frame)
			pm.rollback(mapped)
			return err
		}
		mapped = append(mapped, va)
	}
	return nil
}

// MapExisting installs, into this (dst) address space, a mapping for every
// page that src currently has present starting at vaddr, for size bytes.
// Each source frame's reference count is incremented before being installed
// into dst; on any failure, the pages installed earlier in this call are
// rolled back.
func (pm *PageManager) MapExisting(src *PageManager, vaddr mem.VirtAddr, size mem.Size, attr Flag) *kernel.Error {
	if !vaddr.Aligned() {
		return ErrInvalidArgument
	}
	pages := size.Pages()
	mapped := make([]mem.VirtAddr, 0, pages)
	for i := uint32(0); i < pages; i++ {
		va := vaddr + mem.VirtAddr(i)*mem.VirtAddr(mem.PageSize)
		frame, ok := src.Translate(va, 0)
		if !ok {
			pm.rollback(mapped)
			return ErrInvalidArgument
		}
		if err := pm.phys.AddReference(frame); err != nil {
			pm.rollback(mapped)
			return err
		}
		if err := pm.installPTE(va, frame, attr|FlagPresent); err != nil {
			pm.phys.Release(frame)
			pm.rollback(mapped)
			return err
		}
		mapped = append(mapped, va)
	}
	return nil
}

func (pm *PageManager) rollback(mapped []mem.VirtAddr) {
	for _, va := range mapped {
		pm.unmapOne(va)
	}
}

func (pm *PageManager) installPTE(vaddr mem.VirtAddr, frame mem.PhysAddr, attr Flag) *kernel.Error {
	idx := pdeIndex(vaddr)
	pt, err := pm.leafTable(idx, true)
	if err != nil {
		return err
	}
	pt[pteIndex(vaddr)] = pageTableEntry{frame: frame, flags: attr, present: true}
	return nil
}

// Unmap tears down the mappings for every page in [vaddr, vaddr+size) in
// two passes: phase 1 marks every PTE not-present and issues a single TLB
// shootdown covering the whole range; phase 2 releases the physical frames
// that were still retained (but no longer reachable) after the shootdown.
// Splitting the work this way means no CPU can observe a stale translation
// to a frame whose reference has already been dropped.
func (pm *PageManager) Unmap(vaddr mem.VirtAddr, size mem.Size) {
	pages := size.Pages()
	frames := make([]mem.PhysAddr, 0, pages)

	for i := uint32(0); i < pages; i++ {
		va := vaddr + mem.VirtAddr(i)*mem.VirtAddr(mem.PageSize)
		idx := pdeIndex(va)
		lock := pm.pdeLock(idx)
		lock.Acquire()
		pt := pm.pdes[idx]
		if pt == nil {
			lock.Release()
			continue
		}
		e := &pt[pteIndex(va)]
		if e.present {
			frames = append(frames, e.frame)
			e.present = false
		}
		lock.Release()
	}

	Shootdown(pm.pdtFrame, vaddr, size, pm.isKernelWindow(pdeIndex(vaddr)))

	for _, f := range frames {
		pm.phys.Release(f)
	}
}

func (pm *PageManager) unmapOne(vaddr mem.VirtAddr) {
	idx := pdeIndex(vaddr)
	lock := pm.pdeLock(idx)
	lock.Acquire()
	pt := pm.pdes[idx]
	if pt == nil {
		lock.Release()
		return
	}
	e := &pt[pteIndex(vaddr)]
	var frame mem.PhysAddr
	wasPresent := e.present
	if wasPresent {
		frame = e.frame
		e.present = false
	}
	lock.Release()

	Shootdown(pm.pdtFrame, vaddr, mem.PageSize, pm.isKernelWindow(idx))
	if wasPresent {
		pm.phys.Release(frame)
	}
}

// Translate returns the physical frame backing vaddr, provided the mapping
// is present and (if requiredAttr != 0) carries every bit in requiredAttr.
func (pm *PageManager) Translate(vaddr mem.VirtAddr, requiredAttr Flag) (mem.PhysAddr, bool) {
	idx := pdeIndex(vaddr)
	pt, err := pm.leafTable(idx, false)
	if err != nil || pt == nil {
		return 0, false
	}
	e := pt[pteIndex(vaddr)]
	if !e.present {
		return 0, false
	}
	if requiredAttr != 0 && !e.hasFlags(requiredAttr) {
		return 0, false
	}
	return e.frame, true
}

// PDTFrame returns the physical address identifying this address space
// (its CR3 value).
func (pm *PageManager) PDTFrame() mem.PhysAddr { return pm.pdtFrame }

// Teardown releases every owned (non-kernel-window) leaf page table frame.
// Called once the last reference to the owning TaskMemory is dropped.
func (pm *PageManager) Teardown() {
	for idx := uint32(0); idx < kernelWindowFirstPDE; idx++ {
		if pm.pdes[idx] != nil {
			pm.phys.Release(pm.ptFrames[idx])
			pm.pdes[idx] = nil
		}
	}
	pm.phys.Release(pm.pdtFrame)
}
