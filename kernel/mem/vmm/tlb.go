package vmm

import (
	"kernelcore/kernel/cpu"
	"kernelcore/kernel/mem"
	"kernelcore/kernel/sync"
)

// ipiShootdownVector is the interrupt vector the local APIC is programmed to
// deliver TLB shootdown requests on. Installing the handler at this vector
// is done by the interrupt subsystem at boot; it is out of scope here, which
// only provides the send side and the handler body.
const ipiShootdownVector = 0xFD

// Indirected through package vars, in the teacher's cpuidFn style, so tests
// can substitute fakes instead of invoking the real arch-specific primitives.
var (
	flushTLBEntryFn           = cpu.FlushTLBEntry
	sendIPIAllExcludingSelfFn = cpu.SendIPIAllExcludingSelf
	localAPICEOIFn            = cpu.LocalAPICEOI
	activePDTFn               = cpu.ActivePDT
	cpuCountFn                = cpu.Count
)

var (
	shootdownLock    sync.Spinlock
	shootdownBarrier sync.Barrier

	// pendingPDT identifies which address space the in-flight shootdown
	// applies to; a shootdown against a non-active PDT on a given CPU is a
	// no-op for that CPU (its TLB holds no entries from that address
	// space), but it must still participate in the barrier rendezvous.
	pendingPDT    mem.PhysAddr
	pendingAddr   mem.VirtAddr
	pendingSize   mem.Size
	pendingGlobal bool
)

// Shootdown invalidates [vaddr, vaddr+size) on every CPU whose active page
// directory is pdt (or, if global is true, the kernel window shared by every
// address space, regardless of which PDT is currently active). It is the
// synchronous, all-CPUs-rendezvous protocol spec.md §4.4 names: the caller
// blocks until every other CPU has applied the invalidation and acknowledged
// via the barrier, so no stale translation survives the call.
//
// Grounded on original_source/src/kernel/interrupt/controller/lapic.c's
// "all excluding self" IPI broadcast shorthand and
// src/kernel/memory/page.c's shootdown rendezvous (global lock + per-CPU
// acknowledgement barrier + EOI), adapted from raw interrupt-controller
// register writes to the kernel/cpu package's arch hooks.
func Shootdown(pdt mem.PhysAddr, vaddr mem.VirtAddr, size mem.Size, global bool) {
	n := cpuCountFn()
	if n <= 1 {
		invalidateRange(vaddr, size)
		return
	}

	shootdownLock.Acquire()
	pendingPDT, pendingAddr, pendingSize, pendingGlobal = pdt, vaddr, size, global
	shootdownBarrier.Reset(int32(n))

	sendIPIAllExcludingSelfFn(ipiShootdownVector)
	invalidateRangeIfAffected(pdt, global)
	shootdownBarrier.Arrive()

	shootdownLock.Release()
}

// ShootdownIPIHandler runs on every receiving CPU in interrupt context. It
// applies the pending invalidation (if this CPU's active address space is
// affected), rendezvouses on the barrier so the initiator knows every CPU
// has applied it, then signals end-of-interrupt.
func ShootdownIPIHandler() {
	invalidateRangeIfAffected(pendingPDT, pendingGlobal)
	shootdownBarrier.Arrive()
	localAPICEOIFn()
}

func invalidateRangeIfAffected(pdt mem.PhysAddr, global bool) {
	if !global && activePDTFn() != uintptr(pdt) {
		return
	}
	invalidateRange(pendingAddr, pendingSize)
}

func invalidateRange(vaddr mem.VirtAddr, size mem.Size) {
	pages := size.Pages()
	for i := uint32(0); i < pages; i++ {
		flushTLBEntryFn(uintptr(vaddr) + uintptr(i)*uintptr(mem.PageSize))
	}
}
