// Package vmm implements the page manager (two-level page directory/table,
// multiprocessor TLB shootdown, lazy leaf-page-table allocation) and the
// linear block manager (self-extending virtual-range allocator) described by
// spec.md §4.3/§4.4.
//
// Grounded on the teacher's kernel/mem/vmm/pdt.go (PageDirectoryTable shape,
// Init/Map/Unmap naming) generalized from the teacher's single
// address-space, 4-level amd64 paging to the spec's multi-address-space,
// 2-level i386 paging with reference-counted frames, plus
// original_source/src/kernel/memory/page.c and
// src/kernel/interrupt/controller/lapic.c for the IPI shootdown shape.
package vmm

import (
	"kernelcore/kernel/mem"
)

// Flag is a bitset of page attributes, mirrored across PDE and PTE layout.
type Flag uint32

const (
	FlagPresent Flag = 1 << iota
	FlagRW
	FlagUser
	FlagNoExecute
	FlagCopyOnWrite
)

const (
	// PDEsPerTable and PTEsPerTable reflect the i386 2-level scheme: 1024
	// entries per table, each PDE covering 4 MiB (1024 * 4 KiB).
	PDEsPerTable = 1024
	PTEsPerTable = 1024

	// KernelWindowStart is the virtual address where the kernel-linear
	// window begins (the classic 3:1 user/kernel split for i386).
	KernelWindowStart = mem.VirtAddr(0xC0000000)

	// kernelWindowFirstPDE is the first PDE index belonging to the
	// kernel window; PDE indices at or above this are shared by copy
	// reference across every address space per spec.md §4.4.
	kernelWindowFirstPDE = uint32(KernelWindowStart) >> 22

	// pdeLockShards bounds the hash-sharded per-PDE spinlock array.
	pdeLockShards = 32
)

func pdeIndex(v mem.VirtAddr) uint32 { return uint32(v) >> 22 }
func pteIndex(v mem.VirtAddr) uint32 { return (uint32(v) >> 12) & (PTEsPerTable - 1) }

// pageTableEntry is the in-kernel representation of one leaf mapping. Real
// hardware packs frame and flags into a single 32-bit word; this is kept as
// a small struct instead, since the page tables themselves are represented
// as ordinary Go slices (see PageManager) rather than raw memory overlaid
// with unsafe.Pointer, which is how the teacher's pdt.go does it over
// actual physical RAM. That overlay only makes sense once a real address
// space is mapped into the process; it cannot be exercised by a unit test,
// so the layout here trades bit-packing fidelity for testability while
// preserving every invariant spec.md names (presence, frame ownership,
// attribute bits).
type pageTableEntry struct {
	frame   mem.PhysAddr
	flags   Flag
	present bool
}

func (e pageTableEntry) hasFlags(f Flag) bool { return e.present && e.flags&f == f }
