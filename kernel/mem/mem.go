// Package mem defines the scalar address and size types shared by every
// layer of the memory manager: the buddy, physical and linear block
// managers, the page manager and the slab allocator.
package mem

const (
	// MinBlockOrder is the order of the smallest block the buddy
	// allocator ever hands out: one page.
	MinBlockOrder = 12

	// MaxBlockOrder is the order of the largest block the buddy
	// allocator can represent: 2^30 bytes (1 GiB). Together with
	// MinBlockOrder this gives 19 free lists, one per order.
	MaxBlockOrder = 30

	// PageShift is log2(PageSize); used to convert between addresses and
	// page/frame numbers.
	PageShift = MinBlockOrder

	// PageSize is the system's page size in bytes.
	PageSize = Size(1 << PageShift)
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages required to hold a block of this size.
func (s Size) Pages() uint32 {
	pageSizeMinus1 := PageSize - 1
	return uint32((s+pageSizeMinus1) &^ pageSizeMinus1 >> PageShift)
}

// PhysAddr is a 32-bit physical memory address.
type PhysAddr uint32

// Frame returns the physical-frame index (PhysAddr / PageSize) that this
// address falls within.
func (a PhysAddr) Frame() uint32 {
	return uint32(a) >> PageShift
}

// Aligned reports whether this address is on a page boundary, the invariant
// every in-range buddy-block address must satisfy.
func (a PhysAddr) Aligned() bool {
	return uint32(a)&uint32(PageSize-1) == 0
}

// VirtAddr is a 32-bit virtual memory address.
type VirtAddr uint32

// Page returns the virtual-page index (VirtAddr / PageSize) that this
// address falls within.
func (a VirtAddr) Page() uint32 {
	return uint32(a) >> PageShift
}

// Aligned reports whether this address is on a page boundary.
func (a VirtAddr) Aligned() bool {
	return uint32(a)&uint32(PageSize-1) == 0
}

// PhysAddrFromFrame builds the PhysAddr at the start of the given frame
// index.
func PhysAddrFromFrame(frame uint32) PhysAddr {
	return PhysAddr(frame << PageShift)
}

// VirtAddrFromPage builds the VirtAddr at the start of the given page
// index.
func VirtAddrFromPage(page uint32) VirtAddr {
	return VirtAddr(page << PageShift)
}

// AlignUp rounds addr up to the next page boundary.
func AlignUp(addr uint32) uint32 {
	return (addr + uint32(PageSize) - 1) &^ (uint32(PageSize) - 1)
}

// AlignDown rounds addr down to the previous page boundary.
func AlignDown(addr uint32) uint32 {
	return addr &^ (uint32(PageSize) - 1)
}
