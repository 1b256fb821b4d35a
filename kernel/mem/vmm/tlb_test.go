package vmm

import (
	"sync/atomic"
	"testing"

	"kernelcore/kernel/mem"

	"github.com/stretchr/testify/require"
)

func TestShootdownSingleCPUInvalidatesLocally(t *testing.T) {
	origFlush, origCount := flushTLBEntryFn, cpuCountFn
	defer func() { flushTLBEntryFn, cpuCountFn = origFlush, origCount }()

	var flushed []uintptr
	flushTLBEntryFn = func(addr uintptr) { flushed = append(flushed, addr) }
	cpuCountFn = func() int { return 1 }

	Shootdown(mem.PhysAddr(0), mem.VirtAddr(0x1000), mem.PageSize*2, false)
	require.Len(t, flushed, 2)
	require.Equal(t, uintptr(0x1000), flushed[0])
	require.Equal(t, uintptr(0x2000), flushed[1])
}

func TestShootdownMultiCPUSendsIPIAndWaitsForAck(t *testing.T) {
	origFlush, origCount, origSend, origEOI, origActive := flushTLBEntryFn, cpuCountFn, sendIPIAllExcludingSelfFn, localAPICEOIFn, activePDTFn
	defer func() {
		flushTLBEntryFn, cpuCountFn = origFlush, origCount
		sendIPIAllExcludingSelfFn, localAPICEOIFn, activePDTFn = origSend, origEOI, origActive
	}()

	var flushCount int32
	flushTLBEntryFn = func(uintptr) { atomic.AddInt32(&flushCount, 1) }
	cpuCountFn = func() int { return 2 }
	activePDTFn = func() uintptr { return uintptr(42) }

	var ipiSent int32
	sendIPIAllExcludingSelfFn = func(vector uint8) {
		atomic.AddInt32(&ipiSent, 1)
		// Simulate the remote CPU handling the IPI concurrently with the
		// initiator's own local invalidation and barrier arrival below.
		go ShootdownIPIHandler()
	}
	eoiCalled := make(chan struct{}, 1)
	localAPICEOIFn = func() { eoiCalled <- struct{}{} }

	Shootdown(mem.PhysAddr(42), mem.VirtAddr(0x4000), mem.PageSize, true)

	require.Equal(t, int32(1), atomic.LoadInt32(&ipiSent))
	<-eoiCalled
	// One flush from the initiator and one from the simulated remote CPU.
	require.Equal(t, int32(2), atomic.LoadInt32(&flushCount))
}

func TestShootdownSkipsInvalidationWhenAddressSpaceNotActive(t *testing.T) {
	origFlush, origActive := flushTLBEntryFn, activePDTFn
	defer func() { flushTLBEntryFn, activePDTFn = origFlush, origActive }()

	activePDTFn = func() uintptr { return uintptr(99) }
	var flushed bool
	flushTLBEntryFn = func(uintptr) { flushed = true }

	pendingPDT, pendingAddr, pendingSize, pendingGlobal = mem.PhysAddr(7), mem.VirtAddr(0x1000), mem.PageSize, false
	invalidateRangeIfAffected(mem.PhysAddr(7), false)
	require.False(t, flushed, "CPU whose active PDT differs from the target must not flush")
}
