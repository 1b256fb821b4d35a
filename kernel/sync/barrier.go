package sync

import "sync/atomic"

// Barrier is a counting barrier: N CPUs each call Arrive and block until all
// N have done so, then all are released together. It backs TLB shootdown,
// where the issuing CPU waits for every other CPU to acknowledge an
// invalidation before releasing the shootdown lock.
type Barrier struct {
	target   int32
	arrived  int32
	released uint32
}

// Reset configures the barrier for a new rendezvous of n participants. The
// caller must ensure no CPU is still waiting on a previous rendezvous.
func (b *Barrier) Reset(n int32) {
	atomic.StoreInt32(&b.target, n)
	atomic.StoreInt32(&b.arrived, 0)
	atomic.StoreUint32(&b.released, 0)
}

// Arrive records the calling CPU's arrival and busy-waits until every
// participant configured by Reset has also arrived.
func (b *Barrier) Arrive() {
	if atomic.AddInt32(&b.arrived, 1) == atomic.LoadInt32(&b.target) {
		atomic.StoreUint32(&b.released, 1)
		return
	}
	for atomic.LoadUint32(&b.released) == 0 {
		archSpinWait()
	}
}
