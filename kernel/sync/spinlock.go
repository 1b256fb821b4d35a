// Package sync provides the kernel's synchronization primitives: a
// test-and-set spinlock, a counting barrier, a counting semaphore and a
// reader-writer lock built on top of the task scheduler's suspend/resume
// machinery.
package sync

import "sync/atomic"

// Spinlock implements a lock where each task trying to acquire it busy-waits
// until the lock becomes available. Spinlocks are leaf-level: per the
// kernel's locking discipline, they must never enclose a page-table mutation
// that can itself allocate, and a CPU must never call into the scheduler
// while holding one (the global ready-queue lock is the sole exception,
// released by the post-switch trampoline).
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the calling CPU.
// Re-acquiring a lock already held by the calling CPU deadlocks, as on any
// test-and-set spinlock.
func (l *Spinlock) Acquire() {
	for !l.TryAcquire() {
		archSpinWait()
	}
}

// TryAcquire attempts to acquire the lock without blocking and reports
// whether it succeeded.
func (l *Spinlock) TryAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock, allowing other CPUs to acquire it.
// Calling Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

// Acquirable reports whether the lock is currently free. It exists mainly
// to express lock-ordering assertions (e.g. "assert the buddy lock is held")
// in the same spirit as the original C tree's isAcquirable checks.
func (l *Spinlock) Acquirable() bool {
	return atomic.LoadUint32(&l.state) == 0
}

// archSpinWait is the architecture's busy-wait hint (e.g. `pause`) executed
// between failed acquisition attempts.
func archSpinWait()
