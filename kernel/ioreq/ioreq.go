// Package ioreq implements the unified IORequest model shared by every
// driver-facing interface in the kernel: a per-task pending/completed list
// pair, a cancellability protocol toggled around a driver's internal
// critical sections, and the wait/finish/cancel operations system calls
// build on.
//
// Grounded on original_source/src/kernel/io/io.h (IORequest, pendIO,
// waitIO, finishIO, setCancellable) and
// src/kernel/task/taskmanager.c (pendIO/finishIO/waitIO/tryToCancelIO
// bodies, ioSemaphore-as-finished-list-length) per spec.md §3.9/§4.9.
package ioreq

import "kernelcore/kernel/sync"

// CancelFunc tears down an in-flight request; it must delete ior once done,
// matching the original's "IORequest should be deleted in this function"
// contract translated to Go's GC (callers simply drop their last
// reference after CancelFunc returns).
type CancelFunc func(ior *IORequest)

// FinishFunc collects a completed request's return values.
type FinishFunc func(ior *IORequest) []uintptr

// IORequest is one outstanding or completed I/O operation. Instance is an
// opaque driver-owned handle (e.g. a disk command block); Cancellable is
// toggled by SetCancellable around the window where the owning driver is
// mutating shared state and a cancel would corrupt it.
type IORequest struct {
	Instance    interface{}
	Cancellable bool
	Cancel      CancelFunc
	Finish      FinishFunc

	queue      *Queue
	onFinished bool
	prev, next *IORequest
}

// New creates a fresh request, owned by queue, cancellable by default (the
// original's initIORequest sets cancellable = 1).
func New(queue *Queue, instance interface{}, cancel CancelFunc, finish FinishFunc) *IORequest {
	return &IORequest{Instance: instance, Cancellable: true, Cancel: cancel, Finish: finish, queue: queue}
}

// Queue is one task's pair of IO-request lists (pending, completed) plus
// the counting semaphore whose value tracks the completed list's length.
// One exists per Task; spec.md §4.1 lists it as part of the per-task
// record.
type Queue struct {
	lock     sync.Spinlock
	pending  *IORequest
	finished *IORequest
	sema     *sync.Semaphore
}

// NewQueue creates an empty IO-request queue.
func NewQueue() *Queue {
	return &Queue{sema: sync.NewSemaphore(0)}
}

func dqueueAdd(head **IORequest, ior *IORequest) {
	if *head == nil {
		*head = ior
		ior.next, ior.prev = ior, ior
		return
	}
	ior.next = *head
	ior.prev = (*head).prev
	ior.next.prev = ior
	ior.prev.next = ior
}

func dqueueRemove(head **IORequest, ior *IORequest) {
	if ior.next == ior {
		*head = nil
	} else {
		if *head == ior {
			*head = ior.next
		}
		ior.next.prev = ior.prev
		ior.prev.next = ior.next
	}
	ior.next, ior.prev = nil, nil
}

// Pend registers ior as pending on its owning queue.
func (q *Queue) Pend(ior *IORequest) {
	q.lock.Acquire()
	defer q.lock.Release()
	dqueueAdd(&q.pending, ior)
}

// Finish moves ior from pending to finished, re-arms its cancellability (the
// original forces cancellable = 1 at this point: a finished request can
// always be discarded by a subsequent cancel-or-ignore), and releases the
// completed-count semaphore so a concurrent Wait unblocks.
func (q *Queue) Finish(ior *IORequest) {
	q.lock.Acquire()
	dqueueRemove(&q.pending, ior)
	dqueueAdd(&q.finished, ior)
	ior.onFinished = true
	ior.Cancellable = true
	q.lock.Release()
	q.sema.Release()
}

// Contains reports whether ior is currently tracked (pending or finished) by
// this queue.
func (q *Queue) Contains(ior *IORequest) bool {
	q.lock.Acquire()
	defer q.lock.Release()
	for _, head := range [2]*IORequest{q.pending, q.finished} {
		if head == nil {
			continue
		}
		for cur := head; ; {
			if cur == ior {
				return true
			}
			cur = cur.next
			if cur == head {
				break
			}
		}
	}
	return false
}

// Wait blocks until a finished request matching expected (or, if expected is
// nil, any finished request) is available, removes it from the finished
// list and returns it. Mirrors waitIO's "drain the semaphore's current
// count, then loop acquire-and-rescan" shape: AcquireAll discards whatever
// completions already accumulated before this call started waiting for a
// specific one.
func (q *Queue) Wait(expected *IORequest) *IORequest {
	q.sema.AcquireAll()
	for {
		q.lock.Acquire()
		var found *IORequest
		if q.finished != nil {
			for cur := q.finished; ; {
				if expected == nil || cur == expected {
					found = cur
					break
				}
				cur = cur.next
				if cur == q.finished {
					break
				}
			}
		}
		if found != nil {
			dqueueRemove(&q.finished, found)
		}
		q.lock.Release()
		if found != nil {
			return found
		}
		q.sema.Acquire()
	}
}

// TryCancel attempts to cancel ior. It succeeds only if ior is currently
// marked cancellable, in which case it is removed from whichever list holds
// it and its CancelFunc is invoked outside the lock (cancel may itself
// block or touch driver state that must not be called with ior.queue.lock
// held).
func (q *Queue) TryCancel(ior *IORequest) bool {
	q.lock.Acquire()
	ok := ior.Cancellable
	if ok {
		if ior.onFinished {
			dqueueRemove(&q.finished, ior)
		} else {
			dqueueRemove(&q.pending, ior)
		}
	}
	q.lock.Release()
	if ok && ior.Cancel != nil {
		ior.Cancel(ior)
	}
	return ok
}

// SetCancellable toggles ior's cancellability, used by a driver to bracket
// the critical section where cancelling mid-flight would corrupt shared
// state.
func SetCancellable(ior *IORequest, value bool) {
	ior.queue.lock.Acquire()
	ior.Cancellable = value
	ior.queue.lock.Release()
}
