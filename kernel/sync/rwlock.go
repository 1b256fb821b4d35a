package sync

// RWLock is a reader-writer lock built on the same exclusive-lock-helper
// pattern as Semaphore, with two predicates and two FIFOs. The policy
// (writer-first or reader-first) is fixed at construction and never
// starves an arriving writer under writer-first.
type RWLock struct {
	lock        Spinlock
	writerFirst bool

	readerCount int
	writerCount int // 0 or 1

	readerWaiters []interface{}
	writerWaiters []interface{}
}

// NewRWLock creates a reader-writer lock with the given policy.
func NewRWLock(writerFirst bool) *RWLock {
	return &RWLock{writerFirst: writerFirst}
}

// RLock blocks the calling task until a read lock can be taken. Under
// writer-first policy, an arriving reader yields to any writer already
// waiting.
func (l *RWLock) RLock() {
	blockOn(&l.lock, func() bool {
		if l.writerCount != 0 {
			return false
		}
		if l.writerFirst && len(l.writerWaiters) > 0 {
			return false
		}
		l.readerCount++
		return true
	}, func() {
		l.readerWaiters = append(l.readerWaiters, scheduler.Current())
	})
}

// RUnlock releases a read lock. If this was the last active reader, it wakes
// at most one waiting writer.
func (l *RWLock) RUnlock() {
	l.lock.Acquire()
	l.readerCount--
	var wake interface{}
	if l.readerCount == 0 && len(l.writerWaiters) > 0 {
		wake = l.writerWaiters[0]
		l.writerWaiters = l.writerWaiters[1:]
		// Transfer ownership directly to the woken writer instead of
		// letting it re-run Lock's predicate: otherwise a reader
		// arriving between Release and the writer's resumption could
		// jump the queue.
		l.writerCount = 1
	}
	l.lock.Release()
	if wake != nil {
		scheduler.Resume(wake)
	}
}

// Lock blocks the calling task until an exclusive write lock can be taken.
func (l *RWLock) Lock() {
	blockOn(&l.lock, func() bool {
		if l.writerCount == 0 && l.readerCount == 0 {
			l.writerCount = 1
			return true
		}
		return false
	}, func() {
		l.writerWaiters = append(l.writerWaiters, scheduler.Current())
	})
}

// Unlock releases a write lock. Under writer-first policy a waiting writer
// is preferred over waiting readers; otherwise every waiting reader is woken
// together (since readers do not conflict with each other).
func (l *RWLock) Unlock() {
	l.lock.Acquire()
	l.writerCount = 0

	if l.writerFirst && len(l.writerWaiters) > 0 {
		w := l.writerWaiters[0]
		l.writerWaiters = l.writerWaiters[1:]
		l.writerCount = 1
		l.lock.Release()
		scheduler.Resume(w)
		return
	}

	if len(l.readerWaiters) > 0 {
		readers := l.readerWaiters
		l.readerWaiters = nil
		l.readerCount += len(readers)
		l.lock.Release()
		for _, r := range readers {
			scheduler.Resume(r)
		}
		return
	}

	if len(l.writerWaiters) > 0 {
		w := l.writerWaiters[0]
		l.writerWaiters = l.writerWaiters[1:]
		l.writerCount = 1
		l.lock.Release()
		scheduler.Resume(w)
		return
	}

	l.lock.Release()
}
