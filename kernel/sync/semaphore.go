package sync

// Semaphore is a counting semaphore backed by a spinlock and a FIFO of
// blocked tasks. Waiters are released in the order they blocked: the k-th
// acquire to block is the k-th to be released.
type Semaphore struct {
	lock    Spinlock
	quota   int
	waiters []interface{}
}

// NewSemaphore creates a semaphore with the given initial quota.
func NewSemaphore(initial int) *Semaphore {
	return &Semaphore{quota: initial}
}

// Acquire blocks the calling task until one unit of quota is available.
func (s *Semaphore) Acquire() {
	blockOn(&s.lock, func() bool {
		if s.quota > 0 {
			s.quota--
			return true
		}
		return false
	}, func() {
		s.waiters = append(s.waiters, scheduler.Current())
	})
}

// TryAcquire attempts to acquire one unit of quota without blocking.
func (s *Semaphore) TryAcquire() bool {
	s.lock.Acquire()
	defer s.lock.Release()
	if s.quota > 0 {
		s.quota--
		return true
	}
	return false
}

// AcquireAll drains the entire current quota without blocking and returns
// the number of units acquired (which may be zero).
func (s *Semaphore) AcquireAll() int {
	s.lock.Acquire()
	defer s.lock.Release()
	n := s.quota
	s.quota = 0
	return n
}

// Release adds one unit back to the semaphore. If a task is waiting, the
// unit is transferred directly to the longest-waiting task instead of being
// added to the quota, which is what keeps FIFO release order fair: a waiter
// that arrives after Release has already started can never jump the queue.
func (s *Semaphore) Release() {
	s.lock.Acquire()
	if len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.lock.Release()
		scheduler.Resume(w)
		return
	}
	s.quota++
	s.lock.Release()
}
