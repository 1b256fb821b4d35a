package sync

// Scheduler is the minimal surface the sync primitives need from the task
// scheduler in order to block a task until a predicate becomes true. It is
// expressed as an interface (rather than importing the task package
// directly) to avoid a dependency cycle: kernel/task imports kernel/sync for
// its own locking, so kernel/sync cannot import kernel/task back. The task
// package registers its scheduler via SetScheduler during bootstrap.
type Scheduler interface {
	// Current returns an opaque handle identifying the calling task.
	Current() interface{}

	// Suspend marks the calling task SUSPENDED and switches to the next
	// ready task. continuation runs on the resumed task's stack, after
	// the switch has committed and before interrupts are re-enabled; it
	// is the only safe place to publish the just-suspended task onto a
	// wait queue, since after the switch commits another CPU could
	// otherwise pop and resume the task before it is queued anywhere.
	Suspend(continuation func())

	// Resume moves a previously suspended task back onto its ready
	// queue.
	Resume(waiter interface{})
}

var scheduler Scheduler

// SetScheduler registers the scheduler implementation used by every
// Semaphore and RWLock. Called once during kernel bootstrap.
func SetScheduler(s Scheduler) {
	scheduler = s
}

// blockOn is the shared "exclusive lock helper" described by the kernel's
// synchronization design: acquire l, test predicate, and either succeed
// immediately or suspend the calling task with enqueue as the post-switch
// continuation. enqueue runs after the scheduler has committed the switch,
// and is responsible for both recording the waiter and releasing l -- l must
// stay held until the task is off the CPU, or another CPU could resume it
// before it is actually queued.
func blockOn(l *Spinlock, predicate func() bool, enqueue func()) {
	l.Acquire()
	if predicate() {
		l.Release()
		return
	}
	scheduler.Suspend(func() {
		enqueue()
		l.Release()
	})
}
