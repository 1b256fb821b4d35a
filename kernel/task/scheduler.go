package task

import (
	"kernelcore/kernel/cpu"
	"kernelcore/kernel/sync"
)

// contextSwitchFn is indirected, in the teacher's cpuidFn style, so tests
// exercise the queue/continuation bookkeeping without requiring a real
// architecture-level stack swap (which a hosted `go test` binary cannot
// perform: there is no second kernel stack to swap onto).
var contextSwitchFn = func(oldESP0 *uintptr, newESP0, newCR3 uintptr) {}

var globalReady struct {
	lock  sync.Spinlock
	level [NumPriorities]queue
}

func pushReady(t *Task) {
	globalReady.level[t.Priority].push(t)
}

func popReady() *Task {
	for p := 0; p < NumPriorities; p++ {
		if t := globalReady.level[p].pop(); t != nil {
			return t
		}
	}
	return nil
}

// Scheduler holds the per-CPU task-switch state: the currently running
// task, and the continuation (plus its argument) to run once the switch
// away from the previous task has completed. One exists per CPU, reachable
// via cpu.Block.CurrentTask.
type Scheduler struct {
	current *Task
	oldTask *Task

	afterSwitch func(old *Task, arg uintptr)
	afterArg    uintptr

	// pendingReclaim holds the previous occupant's kernel-stack free
	// function across one full Switch call, and is only actually invoked
	// at the start of the *next* Switch on this CPU (spec.md §4.13/§8
	// scenario 6: "reclaimed only after the next task switch"). A task
	// cannot free its own stack while still executing on it, and
	// deferring past the end of its own termination switch keeps the
	// (possibly allocator-touching) free work out of the continuation's
	// hot, interrupts-still-disabled path.
	pendingReclaim func()
}

func schedulerFor(b *cpu.Block) *Scheduler {
	s, _ := b.CurrentTask.(*Scheduler)
	return s
}

// Bootstrap installs idle as the currently running task on the calling
// CPU's per-CPU block, for use before any other task exists.
func Bootstrap(b *cpu.Block, idle *Task) *Scheduler {
	s := &Scheduler{current: idle}
	idle.State = Running
	b.CurrentTask = s
	return s
}

// Current returns the task currently running on the calling CPU.
func Current(b *cpu.Block) *Task {
	if s := schedulerFor(b); s != nil {
		return s.current
	}
	return nil
}

// Switch performs a task switch away from the calling CPU's current task.
//
// If continuation is nil, the current task is pushed back onto the ready
// queue (a plain preemption/yield). Otherwise the current task is marked
// Suspended and left off every queue; continuation runs once the switch to
// whichever task ran next completes, and is responsible for making the
// suspended task runnable again (e.g. enqueuing it onto a wait list) --
// this is the sole safe place to do so, since it runs after the stack
// switch, with the old task's own stack no longer in use.
//
// Per spec.md §4.7, callers must already have interrupts disabled.
func Switch(b *cpu.Block, continuation func(old *Task, arg uintptr), arg uintptr) {
	s := schedulerFor(b)

	if s.pendingReclaim != nil {
		reclaim := s.pendingReclaim
		s.pendingReclaim = nil
		reclaim()
	}

	old := s.current
	s.oldTask = old
	s.afterSwitch = continuation
	s.afterArg = arg

	globalReady.lock.Acquire()
	if continuation == nil {
		old.State = Ready
		pushReady(old)
	} else {
		old.State = Suspended
	}
	next := popReady()
	if next == nil {
		next = old // nothing else runnable: keep running the same task
	}
	s.current = next
	next.State = Running
	globalReady.lock.Release()

	if next != old {
		contextSwitchFn(&old.ESP0, next.ESP0, next.CR3)
	}
	callAfterSwitch(s)
}

func callAfterSwitch(s *Scheduler) {
	if s.afterSwitch != nil {
		s.afterSwitch(s.oldTask, s.afterArg)
	}
	s.afterSwitch = nil
	s.afterArg = 0
	if s.oldTask != nil && s.oldTask.StackToReclaim != nil {
		s.pendingReclaim = s.oldTask.StackToReclaim
		s.oldTask.StackToReclaim = nil
	}
	s.oldTask = nil
}

// Yield voluntarily gives up the CPU, re-entering the ready queue behind
// any other ready task at the same priority.
func Yield(b *cpu.Block) {
	Switch(b, nil, 0)
}

// Resume makes a previously suspended task runnable again by pushing it
// onto the ready queue. Safe to call from any CPU.
func Resume(t *Task) {
	globalReady.lock.Acquire()
	t.State = Ready
	pushReady(t)
	globalReady.lock.Release()
}

// syncAdapter implements sync.Scheduler on top of this package's Switch/
// Resume, so kernel/sync's blocking primitives can suspend/resume tasks
// without kernel/sync importing kernel/task (which would form an import
// cycle, since kernel/task itself uses kernel/sync's Spinlock).
type syncAdapter struct {
	cpuBlock *cpu.Block
}

func (a syncAdapter) Current() interface{} {
	return Current(a.cpuBlock)
}

func (a syncAdapter) Suspend(continuation func()) {
	Switch(a.cpuBlock, func(*Task, uintptr) { continuation() }, 0)
}

func (a syncAdapter) Resume(waiter interface{}) {
	if t, ok := waiter.(*Task); ok {
		Resume(t)
	}
}

// InstallScheduler registers this package's Switch/Resume machinery as
// kernel/sync's blocking backend for the calling CPU. Called once per CPU
// during bring-up, after Bootstrap.
func InstallScheduler(b *cpu.Block) {
	sync.SetScheduler(syncAdapter{cpuBlock: b})
}
