// Package task implements the task/scheduler subsystem: fixed-priority
// ready queues, task_switch with a post-switch continuation, and
// kernel-stack reclamation deferred to the next switch.
//
// Grounded on original_source/src/kernel/task/taskmanager.c
// (TaskPriorityQueue, pushQueue/popQueue, taskSwitch, callAfterTaskSwitchFunc)
// per spec.md §3.8/§4.7.
package task

import (
	"kernelcore/kernel/ioreq"
	"kernelcore/kernel/taskmem"
)

// NumPriorities is the number of fixed priority levels; round-robin applies
// within a level, strict priority applies across levels.
const NumPriorities = 4

// State is a Task's scheduling state.
type State int

const (
	// Ready means the task is sitting on a ready queue waiting to run.
	Ready State = iota
	// Running means the task is the one currently executing on some CPU.
	Running
	// Suspended means the task has been switched away from via a
	// continuation and is not on any ready queue; it is the
	// continuation's responsibility to make it runnable again (e.g. by
	// enqueuing it onto a wait list) or to call Resume directly.
	Suspended
)

// Task is one schedulable unit of execution. ESP0/ESPInterrupt/CR3 are the
// raw register values the architecture-specific context switch needs;
// StackToReclaim defers freeing a task's kernel stack until the Switch after
// the one that takes the task off the CPU, since a task can never free the
// stack it is currently running on.
type Task struct {
	ID       uint64
	Priority int
	State    State

	ESP0         uintptr
	ESPInterrupt uintptr
	CR3          uintptr
	TaskMemory   *taskmem.Manager

	// IO holds this task's pending/completed I/O-request lists and the
	// completed-count semaphore system calls like wait_io block on.
	IO *ioreq.Queue

	// StackToReclaim, if set, frees this task's kernel stack. The
	// scheduler runs it at the start of the next Switch on the CPU after
	// the one that switched this task off (testable property: spec.md §8
	// scenario 6).
	StackToReclaim func()

	prev, next *Task
}

// queue is a circular doubly linked FIFO of Tasks at one priority level,
// exactly the original's pushQueue/popQueue shape: a single head pointer
// into a ring, insert at the tail (head.prev), remove from the head.
type queue struct {
	head *Task
}

func (q *queue) push(t *Task) {
	if q.head == nil {
		q.head = t
		t.next = t
		t.prev = t
		return
	}
	t.next = q.head
	t.prev = q.head.prev
	t.next.prev = t
	t.prev.next = t
}

func (q *queue) pop() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	if t.next == t {
		q.head = nil
	} else {
		q.head = t.next
		t.next.prev = t.prev
		t.prev.next = t.next
	}
	t.next, t.prev = nil, nil
	return t
}

func (q *queue) empty() bool { return q.head == nil }
