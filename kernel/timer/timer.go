// Package timer implements a per-CPU ascending-deadline alarm list:
// set_alarm schedules a one-shot or periodic IORequest completion a given
// number of ticks in the future, and Tick (driven by the local timer
// interrupt) advances the current tick and completes everything due.
//
// Grounded on original_source/src/kernel/io/timer.c (TimerEventList,
// TimerEvent, addTimerEvent_noLock, handleTimerEvents, setAlarmHandler,
// acceptTimerEvent, cancelTimerEvent) per spec.md §3.11/§4.12.
package timer

import (
	"kernelcore/kernel/ioreq"
	"kernelcore/kernel/sync"
)

// tickModulus bounds countdownTicks arithmetic the same way the original's
// COUNTDOWN_TICK_MODULAR (1<<50) does: large enough that a deadline never
// realistically wraps, while keeping the "due" comparison a simple modular
// subtraction.
const tickModulus = uint64(1) << 50

// Event is one scheduled alarm.
type Event struct {
	ior            *ioreq.IORequest
	countdownTicks uint64
	tickPeriod     uint64 // 0 means one-shot
	sentToTask     bool
	inList         bool

	list       *List
	prev, next *Event
}

// IORequest returns the event's underlying IORequest, the handle a caller
// waits on via its ioreq.Queue.
func (e *Event) IORequest() *ioreq.IORequest { return e.ior }

// List is one CPU's ascending-deadline alarm list.
type List struct {
	lock        sync.Spinlock
	currentTick uint64
	head        *Event
	queue       *ioreq.Queue
}

// New creates an empty alarm list whose events complete on queue.
func New(queue *ioreq.Queue) *List {
	return &List{queue: queue}
}

func cancelEvent(ior *ioreq.IORequest) {
	e := ior.Instance.(*Event)
	l := e.list
	l.lock.Acquire()
	if e.inList {
		l.remove(e)
	}
	l.lock.Release()
}

// SetAlarm schedules an alarm waitTicks ticks from now, periodic if
// periodic is true (re-armed every tickPeriod == waitTicks ticks
// thereafter, until the caller lets it expire by never calling Ack again
// or cancels it). Returns the IORequest the caller waits on for completion.
func (l *List) SetAlarm(waitTicks uint64, periodic bool) *ioreq.IORequest {
	if waitTicks == 0 {
		waitTicks = 1
	}
	e := &Event{list: l}
	if periodic {
		e.tickPeriod = waitTicks
	}
	e.ior = ioreq.New(l.queue, e, cancelEvent, nil)
	l.queue.Pend(e.ior)

	l.lock.Acquire()
	l.insert(waitTicks, e)
	l.lock.Release()
	return e.ior
}

// insert must be called with l.lock held.
func (l *List) insert(waitTicks uint64, e *Event) {
	prev := &l.head
	for *prev != nil {
		cur := *prev
		waitTicks2 := (cur.countdownTicks + tickModulus - l.currentTick) % tickModulus
		if waitTicks <= waitTicks2 {
			break
		}
		prev = &cur.next
	}
	e.countdownTicks = (l.currentTick + waitTicks) % tickModulus
	e.sentToTask = false
	e.inList = true
	e.next = *prev
	*prev = e
}

// remove must be called with l.lock held.
func (l *List) remove(e *Event) {
	prev := &l.head
	for *prev != nil && *prev != e {
		prev = &(*prev).next
	}
	if *prev == e {
		*prev = e.next
	}
	e.next = nil
	e.inList = false
}

// Tick advances the current tick by one and completes (via Finish) every
// event whose deadline has arrived, re-inserting periodic ones at their
// next deadline. Driven by the local timer interrupt.
func (l *List) Tick() {
	l.lock.Acquire()
	l.currentTick = (l.currentTick + 1) % tickModulus
	for l.head != nil && l.head.countdownTicks == l.currentTick {
		e := l.head
		l.remove(e)
		if !e.sentToTask {
			e.sentToTask = true
			l.queue.Finish(e.ior)
		}
		if e.tickPeriod > 0 {
			l.insert(e.tickPeriod, e)
		}
	}
	l.lock.Release()
}

// Ack re-arms a periodic alarm after its owning task has consumed one
// completion, mirroring acceptTimerEvent: a one-shot event needs no further
// action, a periodic one is re-marked cancellable and re-pended so the next
// Tick can complete it again.
func (l *List) Ack(ior *ioreq.IORequest) {
	e := ior.Instance.(*Event)
	if e.tickPeriod == 0 {
		return
	}
	l.lock.Acquire()
	ioreq.SetCancellable(ior, true)
	e.sentToTask = false
	l.lock.Release()
	l.queue.Pend(ior)
}
