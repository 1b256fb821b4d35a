package ioreq

import (
	"sync"
	"testing"

	ksync "kernelcore/kernel/sync"

	"github.com/stretchr/testify/require"
)

// fakeScheduler simulates task suspend/resume using goroutines and channels,
// the same approach kernel/sync's own tests use, so Queue.Wait can actually
// block and be woken without a real kernel scheduler underneath.
type fakeScheduler struct {
	mu   sync.Mutex
	wake map[int]chan struct{}
	next int
	cur  int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{wake: make(map[int]chan struct{})}
}

func (f *fakeScheduler) Current() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeScheduler) Suspend(continuation func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.next++
	f.cur = f.next
	f.wake[f.cur] = ch
	f.mu.Unlock()
	continuation()
	<-ch
}

func (f *fakeScheduler) Resume(waiter interface{}) {
	id := waiter.(int)
	f.mu.Lock()
	ch, ok := f.wake[id]
	delete(f.wake, id)
	f.mu.Unlock()
	if ok {
		close(ch)
	}
}

func TestPendThenFinishMakesRequestWaitable(t *testing.T) {
	q := NewQueue()
	ior := New(q, "disk-read-1", nil, func(*IORequest) []uintptr { return []uintptr{7} })
	q.Pend(ior)
	require.True(t, q.Contains(ior))

	q.Finish(ior)
	got := q.Wait(ior)
	require.Equal(t, ior, got)
	require.False(t, q.Contains(got), "Wait must remove the request from the finished list")
}

func TestWaitForAnyReturnsFirstFinished(t *testing.T) {
	q := NewQueue()
	a := New(q, "a", nil, nil)
	b := New(q, "b", nil, nil)
	q.Pend(a)
	q.Pend(b)
	q.Finish(a)

	got := q.Wait(nil)
	require.Equal(t, a, got)
}

func TestWaitBlocksUntilFinishReleasesIt(t *testing.T) {
	ksync.SetScheduler(newFakeScheduler())
	q := NewQueue()
	ior := New(q, "slow", nil, nil)
	q.Pend(ior)

	done := make(chan *IORequest, 1)
	go func() {
		done <- q.Wait(ior)
	}()

	q.Finish(ior)
	require.Equal(t, ior, <-done)
}

func TestTryCancelSucceedsWhileCancellable(t *testing.T) {
	q := NewQueue()
	cancelled := false
	ior := New(q, "x", func(*IORequest) { cancelled = true }, nil)
	q.Pend(ior)

	require.True(t, q.TryCancel(ior))
	require.True(t, cancelled)
	require.False(t, q.Contains(ior))
}

func TestTryCancelFailsWhenNotCancellable(t *testing.T) {
	q := NewQueue()
	cancelled := false
	ior := New(q, "x", func(*IORequest) { cancelled = true }, nil)
	q.Pend(ior)
	SetCancellable(ior, false)

	require.False(t, q.TryCancel(ior))
	require.False(t, cancelled)
	require.True(t, q.Contains(ior))
}

func TestFinishRearmsCancellability(t *testing.T) {
	q := NewQueue()
	ior := New(q, "x", nil, nil)
	q.Pend(ior)
	SetCancellable(ior, false)

	q.Finish(ior)
	require.True(t, ior.Cancellable)
}
