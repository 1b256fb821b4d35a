package resource

import (
	"sync"
	"testing"

	ksync "kernelcore/kernel/sync"

	"github.com/stretchr/testify/require"
)

// fakeScheduler mirrors kernel/ioreq's test fake: goroutines stand in for
// tasks, channels stand in for the suspend/resume transfer.
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

func byName(a, b Description) bool { return a.(string) == b.(string) }

func TestEnumeratorSeesExistingResourcesImmediately(t *testing.T) {
	l := NewList(byName)
	require.True(t, l.Create("disk0"))
	require.True(t, l.Create("disk1"))

	e := NewEnumerator(l)
	d1, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, "disk0", d1)

	d2, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, "disk1", d2)
}

func TestEnumeratorBlocksThenWakesOnCreate(t *testing.T) {
	ksync.SetScheduler(newFakeScheduler())
	l := NewList(byName)
	e := NewEnumerator(l)

	got := make(chan Description, 1)
	go func() {
		d, ok := e.Next()
		require.True(t, ok)
		got <- d
	}()

	require.True(t, l.Create("disk0"))
	require.Equal(t, "disk0", <-got)
}

func TestCreateDuplicateFails(t *testing.T) {
	l := NewList(byName)
	require.True(t, l.Create("disk0"))
	require.False(t, l.Create("disk0"))
}

func TestDeleteSkipsParkedEnumeratorWithoutCompletingIt(t *testing.T) {
	l := NewList(byName)
	require.True(t, l.Create("disk0"))
	require.True(t, l.Create("disk1"))

	e := NewEnumerator(l)
	d, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, "disk0", d)
	// e is now parked waiting to read disk1 next.

	require.True(t, l.Delete("disk1"))
	require.False(t, l.find("disk1") != nil)
	require.Nil(t, e.current)
	require.Contains(t, l.tailWaiting, e)
}

func TestDeleteAdvancesParkedEnumeratorToNextResource(t *testing.T) {
	l := NewList(byName)
	require.True(t, l.Create("disk0"))
	require.True(t, l.Create("disk1"))

	e := NewEnumerator(l) // parked waiting to read disk0 next
	require.True(t, l.Delete("disk0"))

	d, ok := e.Next()
	require.True(t, ok)
	require.Equal(t, "disk1", d)
}

func TestDeleteUnknownFails(t *testing.T) {
	l := NewList(byName)
	require.False(t, l.Delete("missing"))
}

func TestRegistryRegisterIsIdempotentByName(t *testing.T) {
	reg := NewRegistry()
	l1 := reg.Register("disk", byName)
	l2 := reg.Register("disk", byName)
	require.Same(t, l1, l2)

	got, ok := reg.Lookup("disk")
	require.True(t, ok)
	require.Same(t, l1, got)

	_, ok = reg.Lookup("missing")
	require.False(t, ok)
}
