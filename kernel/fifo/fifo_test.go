package fifo

import (
	"testing"

	"kernelcore/kernel/ioreq"

	"github.com/stretchr/testify/require"
)

func TestReadThenWriteCompletesSynchronously(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	buf := make([]byte, 4)
	ior := f.Read(buf)
	require.True(t, q.Contains(ior))

	f.Write([]byte("abcd"))
	got := q.Wait(ior)
	require.Equal(t, ior, got)
	require.Equal(t, 4, CopiedLen(ior))
	require.Equal(t, "abcd", string(buf))
}

func TestWriteThenReadCompletesImmediately(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	f.Write([]byte("xy"))

	buf := make([]byte, 2)
	ior := f.Read(buf)
	got := q.Wait(ior)
	require.Equal(t, ior, got)
	require.Equal(t, "xy", string(buf))
}

func TestShortBufferCopiesPartialBlock(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	f.Write([]byte("hello"))

	buf := make([]byte, 2)
	ior := f.Read(buf)
	q.Wait(ior)
	require.Equal(t, 2, CopiedLen(ior))
	require.Equal(t, "he", string(buf))
}

func TestMultipleReadersServedInOrder(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	buf1 := make([]byte, 1)
	buf2 := make([]byte, 1)
	ior1 := f.Read(buf1)
	ior2 := f.Read(buf2)

	f.Write([]byte("a"))
	f.Write([]byte("b"))

	q.Wait(ior1)
	q.Wait(ior2)
	require.Equal(t, "a", string(buf1))
	require.Equal(t, "b", string(buf2))
}

func TestCancelPendingReadRemovesIt(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	buf := make([]byte, 1)
	ior := f.Read(buf)

	require.True(t, q.TryCancel(ior))
	require.False(t, q.Contains(ior))

	// a write after cancellation must not find a pending reader
	f.Write([]byte("z"))
	require.False(t, q.Contains(ior))
}

func TestCloseDrainsUnreadBlocks(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	f.Write([]byte("abc"))
	require.NotPanics(t, func() { f.Close() })
}

func TestClosePanicsWithPendingRead(t *testing.T) {
	q := ioreq.NewQueue()
	f := New(q)
	buf := make([]byte, 1)
	f.Read(buf)
	require.Panics(t, func() { f.Close() })
}
