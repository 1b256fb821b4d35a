package ioreq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWaitWithTimeoutRealWinsCancelsTimer(t *testing.T) {
	q := NewQueue()
	timerCancelled := false
	real := New(q, "real", nil, nil)
	timer := New(q, "timer", func(*IORequest) { timerCancelled = true }, nil)
	q.Pend(real)
	q.Pend(timer)

	q.Finish(real)
	got, timedOut := WaitWithTimeout(q, real, timer)
	require.Equal(t, real, got)
	require.False(t, timedOut)
	require.True(t, timerCancelled)
}

func TestWaitWithTimeoutTimerWinsCancelsReal(t *testing.T) {
	q := NewQueue()
	realCancelled := false
	real := New(q, "real", func(*IORequest) { realCancelled = true }, nil)
	timer := New(q, "timer", nil, nil)
	q.Pend(real)
	q.Pend(timer)

	q.Finish(timer)
	got, timedOut := WaitWithTimeout(q, real, timer)
	require.Equal(t, timer, got)
	require.True(t, timedOut)
	require.True(t, realCancelled)
}
