package ioreq

// WaitWithTimeout waits for either real or timer to finish, whichever comes
// first, then cancels the other. It returns the request that actually
// finished and whether it was the timer (i.e. a timeout occurred).
//
// Supplements spec.md §5's cancellation model ("timeouts are expressed as
// two IORequests ... waited concurrently with wait_io(null) and a mutual
// cancel on wake"), which the original C exposes only as an inline pattern
// repeated at each network.c/ahci.c call site rather than as a named
// helper; named once here since every (excluded) driver that needs a
// timeout would otherwise repeat it.
func WaitWithTimeout(q *Queue, real, timer *IORequest) (completed *IORequest, timedOut bool) {
	got := q.Wait(nil)
	switch got {
	case real:
		q.TryCancel(timer)
		return real, false
	case timer:
		q.TryCancel(real)
		return timer, true
	default:
		return got, false
	}
}
