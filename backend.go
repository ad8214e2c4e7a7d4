package reactor

// backend is the contract each of the three readiness-polling mechanisms
// satisfies. A Reactor is a thin wrapper selecting and delegating to one
// backend instance plus a shared timerStore; see reactor.go.
//
// wait performs exactly one call to the underlying readiness primitive
// (epoll_wait, poll, select) with the given timeout (-1 infinite, 0
// non-blocking, >0 milliseconds) and dispatches every fd that fired
// during that single call, in the fixed order readable, writable, error,
// re-looking up the fd at each step since a handler invoked earlier in
// the same dispatch may have removed it. The lookup does not check
// handler identity: if a handler replaced the fd's registration
// mid-dispatch, the new handler receives the remaining steps. It returns
// the number of fd-dispatch
// invocations made, or -1 with a *PrimitiveError wrapped in err on
// syscall failure (including interrupt-class returns, which are reported
// verbatim — this package never auto-retries).
type backend interface {
	upsertFd(fd int, handler Handler, mask Mask) error
	updateFdEvents(fd int, mask Mask) error
	removeFd(fd int) error
	currentMask(fd int) (Mask, bool)

	fdCount() int
	maxFD() int

	wait(timeoutMs int32) (fired int, err error)

	close() error
}
