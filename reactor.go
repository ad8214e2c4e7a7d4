package reactor

import (
	"errors"
	"runtime"
)

// Reactor multiplexes fd readiness and monotonic timers on a single
// goroutine. It is a thin façade over one of three interchangeable
// backends (see backend.go) plus a shared timerStore; the public surface
// is exactly the backend operations plus timer and lifecycle management.
//
// A Reactor is not safe for concurrent use and must not be copied after
// first use.
type Reactor struct {
	_ noCopy

	backend backend
	timers  *timerStore
	opts    reactorOptions
	log     Logger

	lastErr error
	closed  bool
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// New constructs a Reactor. Construction can fail (e.g. epoll_create1
// failing under a resource limit); callers must check the returned
// error, since there are no exceptions to fall back on.
func New(opts ...Option) (*Reactor, error) {
	cfg := resolveOptions(opts)

	kind := cfg.backend
	if kind == BackendAuto {
		if runtime.GOOS == "linux" {
			kind = BackendEpoll
		} else {
			kind = BackendArray
		}
	}

	var (
		be  backend
		err error
	)
	switch kind {
	case BackendEpoll:
		be, err = newEpollBackend(cfg.eventBufferSize, cfg.zeroInterestRemove)
	case BackendArray:
		be, err = newArrayBackend(cfg.shrinkFDCount, cfg.shrinkRetiredCount, cfg.zeroInterestRemove)
	case BackendBitset:
		be, err = newBitsetBackend(cfg.zeroInterestRemove)
	default:
		err = errors.New("reactor: unknown backend kind")
	}
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		backend: be,
		timers:  newTimerStore(),
		opts:    cfg,
		log:     cfg.loggerOrGlobal(),
	}
	logInfo(r.log, "reactor", "reactor initialized")
	return r, nil
}

// UpsertFd inserts or updates fd's registration: mask is the interest
// set (In and/or Out; Error cannot be requested). handler must be
// non-nil.
func (r *Reactor) UpsertFd(fd int, handler Handler, mask Mask) error {
	if r.closed {
		return ErrReactorClosed
	}
	err := r.backend.upsertFd(fd, handler, mask&(In|Out))
	if err != nil {
		logError(r.log, "fd", "upsert failed", err, "fd", fd)
		return err
	}
	return nil
}

// UpdateFdEvents replaces fd's interest mask wholesale.
func (r *Reactor) UpdateFdEvents(fd int, mask Mask) error {
	if r.closed {
		return ErrReactorClosed
	}
	return r.backend.updateFdEvents(fd, mask&(In|Out))
}

// RemoveFd deregisters fd. After this call returns, no subsequent Poll
// invokes any callback for that fd.
func (r *Reactor) RemoveFd(fd int) error {
	if r.closed {
		return ErrReactorClosed
	}
	return r.backend.removeFd(fd)
}

func (r *Reactor) modifyMask(fd int, add, remove Mask) error {
	if r.closed {
		return ErrReactorClosed
	}
	cur, ok := r.backend.currentMask(fd)
	if !ok {
		return newConfigError("UpdateFdEvents", fd, ErrFDNotRegistered)
	}
	next := (cur | add) &^ remove
	return r.backend.updateFdEvents(fd, next)
}

// SetEventIn adds In to fd's interest mask.
func (r *Reactor) SetEventIn(fd int) error { return r.modifyMask(fd, In, 0) }

// ResetEventIn removes In from fd's interest mask.
func (r *Reactor) ResetEventIn(fd int) error { return r.modifyMask(fd, 0, In) }

// SetEventOut adds Out to fd's interest mask.
func (r *Reactor) SetEventOut(fd int) error { return r.modifyMask(fd, Out, 0) }

// ResetEventOut removes Out from fd's interest mask.
func (r *Reactor) ResetEventOut(fd int) error { return r.modifyMask(fd, 0, Out) }

// AddTimer schedules handler.OnTimeout(id) to fire after timeoutMs
// milliseconds. handler may be nil when the timer exists only to break a
// Poll wait. Returns the bad-key sentinel (0) if an identical (handler,
// id) pair is already scheduled at the resulting expiration tick.
func (r *Reactor) AddTimer(timeoutMs int64, handler Handler, id int32) TimerKey {
	if r.closed {
		return badTimerKey
	}
	return r.timers.add(timeoutMs, handler, id)
}

// CancelTimer removes the (handler, id) entry at bucket key. Reports
// whether an entry was removed.
func (r *Reactor) CancelTimer(key TimerKey, handler Handler, id int32) bool {
	if r.closed {
		return false
	}
	return r.timers.cancel(key, handler, id)
}

// Poll runs one wait/dispatch cycle: computes the earliest timer
// deadline, waits on the backend for the earlier of an fd becoming ready
// or that deadline, dispatches ready fds, then fires due timers. Returns
// the number of fd callbacks invoked plus the number of timer entries
// fired (a nil-handler timer counts, though it has no callback), or -1
// with a *PrimitiveError on syscall failure.
func (r *Reactor) Poll() (int, error) {
	if r.closed {
		return -1, ErrReactorClosed
	}

	timeout := r.timers.earliestTimeout()
	if r.backend.fdCount() == 0 && timeout < 0 {
		return 0, nil
	}

	fired, err := r.backend.wait(timeout)
	if err != nil {
		r.lastErr = err
		var pe *PrimitiveError
		if errors.As(err, &pe) && pe.Interrupt {
			logWarn(r.log, "backend", "wait interrupted", err)
		} else {
			logError(r.log, "backend", "wait failed", err)
		}
		return -1, err
	}

	fired += r.timers.processDue()
	return fired, nil
}

// FDCount reports the number of fds currently registered.
func (r *Reactor) FDCount() int { return r.backend.fdCount() }

// TimerCount reports the number of timers currently pending.
func (r *Reactor) TimerCount() int { return r.timers.count() }

// MaxFD reports the backend's platform bound on fd values, or -1 if
// unbounded (only the bitset backend has a real bound).
func (r *Reactor) MaxFD() int { return r.backend.maxFD() }

// Err returns the last error recorded by a failed Poll call, or nil.
func (r *Reactor) Err() error { return r.lastErr }

// IsBad reports whether the reactor has recorded a failure. Mirrors the
// is_bad() sentinel used in lieu of exceptions at construction time;
// New already returns a non-nil error in that case, so IsBad here
// reflects post-construction Poll failures.
func (r *Reactor) IsBad() bool { return r.lastErr != nil }

// Close releases the backend's kernel resources. Any fds or timers still
// registered are simply dropped, not dispatched; per the deregistration
// contract, callers should have already removed them.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if n := r.backend.fdCount(); n > 0 {
		logWarn(r.log, "reactor", "closing with fds still registered", nil, "count", n)
	}
	if n := r.timers.count(); n > 0 {
		logWarn(r.log, "reactor", "closing with timers still pending", nil, "count", n)
	}
	return r.backend.close()
}
