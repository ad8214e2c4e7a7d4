package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrReactorClosed is returned by any mutator or Poll call after Close.
	ErrReactorClosed = errors.New("reactor: closed")

	// ErrFDOutOfRange is returned when fd is negative, or exceeds the
	// backend's MaxFD (only the bitset backend has a real bound).
	ErrFDOutOfRange = errors.New("reactor: fd out of range")

	// ErrFDNotRegistered is returned by UpdateFdEvents/RemoveFd/SetEventIn
	// etc. on an fd unknown to the reactor. A config error: it must not
	// mutate state.
	ErrFDNotRegistered = errors.New("reactor: fd not registered")

	// ErrNilHandler is returned by UpsertFd when handler is nil. Timers
	// may have a nil handler; fds may not, since a handler-less fd
	// registration can never deliver readiness to anyone.
	ErrNilHandler = errors.New("reactor: nil handler")
)

// ConfigError wraps a backend-mutation failure that did not touch state.
// Op and FD identify where the rejection happened, Err is one of the
// sentinels above or an Unwrap-able cause.
type ConfigError struct {
	Op  string // "UpsertFd", "UpdateFdEvents", "RemoveFd", ...
	FD  int
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("reactor: %s(fd=%d): %v", e.Op, e.FD, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func newConfigError(op string, fd int, err error) *ConfigError {
	return &ConfigError{Op: op, FD: fd, Err: err}
}

// PrimitiveError wraps a failed readiness-polling syscall (epoll_wait,
// poll, select). Errno is the raw OS error; Interrupt is true for
// EINTR-class returns, which are reported verbatim rather than
// auto-retried — the caller decides whether to retry.
type PrimitiveError struct {
	Op        string
	Errno     error
	Interrupt bool
}

func (e *PrimitiveError) Error() string {
	if e.Interrupt {
		return fmt.Sprintf("reactor: %s interrupted: %v", e.Op, e.Errno)
	}
	return fmt.Sprintf("reactor: %s failed: %v", e.Op, e.Errno)
}

func (e *PrimitiveError) Unwrap() error { return e.Errno }
