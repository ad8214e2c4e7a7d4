//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollBackend is the edge/mask-driven backend: a kernel-side epoll
// interest set plus a user-side fd -> {events, handler} table. Grounded
// directly on the reference epoll_ctl/epoll_wait usage, not on any
// goroutine-safe wrapper — this backend assumes single-threaded
// cooperative use and carries no locking.
type epollBackend struct {
	fd                 int
	table              map[int]*epollFdEntry
	fired              []unix.EpollEvent
	zeroInterestRemove bool
	bad                bool
}

type epollFdEntry struct {
	handler Handler
	mask    Mask
}

func newEpollBackend(eventBufferSize int, zeroInterestRemove bool) (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	if eventBufferSize <= 0 {
		eventBufferSize = 256
	}
	return &epollBackend{
		fd:                 fd,
		table:              make(map[int]*epollFdEntry),
		fired:              make([]unix.EpollEvent, eventBufferSize),
		zeroInterestRemove: zeroInterestRemove,
	}, nil
}

func maskToEpollEvents(m Mask) uint32 {
	var ev uint32
	if m.has(In) {
		ev |= unix.EPOLLIN
	}
	if m.has(Out) {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (b *epollBackend) upsertFd(fd int, handler Handler, mask Mask) error {
	if b.bad || fd < 0 {
		return newConfigError("UpsertFd", fd, ErrFDOutOfRange)
	}
	if handler == nil {
		return newConfigError("UpsertFd", fd, ErrNilHandler)
	}

	ev := unix.EpollEvent{Events: maskToEpollEvents(mask)}
	ev.Fd = int32(fd)

	entry, exists := b.table[fd]
	op := unix.EPOLL_CTL_MOD
	if !exists {
		op = unix.EPOLL_CTL_ADD
	}
	if err := unix.EpollCtl(b.fd, op, fd, &ev); err != nil {
		return newConfigError("UpsertFd", fd, err)
	}

	if exists {
		entry.handler = handler
		entry.mask = mask
	} else {
		b.table[fd] = &epollFdEntry{handler: handler, mask: mask}
	}
	return nil
}

func (b *epollBackend) updateFdEvents(fd int, mask Mask) error {
	if b.bad || fd < 0 {
		return newConfigError("UpdateFdEvents", fd, ErrFDOutOfRange)
	}
	entry, ok := b.table[fd]
	if !ok {
		return newConfigError("UpdateFdEvents", fd, ErrFDNotRegistered)
	}

	if b.zeroInterestRemove && mask == 0 {
		delete(b.table, fd)
		_ = unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
		return nil
	}

	ev := unix.EpollEvent{Events: maskToEpollEvents(mask)}
	ev.Fd = int32(fd)
	if err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return newConfigError("UpdateFdEvents", fd, err)
	}
	entry.mask = mask
	return nil
}

func (b *epollBackend) removeFd(fd int) error {
	if b.bad || fd < 0 {
		return newConfigError("RemoveFd", fd, ErrFDOutOfRange)
	}
	if _, ok := b.table[fd]; !ok {
		return newConfigError("RemoveFd", fd, ErrFDNotRegistered)
	}
	delete(b.table, fd)
	_ = unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (b *epollBackend) currentMask(fd int) (Mask, bool) {
	entry, ok := b.table[fd]
	if !ok {
		return 0, false
	}
	return entry.mask, true
}

func (b *epollBackend) fdCount() int { return len(b.table) }

// maxFD reports no platform bound for the epoll backend.
func (b *epollBackend) maxFD() int { return -1 }

func (b *epollBackend) wait(timeoutMs int32) (int, error) {
	n, err := unix.EpollWait(b.fd, b.fired, int(timeoutMs))
	if err != nil {
		return -1, &PrimitiveError{Op: "epoll_wait", Errno: err, Interrupt: err == unix.EINTR}
	}

	// Each step re-looks up fd, so a removal by an earlier callback stops
	// the remaining steps. Handler identity is not rechecked: if an earlier
	// callback re-registered fd with a different handler, that handler
	// receives the remaining steps of this event.
	nevents := 0
	for i := 0; i < n; i++ {
		ev := b.fired[i]
		fd := int(ev.Fd)

		if ev.Events&unix.EPOLLIN != 0 {
			if entry, ok := b.table[fd]; ok {
				entry.handler.OnReadable(fd)
				nevents++
			}
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			if entry, ok := b.table[fd]; ok {
				entry.handler.OnWritable(fd)
				nevents++
			}
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			if entry, ok := b.table[fd]; ok {
				entry.handler.OnError(fd)
				nevents++
			}
		}
	}
	return nevents, nil
}

func (b *epollBackend) close() error {
	if b.fd == -1 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
