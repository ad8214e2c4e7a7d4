package reactor

import (
	"golang.org/x/sys/unix"
)

const badFD = -1

// arrayFdEntry records where fd's slot lives in the poll set.
type arrayFdEntry struct {
	index   int
	handler Handler
	mask    Mask
}

// arrayBackend is the scanning array-based backend: a dense array of
// pollfd entries plus a map from fd to array index. Deletion marks the
// slot with the badFD sentinel rather than compacting immediately;
// compaction ("shrink") runs inside wait once both the array size and
// the retired-slot count cross their configured thresholds.
type arrayBackend struct {
	set     []unix.PollFd
	table   map[int]*arrayFdEntry
	retired uint32

	shrinkFDCount      uint32
	shrinkRetiredCount uint32
	zeroInterestRemove bool
}

func newArrayBackend(shrinkFDCount, shrinkRetiredCount uint32, zeroInterestRemove bool) (backend, error) {
	return &arrayBackend{
		table:              make(map[int]*arrayFdEntry),
		shrinkFDCount:      shrinkFDCount,
		shrinkRetiredCount: shrinkRetiredCount,
		zeroInterestRemove: zeroInterestRemove,
	}, nil
}

func maskToPollEvents(m Mask) int16 {
	var ev int16
	if m.has(In) {
		ev |= unix.POLLIN
	}
	if m.has(Out) {
		ev |= unix.POLLOUT
	}
	return ev
}

func (b *arrayBackend) upsertFd(fd int, handler Handler, mask Mask) error {
	if fd < 0 {
		return newConfigError("UpsertFd", fd, ErrFDOutOfRange)
	}
	if handler == nil {
		return newConfigError("UpsertFd", fd, ErrNilHandler)
	}

	events := maskToPollEvents(mask)
	if entry, ok := b.table[fd]; ok {
		b.set[entry.index].Events = events
		entry.handler = handler
		entry.mask = mask
		return nil
	}

	b.set = append(b.set, unix.PollFd{Fd: int32(fd), Events: events})
	b.table[fd] = &arrayFdEntry{index: len(b.set) - 1, handler: handler, mask: mask}
	return nil
}

func (b *arrayBackend) updateFdEvents(fd int, mask Mask) error {
	if fd < 0 {
		return newConfigError("UpdateFdEvents", fd, ErrFDOutOfRange)
	}
	entry, ok := b.table[fd]
	if !ok {
		return newConfigError("UpdateFdEvents", fd, ErrFDNotRegistered)
	}

	if b.zeroInterestRemove && mask == 0 {
		b.retireLocked(fd, entry)
		return nil
	}

	b.set[entry.index].Events = maskToPollEvents(mask)
	entry.mask = mask
	return nil
}

func (b *arrayBackend) removeFd(fd int) error {
	if fd < 0 {
		return newConfigError("RemoveFd", fd, ErrFDOutOfRange)
	}
	entry, ok := b.table[fd]
	if !ok {
		return newConfigError("RemoveFd", fd, ErrFDNotRegistered)
	}
	b.retireLocked(fd, entry)
	return nil
}

func (b *arrayBackend) retireLocked(fd int, entry *arrayFdEntry) {
	b.set[entry.index].Fd = badFD
	delete(b.table, fd)
	b.retired++
}

func (b *arrayBackend) currentMask(fd int) (Mask, bool) {
	entry, ok := b.table[fd]
	if !ok {
		return 0, false
	}
	return entry.mask, true
}

func (b *arrayBackend) fdCount() int { return len(b.table) }

// maxFD reports no platform bound for the scanning array backend.
func (b *arrayBackend) maxFD() int { return -1 }

// shrink compacts the array once both thresholds are crossed, the same
// gating rule as the reference implementation: infrequent enough that
// normal churn doesn't pay the rewrite cost every wait call.
func (b *arrayBackend) shrink() {
	if uint32(len(b.set)) <= b.shrinkFDCount || b.retired <= b.shrinkRetiredCount {
		return
	}
	first := 0
	for i := range b.set {
		if b.set[i].Fd != badFD {
			if first != i {
				b.set[first] = b.set[i]
				b.table[int(b.set[i].Fd)].index = first
			}
			first++
		}
	}
	b.set = b.set[:first]
	b.retired = 0
}

func (b *arrayBackend) wait(timeoutMs int32) (int, error) {
	b.shrink()

	n, err := unix.Poll(b.set, int(timeoutMs))
	if err != nil {
		return -1, &PrimitiveError{Op: "poll", Errno: err, Interrupt: err == unix.EINTR}
	}
	if n == 0 {
		return 0, nil
	}

	nevents := 0
	nfds := len(b.set)
	for i := 0; i < nfds; i++ {
		if b.set[i].Fd == badFD {
			continue
		}
		revents := b.set[i].Revents

		if revents&unix.POLLIN != 0 {
			if entry, ok := b.table[int(b.set[i].Fd)]; ok {
				entry.handler.OnReadable(int(b.set[i].Fd))
				nevents++
			}
		}
		if b.set[i].Fd == badFD {
			continue
		}
		if revents&unix.POLLOUT != 0 {
			if entry, ok := b.table[int(b.set[i].Fd)]; ok {
				entry.handler.OnWritable(int(b.set[i].Fd))
				nevents++
			}
		}
		if b.set[i].Fd == badFD {
			continue
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			if entry, ok := b.table[int(b.set[i].Fd)]; ok {
				entry.handler.OnError(int(b.set[i].Fd))
				nevents++
			}
		}
	}
	return nevents, nil
}

func (b *arrayBackend) close() error { return nil }
