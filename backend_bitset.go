//go:build linux && (amd64 || arm64)

package reactor

import (
	"sort"

	"golang.org/x/sys/unix"
)

// bitsetBackend is the bitset-based backend: three fixed-size fd
// bitsets (read/write/error), bounded by the platform's FD_SETSIZE.
// Built only for 64-bit Linux targets, where unix.FdSet.Bits is a
// []int64 word array; other architectures should use BackendArray,
// which has no such platform-specific word-size dependency.
type bitsetBackend struct {
	read, write, errs unix.FdSet
	table             map[int]*bitsetFdEntry

	zeroInterestRemove bool
}

type bitsetFdEntry struct {
	handler Handler
	mask    Mask
}

func newBitsetBackend(zeroInterestRemove bool) (backend, error) {
	return &bitsetBackend{
		table:              make(map[int]*bitsetFdEntry),
		zeroInterestRemove: zeroInterestRemove,
	}, nil
}

const fdSetWordBits = 64

func fdSet(set *unix.FdSet, fd int)   { set.Bits[fd/fdSetWordBits] |= 1 << uint(fd%fdSetWordBits) }
func fdClr(set *unix.FdSet, fd int)   { set.Bits[fd/fdSetWordBits] &^= 1 << uint(fd%fdSetWordBits) }
func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/fdSetWordBits]&(1<<uint(fd%fdSetWordBits)) != 0
}

func (b *bitsetBackend) upsertFd(fd int, handler Handler, mask Mask) error {
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return newConfigError("UpsertFd", fd, ErrFDOutOfRange)
	}
	if handler == nil {
		return newConfigError("UpsertFd", fd, ErrNilHandler)
	}

	if entry, ok := b.table[fd]; ok {
		entry.handler = handler
		entry.mask = mask
	} else {
		b.table[fd] = &bitsetFdEntry{handler: handler, mask: mask}
	}

	if mask.has(In) {
		fdSet(&b.read, fd)
	} else {
		fdClr(&b.read, fd)
	}
	if mask.has(Out) {
		fdSet(&b.write, fd)
	} else {
		fdClr(&b.write, fd)
	}
	fdSet(&b.errs, fd)
	return nil
}

func (b *bitsetBackend) updateFdEvents(fd int, mask Mask) error {
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return newConfigError("UpdateFdEvents", fd, ErrFDOutOfRange)
	}
	entry, ok := b.table[fd]
	if !ok {
		return newConfigError("UpdateFdEvents", fd, ErrFDNotRegistered)
	}

	if b.zeroInterestRemove && mask == 0 {
		delete(b.table, fd)
		fdClr(&b.read, fd)
		fdClr(&b.write, fd)
		fdClr(&b.errs, fd)
		return nil
	}

	if mask.has(In) {
		fdSet(&b.read, fd)
	} else {
		fdClr(&b.read, fd)
	}
	if mask.has(Out) {
		fdSet(&b.write, fd)
	} else {
		fdClr(&b.write, fd)
	}
	entry.mask = mask
	return nil
}

func (b *bitsetBackend) removeFd(fd int) error {
	if fd < 0 || fd >= unix.FD_SETSIZE {
		return newConfigError("RemoveFd", fd, ErrFDOutOfRange)
	}
	if _, ok := b.table[fd]; !ok {
		return newConfigError("RemoveFd", fd, ErrFDNotRegistered)
	}
	delete(b.table, fd)
	fdClr(&b.read, fd)
	fdClr(&b.write, fd)
	fdClr(&b.errs, fd)
	return nil
}

func (b *bitsetBackend) currentMask(fd int) (Mask, bool) {
	entry, ok := b.table[fd]
	if !ok {
		return 0, false
	}
	return entry.mask, true
}

func (b *bitsetBackend) fdCount() int { return len(b.table) }

func (b *bitsetBackend) maxFD() int { return unix.FD_SETSIZE - 1 }

func (b *bitsetBackend) wait(timeoutMs int32) (int, error) {
	maxFd := -1
	for fd := range b.table {
		if fd > maxFd {
			maxFd = fd
		}
	}

	// select mutates its fd_set arguments in place, so pass copies.
	read, write, errs := b.read, b.write, b.errs

	var tv *unix.Timeval
	if timeoutMs >= 0 {
		t := unix.NsecToTimeval(int64(timeoutMs) * 1e6)
		tv = &t
	}

	n, err := unix.Select(maxFd+1, &read, &write, &errs, tv)
	if err != nil {
		return -1, &PrimitiveError{Op: "select", Errno: err, Interrupt: err == unix.EINTR}
	}
	if n == 0 {
		return 0, nil
	}

	// The fd table is unordered; collect fired fds in ascending order
	// first, then dispatch, since user-side mutation during dispatch
	// would otherwise invalidate map iteration.
	fds := make([]int, 0, len(b.table))
	for fd := range b.table {
		fds = append(fds, fd)
	}
	sort.Ints(fds)

	type fired struct {
		fd   int
		mask Mask
	}
	var firedList []fired
	for _, fd := range fds {
		var m Mask
		if fdIsSet(&read, fd) {
			m |= In
		}
		if fdIsSet(&write, fd) {
			m |= Out
		}
		if fdIsSet(&errs, fd) {
			m |= Error
		}
		if m != 0 {
			firedList = append(firedList, fired{fd, m})
		}
	}

	nevents := 0
	for _, f := range firedList {
		if f.mask.has(In) {
			if entry, ok := b.table[f.fd]; ok {
				entry.handler.OnReadable(f.fd)
				nevents++
			}
		}
		if f.mask.has(Out) {
			if entry, ok := b.table[f.fd]; ok {
				entry.handler.OnWritable(f.fd)
				nevents++
			}
		}
		if f.mask.has(Error) {
			if entry, ok := b.table[f.fd]; ok {
				entry.handler.OnError(f.fd)
				nevents++
			}
		}
	}
	return nevents, nil
}

func (b *bitsetBackend) close() error { return nil }
