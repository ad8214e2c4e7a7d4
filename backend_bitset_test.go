//go:build linux && (amd64 || arm64)

package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBitsetBackendUpsertAlwaysArmsErrorSet(t *testing.T) {
	b, err := newBitsetBackend(false)
	require.NoError(t, err)
	defer b.close()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()
	fd := int(rf.Fd())

	require.NoError(t, b.upsertFd(fd, &pipeHandler{}, In))
	bb := b.(*bitsetBackend)
	assert.True(t, fdIsSet(&bb.errs, fd))
}

func TestBitsetBackendRejectsOutOfRangeFD(t *testing.T) {
	b, err := newBitsetBackend(false)
	require.NoError(t, err)
	defer b.close()

	err = b.upsertFd(-1, &pipeHandler{}, In)
	assert.Error(t, err)
}

func TestBitsetBackendWaitDispatchesReadable(t *testing.T) {
	b, err := newBitsetBackend(false)
	require.NoError(t, err)
	defer b.close()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()
	fd := int(rf.Fd())

	h := &pipeHandler{}
	require.NoError(t, b.upsertFd(fd, h, In))

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	n, err := b.wait(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.readable)
}

func TestBitsetBackendMaxFDIsLastFDSetSlot(t *testing.T) {
	b, err := newBitsetBackend(false)
	require.NoError(t, err)
	defer b.close()
	assert.Equal(t, unix.FD_SETSIZE-1, b.maxFD())
}

func TestBitsetBackendZeroInterestRemoval(t *testing.T) {
	b, err := newBitsetBackend(true)
	require.NoError(t, err)
	defer b.close()

	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()
	fd := int(rf.Fd())

	require.NoError(t, b.upsertFd(fd, &pipeHandler{}, In))
	require.NoError(t, b.updateFdEvents(fd, 0))

	_, ok := b.currentMask(fd)
	assert.False(t, ok)
}
