package reactor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeHandler struct {
	BaseHandler
	readable int
	writable int
	onRead   func()
}

func (h *pipeHandler) OnReadable(fd int) {
	h.readable++
	if h.onRead != nil {
		h.onRead()
	}
}

func (h *pipeHandler) OnWritable(fd int) {
	h.writable++
}

func newReactorForTest(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(WithBackend(BackendArray))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestPollReturnsZeroImmediatelyWhenEmpty(t *testing.T) {
	r := newReactorForTest(t)
	n, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFDCountMatchesRegisteredCardinality(t *testing.T) {
	r := newReactorForTest(t)
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	h := &pipeHandler{}
	require.NoError(t, r.UpsertFd(int(rf.Fd()), h, In))
	assert.Equal(t, 1, r.FDCount())

	require.NoError(t, r.RemoveFd(int(rf.Fd())))
	assert.Equal(t, 0, r.FDCount())
}

func TestPollDispatchesReadableFD(t *testing.T) {
	r := newReactorForTest(t)
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	h := &pipeHandler{}
	require.NoError(t, r.UpsertFd(int(rf.Fd()), h, In))

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	n, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.readable)
}

func TestRemoveFdStopsFurtherDispatch(t *testing.T) {
	r := newReactorForTest(t)
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	h := &pipeHandler{}
	require.NoError(t, r.UpsertFd(int(rf.Fd()), h, In))
	require.NoError(t, r.RemoveFd(int(rf.Fd())))

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	n, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, h.readable)
}

func TestCancelTimerPreventsOnTimeout(t *testing.T) {
	r := newReactorForTest(t)
	h := &recordingHandler{}

	key := r.AddTimer(0, h, 7)
	require.True(t, r.CancelTimer(key, h, 7))

	_, err := r.Poll()
	require.NoError(t, err)
	assert.Empty(t, h.fired)
}

func TestSetEventInResetEventInToggleMask(t *testing.T) {
	r := newReactorForTest(t)
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	h := &pipeHandler{}
	require.NoError(t, r.UpsertFd(int(rf.Fd()), h, 0))
	require.NoError(t, r.SetEventIn(int(rf.Fd())))

	_, err = wf.Write([]byte("x"))
	require.NoError(t, err)

	n, err := r.Poll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.ResetEventIn(int(rf.Fd())))
}

func TestUpsertFdRejectsNilHandler(t *testing.T) {
	r := newReactorForTest(t)
	rf, wf, err := os.Pipe()
	require.NoError(t, err)
	defer rf.Close()
	defer wf.Close()

	err = r.UpsertFd(int(rf.Fd()), nil, In)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	r, err := New(WithBackend(BackendArray))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}

func TestOperationsAfterCloseReturnErrReactorClosed(t *testing.T) {
	r, err := New(WithBackend(BackendArray))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Poll()
	assert.ErrorIs(t, err, ErrReactorClosed)

	err = r.UpsertFd(0, &pipeHandler{}, In)
	assert.ErrorIs(t, err, ErrReactorClosed)
}
