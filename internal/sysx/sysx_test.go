//go:build linux

package sysx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = CloseRaw(fds[0])
		_ = CloseRaw(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadWriteRetryRoundTrip(t *testing.T) {
	r, w := pipe(t)

	n, err := WriteRetry(w, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = ReadRetry(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestSelectReportsReadability(t *testing.T) {
	r, w := pipe(t)

	fd := &SelectFd{Fd: r, Want: Readable}
	zero := time.Duration(0)
	require.NoError(t, Select([]*SelectFd{fd}, &zero))
	assert.Equal(t, 0, fd.Got, "nothing written yet, pipe must not report readable")

	_, err := WriteRetry(w, []byte("x"))
	require.NoError(t, err)

	fd = &SelectFd{Fd: r, Want: Readable}
	require.NoError(t, Select([]*SelectFd{fd}, &zero))
	assert.Equal(t, Readable, fd.Got)
}

func TestSelectTimesOutWithoutData(t *testing.T) {
	r, _ := pipe(t)

	fd := &SelectFd{Fd: r, Want: Readable}
	d := 10 * time.Millisecond
	start := time.Now()
	require.NoError(t, Select([]*SelectFd{fd}, &d))
	assert.GreaterOrEqual(t, time.Since(start), d)
	assert.Equal(t, 0, fd.Got)
}

func TestErrorWrapsOpAndUnwraps(t *testing.T) {
	base := unix.EBADF
	err := wrap("read()", base)
	var asErr *Error
	require.ErrorAs(t, err, &asErr)
	assert.Equal(t, "read()", asErr.Op)
	assert.ErrorIs(t, err, base)
}

func TestCloseRawClosesDescriptor(t *testing.T) {
	r, w := pipe(t)
	require.NoError(t, CloseRaw(w))

	buf := make([]byte, 1)
	n, err := ReadRetry(r, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "read on a pipe whose writer closed returns EOF as n=0")
}
