//go:build linux

package sysx

import (
	"golang.org/x/sys/unix"
)

// ReadRetry is a thin EINTR-retrying wrapper over unix.Read. It performs at
// most one successful read; it never loops to fill buf, so short reads are
// returned to the caller exactly as the kernel reports them.
func ReadRetry(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, wrap("read()", err)
		}
		return n, nil
	}
}

// WriteRetry writes buf to fd, retrying on EINTR and looping over partial
// writes until the whole buffer is consumed or an error occurs. Buffers are
// never mutated or consumed on error: the caller retains ownership.
func WriteRetry(fd int, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return total, wrap("write()", err)
		}
		total += n
	}
	return total, nil
}

// CloseRaw force-closes a raw descriptor, swallowing EINTR (on Linux a
// close() that returns EINTR has already released the descriptor; retrying
// it could close an unrelated fd recycled in the meantime).
func CloseRaw(fd int) error {
	err := unix.Close(fd)
	if err != nil && err != unix.EINTR {
		return wrap("close()", err)
	}
	return nil
}
