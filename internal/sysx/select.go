//go:build linux

package sysx

import (
	"time"

	"golang.org/x/sys/unix"
)

// Mask bits for SelectFd.Want / SelectFd.Got.
const (
	Readable  = 1 << iota // fd is (or should be watched for being) readable
	Writable              // fd is (or should be watched for being) writable
	Exception             // fd has (or should be watched for) an exceptional condition
)

// SelectFd is one descriptor in a Select call: Want carries the
// caller-requested readiness mask; after Select returns, Got carries the
// subset that was actually ready.
//
// select(2) over an explicit fd-set bitmap, rather than poll(2) or a
// platform-specific primitive, is used throughout this package because
// poll() does not reliably report readiness on TTY master fds on every
// host this program targets.
type SelectFd struct {
	Fd   int
	Want int
	Got  int
}

// Select waits until at least one fd in fds is ready per its Want mask, or
// timeout elapses (nil means block indefinitely). EINTR is retried
// internally with the remaining time budget; it is never surfaced to the
// caller.
func Select(fds []*SelectFd, timeout *time.Duration) error {
	var rset, wset, xset unix.FdSet
	maxFd := 0

	build := func() {
		rset = unix.FdSet{}
		wset = unix.FdSet{}
		xset = unix.FdSet{}
		for _, f := range fds {
			if f.Fd > maxFd {
				maxFd = f.Fd
			}
			if f.Want&Readable != 0 {
				fdSet(&rset, f.Fd)
			}
			if f.Want&Writable != 0 {
				fdSet(&wset, f.Fd)
			}
			if f.Want&Exception != 0 {
				fdSet(&xset, f.Fd)
			}
		}
	}

	deadline := time.Time{}
	if timeout != nil {
		deadline = time.Now().Add(*timeout)
	}

	for {
		build()

		var tv *unix.Timeval
		if timeout != nil {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			t := unix.NsecToTimeval(remaining.Nanoseconds())
			tv = &t
		}

		n, err := unix.Select(maxFd+1, &rset, &wset, &xset, tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return wrap("select()", err)
		}

		for _, f := range fds {
			f.Got = 0
			if f.Want&Readable != 0 && fdIsSet(&rset, f.Fd) {
				f.Got |= Readable
			}
			if f.Want&Writable != 0 && fdIsSet(&wset, f.Fd) {
				f.Got |= Writable
			}
			if f.Want&Exception != 0 && fdIsSet(&xset, f.Fd) {
				f.Got |= Exception
			}
		}
		_ = n
		return nil
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
