//go:build linux

// Package iox implements fd I/O that one goroutine can abort or re-arm from
// another goroutine: an interruptible reader with a settable timeout, and an
// interruptible writer that silently discards once closed. Both block in
// sysx.Select over the data fd plus a self-pipe; a mode change writes one
// byte to the pipe so the blocked select wakes and re-reads the mode.
package iox

import (
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"sessrec/internal/sysx"
)

type readerMode int

const (
	modeNoTimeout readerMode = iota
	modeTimeout
	modeClosed
)

// Reader lets one goroutine block in Read while another goroutine closes it
// or changes its timeout; both operations wake the blocked read via a
// self-pipe.
type Reader struct {
	fd int

	mu      sync.Mutex
	mode    readerMode
	timeout time.Duration

	pipeRd int
	pipeWr int
}

// NewReader does not take ownership of fd: it is closed by the caller, not
// by Reader itself — Reader only ever reads from it.
func NewReader(fd int) (*Reader, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, &sysx.Error{Op: "pipe()", Err: err}
	}
	return &Reader{fd: fd, mode: modeNoTimeout, pipeRd: fds[0], pipeWr: fds[1]}, nil
}

// Close marks the reader closed; any blocked or future Read returns io.EOF.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.mode == modeClosed {
		r.mu.Unlock()
		return nil
	}
	r.mode = modeClosed
	r.mu.Unlock()

	_, err := sysx.WriteRetry(r.pipeWr, []byte{0})
	return err
}

// SetTimeout arms a read timeout: once armed, a Read blocked waiting for
// data returns io.EOF after d elapses without data. Passing this wakes any
// currently blocked Read so the new timeout applies immediately.
func (r *Reader) SetTimeout(d time.Duration) error {
	r.mu.Lock()
	if r.mode == modeClosed {
		r.mu.Unlock()
		return nil
	}
	r.mode = modeTimeout
	r.timeout = d
	r.mu.Unlock()

	_, err := sysx.WriteRetry(r.pipeWr, []byte{0})
	return err
}

// Read implements io.Reader. It performs at most one underlying read (or
// returns io.EOF on close/timeout); callers that want line-oriented
// semantics wrap it in a bufio.Reader.
func (r *Reader) Read(buf []byte) (int, error) {
	for {
		r.mu.Lock()
		mode := r.mode
		timeout := r.timeout
		r.mu.Unlock()

		if mode == modeClosed {
			return 0, io.EOF
		}

		pipeFd := &sysx.SelectFd{Fd: r.pipeRd, Want: sysx.Readable}
		dataFd := &sysx.SelectFd{Fd: r.fd, Want: sysx.Readable}

		var to *time.Duration
		if mode == modeTimeout {
			to = &timeout
		}

		if err := sysx.Select([]*sysx.SelectFd{pipeFd, dataFd}, to); err != nil {
			return 0, err
		}

		if pipeFd.Got&sysx.Readable != 0 {
			// Mode changed underneath us (set_timeout or close). Drain the
			// wakeup byte(s) and re-evaluate mode from the top.
			var drain [128]byte
			_, _ = sysx.ReadRetry(r.pipeRd, drain[:])
		}
		if dataFd.Got&sysx.Readable != 0 {
			return sysx.ReadRetry(r.fd, buf)
		}
		if pipeFd.Got == 0 && dataFd.Got == 0 && mode == modeTimeout {
			return 0, io.EOF
		}
		// Only the pipe fired (mode change, no new data yet): loop and
		// re-arm the select with the freshly re-read mode.
	}
}
