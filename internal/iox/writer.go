//go:build linux

package iox

import (
	"sync"

	"golang.org/x/sys/unix"

	"sessrec/internal/sysx"
)

type writerMode int

const (
	writerOpen writerMode = iota
	writerClosed
)

// Writer lets one goroutine block in Write while another closes it; once
// closed, further writes are silently discarded rather than erroring, so
// the stdin pump can keep running harmlessly while the session shuts down.
type Writer struct {
	fd int

	mu   sync.Mutex
	mode writerMode

	pipeRd int
	pipeWr int
}

// NewWriter takes no ownership of fd beyond writing to it.
func NewWriter(fd int) (*Writer, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, &sysx.Error{Op: "pipe()", Err: err}
	}
	return &Writer{fd: fd, mode: writerOpen, pipeRd: fds[0], pipeWr: fds[1]}, nil
}

// Close marks the writer closed; subsequent Write calls discard their
// input and report success.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.mode == writerClosed {
		w.mu.Unlock()
		return nil
	}
	w.mode = writerClosed
	w.mu.Unlock()

	_, err := sysx.WriteRetry(w.pipeWr, []byte{0})
	return err
}

// Write implements io.Writer.
func (w *Writer) Write(buf []byte) (int, error) {
	for {
		w.mu.Lock()
		mode := w.mode
		w.mu.Unlock()

		if mode == writerClosed {
			return len(buf), nil
		}

		pipeFd := &sysx.SelectFd{Fd: w.pipeRd, Want: sysx.Readable}
		dataFd := &sysx.SelectFd{Fd: w.fd, Want: sysx.Writable}

		if err := sysx.Select([]*sysx.SelectFd{pipeFd, dataFd}, nil); err != nil {
			return 0, err
		}

		if pipeFd.Got&sysx.Readable != 0 {
			var drain [128]byte
			_, _ = sysx.ReadRetry(w.pipeRd, drain[:])
		}
		if dataFd.Got&sysx.Writable != 0 {
			return sysx.WriteRetry(w.fd, buf)
		}
	}
}
