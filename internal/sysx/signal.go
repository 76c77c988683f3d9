//go:build linux

package sysx

import (
	"golang.org/x/sys/unix"
)

// Kill sends sig to pid, retrying on EINTR (kill(2) does not normally
// return EINTR, but the wrapper keeps the package's retry discipline
// uniform). A negative pid targets a process group, as kill(2) documents.
//
// This is the only signal-side syscall the program issues directly: signal
// receipt goes through os/signal (the Go runtime owns dispositions and
// per-thread masks; see the sigsvc package), but signal *sending* — to the
// child's process group, and to the process itself for self-delivery — is
// plain kill().
func Kill(pid int, sig unix.Signal) error {
	for {
		err := unix.Kill(pid, sig)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return wrap("kill()", err)
		}
		return nil
	}
}
