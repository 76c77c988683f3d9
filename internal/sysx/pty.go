//go:build linux

package sysx

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Ptsname returns the path of the slave device paired with the given
// /dev/ptmx master fd.
//
// libc's ptsname() returns a pointer to static storage and would need a
// process-wide mutex. On Linux, TIOCGPTN sidesteps that entirely: it
// returns the pty number directly through the kernel, so the shim needs
// neither a mutex nor libc at all.
func Ptsname(masterFd int) (string, error) {
	n, err := unix.IoctlGetInt(masterFd, unix.TIOCGPTN)
	if err != nil {
		return "", wrap("ptsname()", err)
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

// GrantUnlockPt unlocks (TIOCSPTLCK) the slave side of a master opened via
// /dev/ptmx so it can be opened by this process. It issues no separate
// grant call.
func GrantUnlockPt(masterFd int) error {
	var unlock int
	if err := unix.IoctlSetPointerInt(masterFd, unix.TIOCSPTLCK, unlock); err != nil {
		return wrap("unlockpt()", err)
	}
	return nil
}
