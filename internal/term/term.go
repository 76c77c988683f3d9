//go:build linux

// Package term adapts the controlling terminal and the PTY slave to the
// modes the session supervisor needs: canonical-mode toggling, VEOF lookup,
// window-size propagation, and an ANSI-stripping line filter. Termios and
// winsize access goes through golang.org/x/sys/unix's typed ioctl wrappers;
// golang.org/x/term provides the is-a-tty probe.
package term

import (
	"golang.org/x/sys/unix"
	xterm "golang.org/x/term"

	"sessrec/internal/sysx"
)

// IsTTY reports whether fd refers to a terminal device.
func IsTTY(fd int) bool {
	return xterm.IsTerminal(fd)
}

// State is a saved termios snapshot, restorable via RestoreState.
type State struct {
	termios unix.Termios
}

// SaveState captures fd's current termios settings.
func SaveState(fd int) (*State, error) {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, &sysx.Error{Op: "tcgetattr()", Err: err}
	}
	return &State{termios: *t}, nil
}

// RestoreState reinstates a previously saved termios snapshot on fd.
func RestoreState(fd int, s *State) error {
	t := s.termios
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &t); err != nil {
		return &sysx.Error{Op: "tcsetattr()", Err: err}
	}
	return nil
}

// Mode selects one of the two canonical-mode variants this program ever
// sets. There is no raw mode here: the supervisor always wants line
// buffering, differing only in whether the tty echoes input back.
type Mode int

const (
	// ModeCanon sets ICANON, leaving ECHO as-is.
	ModeCanon Mode = iota
	// ModeCanonNoEcho sets ICANON and clears ECHO. Applied to the PTY
	// master before fork so the kernel propagates it to the slave before
	// the child ever reads, avoiding a race where the child would
	// otherwise observe an echoing terminal for a brief window.
	ModeCanonNoEcho
)

// SetMode applies mode to fd with TCSANOW semantics.
func SetMode(fd int, mode Mode) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return &sysx.Error{Op: "tcgetattr()", Err: err}
	}

	t.Lflag |= unix.ICANON
	if mode == ModeCanonNoEcho {
		t.Lflag &^= unix.ECHO
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return &sysx.Error{Op: "tcsetattr()", Err: err}
	}
	return nil
}

// Codes is the subset of a tty's special-character table this program
// consults.
type Codes struct {
	VEOF byte
}

// GetCodes reads fd's special-character table.
func GetCodes(fd int) (Codes, error) {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return Codes{}, &sysx.Error{Op: "tcgetattr()", Err: err}
	}
	return Codes{VEOF: t.Cc[unix.VEOF]}, nil
}

// CopySize copies src's window size onto dst. Used to mirror the
// controlling terminal's size onto the PTY master, which the kernel
// propagates to the slave and signals to the child as SIGWINCH.
func CopySize(dstFd, srcFd int) error {
	ws, err := unix.IoctlGetWinsize(srcFd, unix.TIOCGWINSZ)
	if err != nil {
		return &sysx.Error{Op: "tcgetwinsize()", Err: err}
	}
	if err := unix.IoctlSetWinsize(dstFd, unix.TIOCSWINSZ, ws); err != nil {
		return &sysx.Error{Op: "tcsetwinsize()", Err: err}
	}
	return nil
}
