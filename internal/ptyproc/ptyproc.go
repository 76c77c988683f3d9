//go:build linux

// Package ptyproc owns the PTY master/slave pair and the child process
// attached to its slave side: the fd hygiene across fork/exec, controlling
// terminal handoff, and wait/kill operations.
//
// Spawning goes through os/exec with SysProcAttr{Setsid,Setctty,Ctty}
// rather than a hand-rolled raw fork(): the Go runtime cannot safely run
// user code between fork and exec, and os/exec's guarded fork/exec path
// already performs the child-side setup this program needs (reset signal
// dispositions and mask, setsid, TIOCSCTTY, dup2 onto stdio, close-on-exec
// for everything else) before execve.
package ptyproc

import (
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"sessrec/internal/sysx"
	"sessrec/internal/term"
)

// WaitMode selects blocking or non-blocking waitpid semantics.
type WaitMode int

const (
	Hang WaitMode = iota
	NoHang
)

// Status is the most recently observed (or latched final) wait result for
// the child.
type Status struct {
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   unix.Signal
	Stopped  bool
	StopSig  unix.Signal
	Continued bool
}

// Final reports whether this status represents a terminal state (exited or
// signaled), as opposed to a transient stop/continue notification.
func (s Status) Final() bool { return s.Exited || s.Signaled }

type child struct {
	mu      sync.Mutex
	pid     int
	spawned bool
	last    Status
	final   *Status
}

// Proc owns a PTY master/slave pair and, once spawned, the child process
// attached to the slave.
//
// Invariant: the slave fd stays open in the parent for the whole session,
// so the pty-reader can drain buffered output after the child exits
// without hitting EIO.
type Proc struct {
	masterFd int
	slaveFd  int
	cmd      *exec.Cmd
	child    child
}

// Open creates a fresh PTY master/slave pair. Both fds are close-on-exec:
// the child receives the slave through its own dup at spawn time, never by
// inheriting the parent-owned descriptors.
func Open() (*Proc, error) {
	m, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &sysx.Error{Op: "openpt()", Err: err}
	}

	if err := sysx.GrantUnlockPt(m); err != nil {
		_ = sysx.CloseRaw(m)
		return nil, err
	}

	name, err := sysx.Ptsname(m)
	if err != nil {
		_ = sysx.CloseRaw(m)
		return nil, err
	}

	s, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = sysx.CloseRaw(m)
		return nil, &sysx.Error{Op: "open()", Err: err}
	}

	return &Proc{masterFd: m, slaveFd: s}, nil
}

// MasterFd returns the owning master descriptor. Callers must not close it;
// use DupMaster for an independently closable duplicate.
func (p *Proc) MasterFd() int { return p.masterFd }

// SlaveFd returns the owning slave descriptor.
func (p *Proc) SlaveFd() int { return p.slaveFd }

// DupMaster returns an independent, caller-owned duplicate of the master
// fd, for handing to the reader, writer, and signal threads without
// aliasing the Proc-owned fd. The duplicate is close-on-exec so it never
// leaks into the child.
func (p *Proc) DupMaster() (int, error) {
	fd, err := unix.FcntlInt(uintptr(p.masterFd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return -1, &sysx.Error{Op: "dup()", Err: err}
	}
	return fd, nil
}

// DupSlave returns an independent, caller-owned, close-on-exec duplicate
// of the slave fd.
func (p *Proc) DupSlave() (int, error) {
	fd, err := unix.FcntlInt(uintptr(p.slaveFd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return -1, &sysx.Error{Op: "dup()", Err: err}
	}
	return fd, nil
}

// Close releases both owned fds. Only valid once the session is over; the
// slave must stay open for the session's whole duration (see type doc).
func (p *Proc) Close() {
	_ = sysx.CloseRaw(p.masterFd)
	_ = sysx.CloseRaw(p.slaveFd)
}

// SpawnChild forks and execs argv, attaching the child's stdin/stdout/
// stderr to the PTY slave and making it the child's controlling terminal.
// Must be called exactly once per Proc; a second call is a programming
// error.
//
// Parent setup puts the master into canonical-no-echo mode before fork so
// the kernel propagates that mode to the slave before the child can read
// from it, and mirrors the parent's stdout window size onto the master.
func (p *Proc) SpawnChild(argv []string) error {
	p.child.mu.Lock()
	defer p.child.mu.Unlock()

	if p.child.spawned {
		panic("ptyproc: SpawnChild called twice")
	}

	if err := term.SetMode(p.masterFd, term.ModeCanonNoEcho); err != nil {
		return err
	}
	if term.IsTTY(int(os.Stdout.Fd())) {
		if err := term.CopySize(p.masterFd, int(os.Stdout.Fd())); err != nil {
			return err
		}
	}

	// os/exec dup2's whatever *os.File we hand it into the child and never
	// touches our own p.slaveFd; but an *os.File wrapping p.slaveFd
	// directly would risk a finalizer closing it out from under us once
	// that *os.File is garbage collected. So the child gets a throwaway
	// dup, handed in via ExtraFiles at index 3 with Setctty's Ctty index
	// pointing at that same slot rather than at the ambiguous fd-0 alias.
	dupFd, err := unix.FcntlInt(uintptr(p.slaveFd), unix.F_DUPFD_CLOEXEC, 3)
	if err != nil {
		return &sysx.Error{Op: "dup()", Err: err}
	}
	slave := os.NewFile(uintptr(dupFd), "pty-slave")
	defer slave.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.ExtraFiles = []*os.File{slave}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    3,
	}

	if err := cmd.Start(); err != nil {
		return &sysx.Error{Op: "fork()", Err: err}
	}

	p.child.pid = cmd.Process.Pid
	p.child.spawned = true
	p.cmd = cmd

	return nil
}

// Pid returns the child's process id. Valid only after SpawnChild.
func (p *Proc) Pid() int {
	p.child.mu.Lock()
	defer p.child.mu.Unlock()
	return p.child.pid
}

// KillChild sends sig to the child's entire process group, so that a
// shell's foreground job children receive it too.
func (p *Proc) KillChild(sig unix.Signal) error {
	p.child.mu.Lock()
	pid := p.child.pid
	final := p.child.final
	p.child.mu.Unlock()

	if final != nil {
		// No kill after a final status latches.
		return nil
	}

	if err := unix.Kill(-pid, sig); err != nil {
		return &sysx.Error{Op: "kill()", Err: err}
	}
	return nil
}

// WaitChild waits for a change in the child's status. With Hang it blocks
// until exit/signal/stop/continue; with NoHang it returns ok=false
// immediately if nothing is pending. Once a final (exited/signaled) status
// has latched, subsequent calls return it without blocking.
func (p *Proc) WaitChild(mode WaitMode) (Status, bool, error) {
	p.child.mu.Lock()
	pid := p.child.pid
	if p.child.final != nil {
		st := *p.child.final
		p.child.mu.Unlock()
		return st, true, nil
	}
	p.child.mu.Unlock()

	opts := unix.WUNTRACED | unix.WCONTINUED
	if mode == NoHang {
		opts |= unix.WNOHANG
	}

	var ws unix.WaitStatus
	var rusage unix.Rusage
	for {
		rpid, err := unix.Wait4(pid, &ws, opts, &rusage)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Status{}, false, &sysx.Error{Op: "waitpid()", Err: err}
		}
		if rpid == 0 {
			return Status{}, false, nil
		}
		break
	}

	st := Status{}
	switch {
	case ws.Exited():
		st.Exited = true
		st.ExitCode = ws.ExitStatus()
	case ws.Signaled():
		st.Signaled = true
		st.Signal = ws.Signal()
	case ws.Stopped():
		st.Stopped = true
		st.StopSig = ws.StopSignal()
	case ws.Continued():
		st.Continued = true
	}

	p.child.mu.Lock()
	p.child.last = st
	if st.Final() {
		final := st
		p.child.final = &final
	}
	p.child.mu.Unlock()

	return st, true, nil
}

// ResizeChild mirrors the parent's stdout window size onto the PTY master;
// the kernel propagates it to the slave and raises SIGWINCH in the child.
func (p *Proc) ResizeChild() error {
	if !term.IsTTY(int(os.Stdout.Fd())) {
		return nil
	}
	return term.CopySize(p.masterFd, int(os.Stdout.Fd()))
}
