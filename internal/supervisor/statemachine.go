//go:build linux

package supervisor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"sessrec/internal/iox"
	"sessrec/internal/ptyproc"
	"sessrec/internal/sigsvc"
)

// runSignalProcessor is the signal-driven state machine coordinating the
// parent, the child, and the terminal. It owns the pendingInterrupt/
// pendingStop bookkeeping and runs until the child reaches a final status,
// at which point it arms the pty-reader's drain timeout and unblocks the
// stdin pump, then returns whichever user-originated deadly signal (if
// any) is responsible for the child's death so the caller can self-deliver
// the same signal after the log has drained.
func runSignalProcessor(
	svc *sigsvc.Service,
	pty *ptyproc.Proc,
	ptyReader *iox.Reader,
	stdinReader *iox.Reader,
	quitTimeout time.Duration,
	beforeExit func(),
	wakeup func(),
	log *logrus.Logger,
	fatal func(int, string, ...any),
) signalResult {
	var pendingInterrupt *unix.Signal
	var pendingStop *unix.Signal

	// shutdown unblocks the pty-reader (drain, then end-of-file) and the
	// stdin pump; every exit from the loop goes through here.
	shutdown := func() {
		_ = ptyReader.SetTimeout(quitTimeout)
		_ = stdinReader.Close()
	}

	// terminal is the shared path for a second interrupt receipt and for
	// every quit: give the child one more beat to die on its own, reap it
	// without blocking, SIGKILL it if it is still alive, and hand sig back
	// so the parent dies the same way once the log has drained.
	terminal := func(sig unix.Signal) signalResult {
		_ = svc.WaitSignal(&quitTimeout)

		if st, ok, err := pty.WaitChild(ptyproc.NoHang); err != nil || !ok || !st.Final() {
			log.WithField("sig", sigsvc.DisplayName(sig)).Debug("child still alive, killing")
			_ = pty.KillChild(unix.SIGKILL)
		}

		shutdown()
		return signalResult{pendingInterrupt: sig, havePendingInterrupt: true}
	}

	for {
		ev := svc.WaitSignal(nil)

		switch ev.Kind {
		case sigsvc.KindInterrupt:
			log.WithField("sig", sigsvc.DisplayName(ev.Sig)).Debug("interrupt received")
			if pendingInterrupt == nil {
				if err := pty.KillChild(ev.Sig); err != nil {
					fatal(ExitFailure, "can't signal command: %s", err)
					return signalResult{}
				}
				sig := ev.Sig
				pendingInterrupt = &sig
				continue
			}
			return terminal(ev.Sig)

		case sigsvc.KindQuit:
			log.Debug("quit received")
			if pendingInterrupt == nil {
				_ = pty.KillChild(ev.Sig)
			}
			return terminal(ev.Sig)

		case sigsvc.KindStop:
			if pendingStop == nil {
				if err := pty.KillChild(unix.SIGSTOP); err != nil {
					fatal(ExitFailure, "can't signal command: %s", err)
					return signalResult{}
				}
				sig := ev.Sig
				pendingStop = &sig
				continue
			}
			_ = pty.KillChild(unix.SIGSTOP)
			suspendSelf(svc, *pendingStop, beforeExit, wakeup, pty)
			pendingStop = nil

		case sigsvc.KindContinue:
			_ = pty.KillChild(unix.SIGCONT)
			pendingStop = nil

		case sigsvc.KindResize:
			_ = pty.ResizeChild()

		case sigsvc.KindChild:
			st, ok, err := pty.WaitChild(ptyproc.NoHang)
			if err != nil {
				fatal(ExitFailure, "waitpid failed: %s", err)
				return signalResult{}
			}
			if !ok {
				continue
			}
			if st.Final() {
				shutdown()
				if pendingInterrupt != nil {
					return signalResult{pendingInterrupt: *pendingInterrupt, havePendingInterrupt: true}
				}
				return signalResult{}
			}
			if st.Stopped && pendingStop != nil {
				suspendSelf(svc, *pendingStop, beforeExit, wakeup, pty)
				pendingStop = nil
			}

		case sigsvc.KindTimeout:
			// WaitSignal was called with no timeout; unreachable.
		}
	}
}

// suspendSelf delivers sig (a stop signal) to the supervisor itself so it
// shares the child's job-control state with the shell, restoring terminal
// state first so the shell's own prompt is left sane while suspended.
// Deliver sleeps across the suspension and consumes the resuming SIGCONT;
// on return we re-arm stdin's canonical mode, drop any duplicate SIGCONT
// that raced in, and propagate the continue to the child.
func suspendSelf(svc *sigsvc.Service, sig unix.Signal, beforeExit func(), wakeup func(), pty *ptyproc.Proc) {
	beforeExit()
	_ = svc.Deliver(sig)
	wakeup()
	svc.DropSignal(unix.SIGCONT)
	_ = pty.KillChild(unix.SIGCONT)
}

// forwardExitStatus reaps the child's final status (blocking until one is
// available: the signal processor's interrupt/quit path can return right
// after sending SIGKILL, before the child has been reaped), converts it
// to a process exit code, and —
// when the child died because a user-originated deadly signal reached the
// parent first — self-delivers that signal so the parent's own exit
// disposition matches the child's, instead of merely reporting 128+n.
func forwardExitStatus(svc *sigsvc.Service, pty *ptyproc.Proc, argv0 string, res signalResult, beforeExit func()) (int, string) {
	var st ptyproc.Status
	for {
		var ok bool
		var err error
		st, ok, err = pty.WaitChild(ptyproc.Hang)
		if err != nil {
			return ExitFailure, fmt.Sprintf("sessrec: error: waitpid failed: %s", err)
		}
		if !ok {
			return ExitFailure, "sessrec: error: command never reported a final status"
		}
		// Skip stale stop/continue notifications still queued ahead of the
		// final status.
		if st.Final() {
			break
		}
	}

	if st.Exited {
		diag := ""
		if st.ExitCode != 0 {
			diag = fmt.Sprintf("sessrec: %q exited with status %d", argv0, st.ExitCode)
		}
		return st.ExitCode, diag
	}

	if !st.Signaled {
		return ExitCommandFailed, ""
	}

	if res.havePendingInterrupt {
		beforeExit()
		_ = svc.Deliver(res.pendingInterrupt)
		// Deliver only returns for a signal whose default action did not
		// terminate us (shouldn't happen for TERM/INT/HUP/QUIT); fall
		// through to reporting the child's status directly.
	}

	diag := fmt.Sprintf("sessrec: %q killed by signal %s", argv0, sigsvc.DisplayName(st.Signal))
	return ExitCommandSignaled + int(st.Signal), diag
}
