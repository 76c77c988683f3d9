//go:build linux

// Package sigsvc drives the fixed set of asynchronous events the session
// supervisor reacts to — interrupt, quit, stop, continue, child-status,
// and resize — through a single categorized wait that the signal-processor
// goroutine is the sole consumer of.
//
// A sigwait-over-blocked-signals design would need per-thread mask control
// the Go runtime does not hand out: the runtime owns signal dispositions
// and spawns threads before main runs, so a blocked-mask discipline can
// never cover every thread. os/signal's Notify/Stop/Reset are the
// runtime-sanctioned equivalents, and this package builds the categorized
// wait, the timeout, and the self-delivery discipline on top of them.
package sigsvc

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"sessrec/internal/sysx"
)

// Kind categorizes a received signal into one of the state machine's
// higher-level event classes.
type Kind int

const (
	KindInterrupt Kind = iota
	KindQuit
	KindStop
	KindContinue
	KindChild
	KindResize
	KindUnknown
	KindTimeout
)

// Event is what WaitSignal returns: a categorized signal, or a bare
// timeout with no signal attached.
type Event struct {
	Kind Kind
	Sig  unix.Signal
}

// EventSet is the fixed list of signals this program ever waits for.
var EventSet = []unix.Signal{
	unix.SIGTERM, unix.SIGINT, unix.SIGHUP, // interrupt
	unix.SIGQUIT, // quit
	unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU, // stop
	unix.SIGCONT,  // continue
	unix.SIGCHLD,  // child
	unix.SIGWINCH, // resize
}

func toKind(sig unix.Signal) Kind {
	switch sig {
	case unix.SIGTERM, unix.SIGINT, unix.SIGHUP:
		return KindInterrupt
	case unix.SIGQUIT:
		return KindQuit
	case unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU:
		return KindStop
	case unix.SIGCONT:
		return KindContinue
	case unix.SIGCHLD:
		return KindChild
	case unix.SIGWINCH:
		return KindResize
	default:
		return KindUnknown
	}
}

var signalNames = map[unix.Signal]string{
	unix.SIGTERM:  "SIGTERM",
	unix.SIGINT:   "SIGINT",
	unix.SIGHUP:   "SIGHUP",
	unix.SIGQUIT:  "SIGQUIT",
	unix.SIGTSTP:  "SIGTSTP",
	unix.SIGTTIN:  "SIGTTIN",
	unix.SIGTTOU:  "SIGTTOU",
	unix.SIGCONT:  "SIGCONT",
	unix.SIGCHLD:  "SIGCHLD",
	unix.SIGWINCH: "SIGWINCH",
	unix.SIGKILL:  "SIGKILL",
	unix.SIGPIPE:  "SIGPIPE",
	unix.SIGALRM:  "SIGALRM",
}

// DisplayName returns a human-readable symbol for sig, e.g. "SIGINT",
// falling back to a bracketed raw number for anything outside the table
// this program ever names in diagnostics.
func DisplayName(sig unix.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return fmt.Sprintf("[%d]", int(sig))
}

// Service owns the notification channels backing WaitSignal. SIGCONT gets
// its own channel so that DropSignal (and Deliver's wait-for-resume) can
// clear a pending continue without racing other event-set signals sharing
// the channel.
//
// One Service per process; the signal-processor goroutine is its sole
// consumer, which is what makes WaitSignal/DropSignal/Deliver safe to call
// without further locking.
type Service struct {
	events chan os.Signal
	cont   chan os.Signal
}

// InitParent installs the startup signal discipline: route the event set
// into the service's channels (taking every member away from its default
// disposition, so an interrupt reaches the state machine instead of
// killing the process) and ignore SIGPIPE so a closed stdout surfaces as
// an EPIPE write error instead of a silent death.
//
// Must be called before the child is spawned; os/exec resets dispositions
// and the signal mask in the child between fork and exec, which is the
// child-side reversal this discipline requires.
func InitParent() *Service {
	s := &Service{
		events: make(chan os.Signal, 64),
		cont:   make(chan os.Signal, 4),
	}
	signal.Ignore(unix.SIGPIPE)
	signal.Notify(s.events,
		unix.SIGTERM, unix.SIGINT, unix.SIGHUP,
		unix.SIGQUIT,
		unix.SIGTSTP, unix.SIGTTIN, unix.SIGTTOU,
		unix.SIGCHLD,
		unix.SIGWINCH,
	)
	signal.Notify(s.cont, unix.SIGCONT)
	return s
}

// Close detaches the service from signal delivery; event-set signals
// revert to their default dispositions.
func (s *Service) Close() {
	signal.Stop(s.events)
	signal.Stop(s.cont)
}

// WaitSignal blocks until one of the event-set signals is delivered, or
// timeout elapses (nil blocks indefinitely). Signals outside the
// recognized categories are silently consumed and waited past.
func (s *Service) WaitSignal(timeout *time.Duration) Event {
	var fire <-chan time.Time
	if timeout != nil {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		fire = t.C
	}
	for {
		select {
		case raw := <-s.events:
			sig, ok := raw.(unix.Signal)
			if !ok {
				continue
			}
			kind := toKind(sig)
			if kind == KindUnknown {
				continue
			}
			return Event{Kind: kind, Sig: sig}
		case <-s.cont:
			return Event{Kind: KindContinue, Sig: unix.SIGCONT}
		case <-fire:
			return Event{Kind: KindTimeout}
		}
	}
}

// DropSignal clears one pending instance of sig without blocking.
func (s *Service) DropSignal(sig unix.Signal) {
	ch := s.events
	if sig == unix.SIGCONT {
		ch = s.cont
	}
	select {
	case <-ch:
	default:
	}
}

// Deliver reverts sig to its default disposition and raises it against
// this process so that default action runs. Notification for sig is
// re-armed only for a stop signal (after the resume) or when kill fails;
// for any other signal it stays at its default disposition.
//
// For a terminating signal no re-arm is wanted: the process dies
// under the raised signal, which is the point — the parent's wait-
// observable disposition then matches the child's.
//
// For a stop signal, kill() queues the signal but the actual process stop
// happens asynchronously; re-arming immediately would race the delivery
// and catch the stop instead of taking it. Resume is observable, though:
// the kernel only continues a stopped process via SIGCONT, which lands on
// the service's dedicated continue channel. So Deliver blocks on that
// channel — sleeping across the suspension — consumes the resuming
// SIGCONT, and only then reinstalls sig's notification.
func (s *Service) Deliver(sig unix.Signal) error {
	signal.Reset(sig)
	if err := sysx.Kill(unix.Getpid(), sig); err != nil {
		signal.Notify(s.events, sig)
		return err
	}
	if toKind(sig) == KindStop {
		<-s.cont
		signal.Notify(s.events, sig)
	}
	return nil
}
