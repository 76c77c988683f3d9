//go:build linux

// Package supervisor runs one recorded session: it wires the PTY, the
// buffer pool/queue, the terminal adapter, and the signal service
// together, runs the three worker goroutines and the pty-reader loop,
// drives the signal-driven state machine, and forwards the child's exit
// status.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"sessrec/internal/bufqueue"
	"sessrec/internal/format"
	"sessrec/internal/iox"
	"sessrec/internal/outfile"
	"sessrec/internal/ptyproc"
	"sessrec/internal/sigsvc"
	"sessrec/internal/sysx"
	"sessrec/internal/term"
)

// Options configures one recorded session; it is the CLI surface already
// parsed and validated by cmd/sessrec.
type Options struct {
	Argv []string // command and args to run

	Header    bool
	Timestamp bool
	TSFormat  string
	TSSource  format.TimeSource

	OutputPath string // empty iff Null
	OutputMode outfile.Mode
	Null       bool
	Raw        bool

	Silent        bool
	QuitTimeout   time.Duration
	QueueCapacity int

	Log *logrus.Logger
}

// Run executes one full recorded session and returns the process exit
// code. Its own error paths return rather than exit, so deferred cleanup
// (terminal restore) runs on them and the caller (cmd/sessrec) issues the
// final os.Exit. Fatal I/O errors in the worker goroutines and in the
// pty-reader loop restore the terminal and call os.Exit directly.
func Run(opts Options) int {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}

	sigSvc := sigsvc.InitParent()
	defer sigSvc.Close()

	stdinIsTTY := term.IsTTY(unix.Stdin)
	var saved *term.State
	if stdinIsTTY {
		var err error
		saved, err = term.SaveState(unix.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sessrec: error: can't save tty state: %s\n", err)
			return ExitFailure
		}
		if err := term.SetMode(unix.Stdin, term.ModeCanon); err != nil {
			fmt.Fprintf(os.Stderr, "sessrec: error: can't switch tty to canonical mode: %s\n", err)
			return ExitFailure
		}
	}

	beforeExit := func() {
		if saved != nil {
			_ = term.RestoreState(unix.Stdin, saved)
		}
	}
	defer beforeExit()

	wakeup := func() {
		if stdinIsTTY {
			_ = term.SetMode(unix.Stdin, term.ModeCanon)
		}
	}

	var outWriter io.Writer
	var outCloser func() error
	if !opts.Null {
		f, err := outfile.Open(opts.OutputPath, opts.OutputMode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
			return ExitFailure
		}
		defer f.Close()
		if opts.Raw {
			outWriter = f
		} else {
			stripper := term.NewStripper(f)
			outWriter = stripper
			outCloser = stripper.Flush
		}
	}

	hostname, _ := os.Hostname()
	formatter := format.New(opts.Header, opts.Timestamp, opts.TSFormat, opts.TSSource, opts.Argv)

	pty, err := ptyproc.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: can't open pty: %s\n", err)
		return ExitFailure
	}
	defer pty.Close()

	writeMasterFd, err := pty.DupMaster()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		return ExitFailure
	}
	readMasterFd, err := pty.DupMaster()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		return ExitFailure
	}

	ptyWriter, err := iox.NewWriter(writeMasterFd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		return ExitFailure
	}
	ptyReader, err := iox.NewReader(readMasterFd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		return ExitFailure
	}

	slaveDup, err := pty.DupSlave()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		return ExitFailure
	}
	codes, err := term.GetCodes(slaveDup)
	_ = sysx.CloseRaw(slaveDup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: can't read pty attributes: %s\n", err)
		return ExitFailure
	}

	if err := pty.SpawnChild(opts.Argv); err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: can't execute command %q: %s\n", opts.Argv[0], err)
		return ExitCommandFailed
	}

	pool := bufqueue.NewPool()
	queue := bufqueue.NewQueue(opts.QueueCapacity)

	stdinFd := unix.Stdin
	stdinReader, err := iox.NewReader(stdinFd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sessrec: error: can't open stdin for reading: %s\n", err)
		return ExitFailure
	}
	if opts.Silent {
		queue.Close()
	}

	log.WithField("pid", pty.Pid()).Debug("child spawned")

	// fatalFromWorker is used by the background goroutines and the
	// pty-reader loop: unlike Run's own error returns, they can't `return` their way
	// through Run's defers, so it restores the terminal itself before
	// exiting the whole process.
	fatalFromWorker := func(code int, msg string, args ...any) {
		fmt.Fprintf(os.Stderr, "sessrec: error: "+msg+"\n", args...)
		beforeExit()
		os.Exit(code)
	}

	doneStdin := make(chan struct{})
	go func() {
		defer close(doneStdin)
		runStdinPump(stdinReader, ptyWriter, codes.VEOF, fatalFromWorker)
	}()

	doneStdout := make(chan struct{})
	go func() {
		defer close(doneStdout)
		runStdoutPump(queue, fatalFromWorker)
	}()

	sigResult := make(chan signalResult, 1)
	go func() {
		res := runSignalProcessor(sigSvc, pty, ptyReader, stdinReader, opts.QuitTimeout, beforeExit, wakeup, log, fatalFromWorker)
		sigResult <- res
	}()

	runPtyReaderLoop(ptyReader, pool, queue, formatter, outWriter, outCloser, hostname, fatalFromWorker)

	queue.Close()
	res := <-sigResult
	_ = stdinReader.Close()
	<-doneStdout
	<-doneStdin
	_ = ptyWriter.Close()

	if n := queue.Dropped(); n > 0 {
		log.WithField("lines", n).Debug("stdout fell behind, oldest queued lines dropped")
	}

	code, diag := forwardExitStatus(sigSvc, pty, opts.Argv[0], res, beforeExit)
	if diag != "" {
		fmt.Fprintln(os.Stderr, diag)
	}
	return code
}

type signalResult struct {
	pendingInterrupt     unix.Signal
	havePendingInterrupt bool
}

// runStdinPump reads lines from the interruptible stdin reader and writes
// them to the master PTY. On end-of-file (whether natural, or because the
// reader was closed by the signal-processor) it emits one VEOF byte to
// propagate end-of-input under the slave's canonical mode, then exits.
func runStdinPump(r *iox.Reader, w *iox.Writer, veof byte, fatal func(int, string, ...any)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if _, werr := w.Write([]byte(line)); werr != nil {
				fatal(ExitFailure, "can't write input to command: %s", werr)
				return
			}
		}
		if err != nil {
			if _, werr := w.Write([]byte{veof}); werr != nil {
				fatal(ExitFailure, "can't write input to command: %s", werr)
			}
			return
		}
	}
}

// runStdoutPump drains the buffer queue to stdout until it is closed and
// empty.
func runStdoutPump(q *bufqueue.Queue, fatal func(int, string, ...any)) {
	for {
		buf, ok := q.Pop()
		if !ok {
			return
		}
		_, err := os.Stdout.Write(buf.Bytes())
		buf.Release()
		if err != nil {
			fatal(ExitFailure, "can't write to stdout: %s", err)
			return
		}
	}
}

// runPtyReaderLoop is the main-thread loop of the session: allocate a
// buffer, format a pending header or timestamp prefix into it, read one
// line from the master PTY, write the buffer synchronously to the output
// sink, then hand it to the queue for the stdout-pump.
func runPtyReaderLoop(
	r *iox.Reader,
	pool *bufqueue.Pool,
	queue *bufqueue.Queue,
	formatter *format.Formatter,
	outWriter io.Writer,
	outFlush func() error,
	hostname string,
	fatal func(int, string, ...any),
) {
	br := bufio.NewReader(r)

	writeSync := func(buf *bufqueue.Buffer) {
		if buf.Len() == 0 || outWriter == nil {
			return
		}
		if _, err := outWriter.Write(buf.Bytes()); err != nil {
			fatal(ExitFailure, "can't write output file: %s", err)
			return
		}
		if outFlush != nil {
			if err := outFlush(); err != nil {
				fatal(ExitFailure, "can't write output file: %s", err)
			}
		}
	}

	for {
		buf := pool.Alloc()

		if formatter.NeedHeader() {
			buf.Grow(func(dst []byte) []byte { return formatter.FormatHeader(dst, hostname) })
			writeSync(buf)
			queue.Push(buf)
			continue
		}

		if formatter.NeedTimestamp() {
			buf.Grow(formatter.FormatTimestamp)
		}

		line, err := br.ReadString('\n')
		buf.Append([]byte(line))

		if err != nil {
			// End-of-file with no residual data: discard the buffer even if
			// a timestamp prefix was already formatted into it, so the log
			// never ends in a dangling prefix with no line behind it.
			if len(line) == 0 {
				buf.Release()
				return
			}
			writeSync(buf)
			queue.Push(buf)
			return
		}

		writeSync(buf)
		queue.Push(buf)
	}
}
