//go:build linux

package term

import (
	"bufio"
	"io"
)

// ansiState is the byte-oriented state machine driving Stripper. It tracks
// just enough of ECMA-48 to recognize where an escape sequence starts and
// ends; unlike a full VTE parser it never interprets sequence parameters,
// since stripping only needs to know "am I inside one" or not.
type ansiState int

const (
	stateGround       ansiState = iota
	stateEscape                 // saw ESC, waiting to learn the sequence kind
	stateCSI                    // inside CSI (ESC '[' ... final byte in 0x40-0x7E)
	stateOSC                    // inside OSC (ESC ']' ... terminated by BEL or ST)
	stateOSCEsc                 // inside OSC, saw ESC (maybe the ST of "ESC \")
	stateIntermediate           // saw ESC + intermediate byte(s) (0x20-0x2F), final byte pending
)

// Stripper is a streaming writer that removes ANSI/VT escape sequences
// (CSI, OSC, and other ESC-introduced sequences) from the bytes written to
// it, passing printable bytes and the C0 controls TAB and LF through to an
// underlying buffered writer.
type Stripper struct {
	w   *bufio.Writer
	st  ansiState
	err error
}

// NewStripper wraps w with ANSI stripping.
func NewStripper(w io.Writer) *Stripper {
	return &Stripper{w: bufio.NewWriterSize(w, 4096), st: stateGround}
}

// Write implements io.Writer. It never returns a short count on success;
// an error from the underlying writer observed during this call, or
// carried over from a previous call, is surfaced here.
func (s *Stripper) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for _, b := range p {
		s.step(b)
		if s.err != nil {
			return len(p), s.err
		}
	}
	return len(p), nil
}

func (s *Stripper) step(b byte) {
	switch s.st {
	case stateGround:
		switch {
		case b == 0x1b:
			s.st = stateEscape
		case b == '\t' || b == '\n':
			s.emit(b)
		case b >= 0x20 && b < 0x7f:
			s.emit(b)
		case b >= 0x80:
			// UTF-8 continuation/lead bytes: pass through as printable.
			s.emit(b)
		default:
			// Other C0 controls are dropped, matching the original's
			// execute() callback only forwarding TAB/LF.
		}
	case stateEscape:
		switch {
		case b == '[':
			s.st = stateCSI
		case b == ']':
			s.st = stateOSC
		case b == 'P' || b == 'X' || b == '^' || b == '_':
			// DCS/SOS/PM/APC: treat like OSC, terminated by ST or BEL.
			s.st = stateOSC
		case b >= 0x20 && b <= 0x2f:
			// Intermediate byte (e.g. ESC '(' 'B'): a final byte follows.
			s.st = stateIntermediate
		default:
			// Final byte: a complete 2-byte escape (e.g. ESC '=', ESC 'c').
			s.st = stateGround
		}
	case stateCSI:
		if b >= 0x40 && b <= 0x7e {
			s.st = stateGround
		}
	case stateOSC:
		switch b {
		case 0x07: // BEL terminates OSC
			s.st = stateGround
		case 0x1b:
			s.st = stateOSCEsc
		}
	case stateOSCEsc:
		if b == '\\' {
			s.st = stateGround
		} else {
			s.st = stateOSC
		}
	case stateIntermediate:
		// Further intermediates extend the sequence; anything else is the
		// final byte.
		if b < 0x20 || b > 0x2f {
			s.st = stateGround
		}
	}
}

func (s *Stripper) emit(b byte) {
	if _, err := s.w.Write([]byte{b}); err != nil {
		s.err = err
	}
}

// Flush flushes any buffered output to the underlying writer.
func (s *Stripper) Flush() error {
	if s.err != nil {
		return s.err
	}
	return s.w.Flush()
}
