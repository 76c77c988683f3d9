// Package format renders the header line and per-line timestamp prefixes
// the session supervisor writes into the output file and onto stdout. It
// owns the header-once and timestamp-base bookkeeping; the pattern
// language is strftime's %-directives via github.com/ncruces/go-strftime,
// so --ts-fmt takes the patterns terminal users already know rather than
// Go's reference-time layout.
package format

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// TimeSource selects how a timestamp's value is computed.
type TimeSource int

const (
	// SourceWall formats the current wall-clock time.
	SourceWall TimeSource = iota
	// SourceElapsed formats seconds since the first emitted timestamp; the
	// base is fixed on first use and never moves again.
	SourceElapsed
	// SourceDelta formats seconds since the previously emitted timestamp;
	// the base advances on every emission.
	SourceDelta
)

// ParseTimeSource maps the --ts-src flag value to a TimeSource.
func ParseTimeSource(s string) (TimeSource, error) {
	switch s {
	case "wall":
		return SourceWall, nil
	case "elapsed":
		return SourceElapsed, nil
	case "delta":
		return SourceDelta, nil
	default:
		return 0, fmt.Errorf("unknown --ts-src %q (want wall, elapsed, or delta)", s)
	}
}

// Formatter emits the at-most-once header line and, when enabled,
// per-line timestamp prefixes. It is not safe for concurrent use — only
// the pty-reader loop (the main thread) ever touches it, as the sole
// writer of the output stream.
type Formatter struct {
	headerPending bool
	tsEnabled     bool
	tsPattern     string
	tsSource      TimeSource
	command       string
	base          time.Time
	haveBase      bool
}

// New constructs a Formatter. enableHeader/enableTS mirror the -H/-t CLI
// flags; pattern is the --ts-fmt strftime-like layout, used as given
// (its %-directives are rendered by appendStamp); command is the argv of
// the child command, joined with spaces for the header's CMD=[...] field.
func New(enableHeader, enableTS bool, pattern string, source TimeSource, command []string) *Formatter {
	return &Formatter{
		headerPending: enableHeader,
		tsEnabled:     enableTS,
		tsPattern:     pattern,
		tsSource:      source,
		command:       strings.Join(command, " "),
	}
}

// NeedHeader reports whether the header line is still pending emission.
func (f *Formatter) NeedHeader() bool { return f.headerPending }

// FormatHeader appends the one-time header line to dst and latches
// headerPending false, so a later call is a no-op from the caller's
// perspective (NeedHeader will report false).
//
// Layout:
// "# HOST=[…] OS=[…_machine] TIME=[YYYY-MM-DD HH:MM:SS ±TZ] CMD=[<argv>]\n"
func (f *Formatter) FormatHeader(dst []byte, hostname string) []byte {
	now := time.Now()
	dst = append(dst, fmt.Sprintf(
		"# HOST=[%s] OS=[%s_%s] TIME=[%s] CMD=[%s]\n",
		hostname,
		strings.ToLower(runtime.GOOS),
		runtime.GOARCH,
		strftime.Format("%F %T %z", now),
		f.command,
	)...)
	f.headerPending = false
	return dst
}

// NeedTimestamp reports whether per-line timestamps are enabled.
func (f *Formatter) NeedTimestamp() bool { return f.tsEnabled }

// FormatTimestamp appends the next timestamp prefix to dst, per the
// configured TimeSource. Elapsed mode fixes its base on first call; delta
// mode advances its base on every call; wall mode has no base at all.
func (f *Formatter) FormatTimestamp(dst []byte) []byte {
	switch f.tsSource {
	case SourceWall:
		return appendStamp(dst, f.tsPattern, time.Now())

	case SourceElapsed, SourceDelta:
		now := time.Now()
		if !f.haveBase {
			f.base = now
			f.haveBase = true
		}
		delta := now.Sub(f.base)
		// Render the elapsed/delta duration through the same %-directive
		// pattern by formatting it as a clock time since the Unix epoch.
		out := appendStamp(dst, f.tsPattern, time.Unix(0, delta.Nanoseconds()).UTC())
		if f.tsSource == SourceDelta {
			f.base = now
		}
		return out

	default:
		return dst
	}
}

// appendStamp renders pattern for t. strftime has no fractional-seconds
// conversion, so the "%.Nf" directive (N digits of the second's fraction,
// preceded by a dot — the default pattern's "%.3f" gives milliseconds) is
// expanded here and everything else is delegated to strftime.
func appendStamp(dst []byte, pattern string, t time.Time) []byte {
	for {
		i := fracIndex(pattern)
		if i < 0 {
			return strftime.AppendFormat(dst, pattern, t)
		}
		dst = strftime.AppendFormat(dst, pattern[:i], t)
		digits := int(pattern[i+2] - '0')
		scale := 1
		for k := 0; k < 9-digits; k++ {
			scale *= 10
		}
		dst = fmt.Appendf(dst, ".%0*d", digits, t.Nanosecond()/scale)
		pattern = pattern[i+4:]
	}
}

// fracIndex locates the first unescaped "%.Nf" directive in pattern, or -1.
func fracIndex(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '%' {
			continue
		}
		if i+1 < len(pattern) && pattern[i+1] == '%' {
			i++ // literal %%, not a directive
			continue
		}
		if i+3 < len(pattern) && pattern[i+1] == '.' &&
			pattern[i+2] >= '1' && pattern[i+2] <= '9' && pattern[i+3] == 'f' {
			return i
		}
	}
	return -1
}
