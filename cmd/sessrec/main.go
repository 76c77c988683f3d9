//go:build linux

// Command sessrec records a command's terminal session to a log file,
// the way script(1) does, while relaying terminal events (resize,
// stop/continue, interrupt, quit) faithfully between the controlling
// terminal, sessrec itself, and the child.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"sessrec/internal/format"
	"sessrec/internal/outfile"
	"sessrec/internal/supervisor"
)

var version = "dev"

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "sessrec: error: %s\n", err)
		os.Exit(supervisor.ExitUsage)
	}
	if opts == nil {
		// --man or --version handled and printed already.
		os.Exit(0)
	}

	os.Exit(supervisor.Run(*opts))
}

// parseFlags parses os.Args[1:] into supervisor.Options. A nil, nil
// return means a flag (--man, --version) was fully handled and the
// program should exit 0 without running a session.
func parseFlags(argv []string) (*supervisor.Options, error) {
	fs := flag.NewFlagSet("sessrec", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.SortFlags = false
	// Everything after the command name belongs to the command: "sessrec
	// ls -l" must not parse -l as a sessrec flag.
	fs.SetInterspersed(false)

	header := fs.BoolP("header", "H", false, "Emit a # HOST=[...] OS=[...] TIME=[...] CMD=[...] line before the first child output line")
	ts := fs.BoolP("ts", "t", false, "Prefix every child-output line with a formatted timestamp")
	tsFmt := fs.String("ts-fmt", "%T%.3f ", "strftime-like timestamp pattern")
	tsSrc := fs.String("ts-src", "wall", "Timestamp source: wall, elapsed, or delta")
	output := fs.StringP("output", "o", "", "Output file path (default: basename(argv[0]) + \".log\")")
	force := fs.BoolP("force", "f", false, "Overwrite an existing output file")
	appendFlag := fs.BoolP("append", "a", false, "Append to an existing output file")
	null := fs.BoolP("null", "N", false, "Do not open any output file")
	raw := fs.BoolP("raw", "R", false, "Do not strip ANSI escapes from the output file")
	silent := fs.BoolP("silent", "s", false, "Suppress writing to stdout")
	quitMS := fs.IntP("quit", "q", 10, "Post-EOF drain timeout in milliseconds")
	buffer := fs.IntP("buffer", "b", 10000, "Queue capacity in lines")
	debug := fs.BoolP("debug", "D", false, "Enable debug logging to stderr")
	man := fs.Bool("man", false, "Print a manual page and exit")
	showVersion := fs.BoolP("version", "v", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "sessrec - record a command's terminal session")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: sessrec [flags] <command> [args...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	if *man {
		printManual()
		return nil, nil
	}
	if *showVersion {
		fmt.Printf("sessrec %s\n", version)
		return nil, nil
	}

	command := fs.Args()
	if len(command) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("missing command")
	}
	if len(command[0]) > 0 && command[0][0] == '-' {
		return nil, fmt.Errorf("command name %q looks like a flag; use \"--\" to separate sessrec's flags from the command", command[0])
	}

	if *force && *appendFlag {
		return nil, fmt.Errorf("--force and --append are mutually exclusive")
	}
	if *null && (*output != "" || *force || *appendFlag) {
		return nil, fmt.Errorf("--null is mutually exclusive with -o/-f/-a")
	}

	tsSource, err := format.ParseTimeSource(*tsSrc)
	if err != nil {
		return nil, err
	}

	outMode := outfile.ModeCreate
	switch {
	case *null:
		outMode = outfile.ModeNull
	case *appendFlag:
		outMode = outfile.ModeAppend
	case *force:
		outMode = outfile.ModeForce
	}

	outPath := ""
	if !*null {
		outPath = outfile.ResolvePath(*output, command[0])
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	opts := supervisor.Options{
		Argv:          command,
		Header:        *header,
		Timestamp:     *ts,
		TSFormat:      *tsFmt,
		TSSource:      tsSource,
		OutputPath:    outPath,
		OutputMode:    outMode,
		Null:          *null,
		Raw:           *raw,
		Silent:        *silent,
		QuitTimeout:   time.Duration(*quitMS) * time.Millisecond,
		QueueCapacity: *buffer,
		Log:           log,
	}
	return &opts, nil
}

func printManual() {
	fmt.Printf(`SESSREC(1)

NAME
    sessrec - record a command's terminal session

SYNOPSIS
    sessrec [flags] <command> [args...]

DESCRIPTION
    sessrec launches <command> attached to a pseudo-terminal, mirrors its
    output to both the controlling terminal and a log file, forwards
    standard input to the command, and relays terminal events (window
    resize, stop/continue, interrupt, quit) between the controlling
    terminal, sessrec, and the command.

FLAGS
    -H, --header           Emit a header line before the first output line.
    -t, --ts                Prefix every output line with a timestamp.
        --ts-fmt FMT         strftime-like timestamp pattern (default %%T%%.3f ).
        --ts-src SRC         Timestamp source: wall, elapsed, or delta.
    -o, --output PATH       Output file path.
    -f, --force              Overwrite an existing output file.
    -a, --append             Append to an existing output file.
    -N, --null               Do not open any output file.
    -R, --raw                Do not strip ANSI escapes from the output file.
    -s, --silent              Suppress writing to stdout.
    -q, --quit MS            Post-EOF drain timeout in milliseconds (default 10).
    -b, --buffer LINES       Queue capacity in lines (default 10000).
    -D, --debug               Enable debug logging to stderr.
        --man                Print this manual and exit.
    -v, --version             Print version and exit.

EXIT STATUS
    0      the command exited successfully
    1      an internal sessrec failure
    2      usage error
    126    the command could not be executed
    128+n  the command was killed by signal n

VERSION
    sessrec %s
`, version)
}
