//go:build linux

package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"sessrec/internal/format"
	"sessrec/internal/outfile"
)

func requirePTYOrSkip(t *testing.T) {
	t.Helper()
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		t.Skipf("no PTY support in this environment: %s", err)
	}
	_ = unix.Close(fd)
}

// TestRunCapturesSimpleCommand is the S1 capture scenario: running a
// command that prints a line and exits cleanly must exit 0 and leave the
// printed line in the output file.
func TestRunCapturesSimpleCommand(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"echo", "hello"},
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		TSSource:      format.SourceWall,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})

	assert.Equal(t, 0, code)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello")
}

// TestRunStripsANSIFromLogByDefault is the escape-stripping scenario: color
// sequences reach the terminal stream but not the log.
func TestRunStripsANSIFromLogByDefault(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"sh", "-c", `printf '\033[31mRED\033[0m\n'`},
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		TSSource:      format.SourceWall,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})
	require.Equal(t, 0, code)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "RED\n")
	assert.NotContains(t, string(contents), "\x1b", "escape sequences must be stripped from the log")
}

func TestRunRawKeepsANSIInLog(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"sh", "-c", `printf '\033[31mRED\033[0m\n'`},
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		TSSource:      format.SourceWall,
		Raw:           true,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})
	require.Equal(t, 0, code)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "\x1b[31mRED\x1b[0m")
}

func TestRunHeaderPrecedesOutput(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"echo", "body"},
		Header:        true,
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		TSSource:      format.SourceWall,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})
	require.Equal(t, 0, code)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	s := string(contents)
	assert.True(t, strings.HasPrefix(s, "# HOST=["), "header must be the first line")
	assert.Equal(t, 1, strings.Count(s, "# HOST=["), "header must appear exactly once")
	assert.Contains(t, s, "body")
	assert.Less(t, strings.Index(s, "# HOST=["), strings.Index(s, "body"))
}

func TestRunTimestampsEveryLine(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"sh", "-c", "echo one; echo two"},
		Timestamp:     true,
		TSFormat:      "[%T] ",
		TSSource:      format.SourceElapsed,
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})
	require.Equal(t, 0, code)

	contents, err := os.ReadFile(outPath)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimRight(string(contents), "\n"), "\n") {
		assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\] `, line)
	}
}

func TestRunReportsExecFailure(t *testing.T) {
	requirePTYOrSkip(t)

	code := Run(Options{
		Argv:          []string{"/nonexistent/definitely-not-a-command"},
		Null:          true,
		TSSource:      format.SourceWall,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})
	assert.Equal(t, ExitCommandFailed, code)
}

func TestRunReportsNonZeroExitCode(t *testing.T) {
	requirePTYOrSkip(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.log")

	code := Run(Options{
		Argv:          []string{"sh", "-c", "exit 7"},
		OutputPath:    outPath,
		OutputMode:    outfile.ModeCreate,
		TSSource:      format.SourceWall,
		QuitTimeout:   50 * time.Millisecond,
		QueueCapacity: 16,
		Silent:        true,
	})

	assert.Equal(t, 7, code)
}
