package outfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirT mirrors testing.T.Chdir (added in Go 1.24) for older toolchains:
// it changes the working directory and restores it when the test completes.
func chdirT(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestResolvePathExplicitWins(t *testing.T) {
	assert.Equal(t, "/tmp/explicit.log", ResolvePath("/tmp/explicit.log", "/usr/bin/bash"))
}

func TestResolvePathDerivesFromArgv0(t *testing.T) {
	chdirT(t, t.TempDir())
	got := ResolvePath("", "/usr/bin/bash")
	assert.Equal(t, "bash.log", got, "derived name is basename(argv0)+.log in the working directory")
}

func TestResolvePathAvoidsCollision(t *testing.T) {
	chdirT(t, t.TempDir())
	require.NoError(t, os.WriteFile("bash.log", nil, 0o644))
	require.NoError(t, os.WriteFile("bash-1.log", nil, 0o644))

	got := ResolvePath("", "/usr/bin/bash")
	assert.Equal(t, "bash-2.log", got)
}

func TestOpenModeCreateRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	_, err := Open(path, ModeCreate)
	assert.Error(t, err)
}

func TestOpenModeForceOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	f, err := Open(path, ModeForce)
	require.NoError(t, err)
	defer f.Close()

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, contents)
}

func TestOpenModeAppendCreatesIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	f, err := Open(path, ModeAppend)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteString("line\n")
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(contents))
}

func TestOpenModeNullErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(filepath.Join(dir, "out.log"), ModeNull)
	assert.Error(t, err)
}

func TestOpenRefusesSecondSessionOnSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	f, err := Open(path, ModeAppend)
	require.NoError(t, err)
	defer f.Close()

	_, err = Open(path, ModeAppend)
	assert.Error(t, err, "a second session on the same output path must be rejected by the advisory lock")
}
