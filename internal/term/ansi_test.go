//go:build linux

package term

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strip(t *testing.T, in string) string {
	t.Helper()
	var buf bytes.Buffer
	s := NewStripper(&buf)
	_, err := s.Write([]byte(in))
	require.NoError(t, err)
	require.NoError(t, s.Flush())
	return buf.String()
}

func TestStripperPassesPlainText(t *testing.T) {
	assert.Equal(t, "hello\n", strip(t, "hello\n"))
}

func TestStripperDropsCSI(t *testing.T) {
	assert.Equal(t, "RED\n", strip(t, "\x1b[31mRED\x1b[0m\n"))
}

func TestStripperDropsOSC(t *testing.T) {
	// OSC terminated by BEL.
	assert.Equal(t, "text", strip(t, "\x1b]0;title\x07text"))
}

func TestStripperDropsOSCTerminatedByST(t *testing.T) {
	// OSC terminated by ESC \ (string terminator).
	assert.Equal(t, "text", strip(t, "\x1b]0;title\x1b\\text"))
}

func TestStripperDropsSingleCharEscape(t *testing.T) {
	assert.Equal(t, "ab", strip(t, "a\x1b(Bb"))
}

func TestStripperDropsBareTwoByteEscape(t *testing.T) {
	// A final byte directly after ESC completes the sequence; the byte
	// after it is ordinary text and must survive.
	assert.Equal(t, "ab", strip(t, "a\x1b=b"))
	assert.Equal(t, "xy", strip(t, "x\x1bcy"))
	assert.Equal(t, "pq", strip(t, "p\x1b7q"))
}

func TestStripperDropsMultiIntermediateEscape(t *testing.T) {
	assert.Equal(t, "ab", strip(t, "a\x1b#(Bb"))
}

func TestStripperKeepsTabAndDropsOtherControls(t *testing.T) {
	assert.Equal(t, "a\tb", strip(t, "a\tb\x01\x02"))
}

func TestStripperPassesThroughHighBytes(t *testing.T) {
	assert.Equal(t, "café", strip(t, "café"))
}
