// Package outfile resolves the session's output-file path — the -o/-f/-a/
// -N rules, including the basename(argv[0])+".log" default and its
// collision-avoiding "-N" suffix — and opens it with an advisory lock held
// for the session's lifetime, so two sessions racing on the same
// auto-derived path don't interleave writes.
package outfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Mode selects how the output path is opened, mirroring the mutually
// exclusive -f/-a/-N flags.
type Mode int

const (
	// ModeCreate creates a new file and refuses to open one that already
	// exists (O_EXCL); ModeForce is the mode that overwrites.
	ModeCreate Mode = iota
	// ModeForce always truncates-or-creates, overwriting any existing file.
	ModeForce
	// ModeAppend opens for append, creating the file if absent.
	ModeAppend
	// ModeNull means no output file is opened at all (-N/--null).
	ModeNull
)

// ResolvePath implements the -o/--output default: if path is
// empty, derive basename(argv0) + ".log", and if that already exists,
// append "-N" before the suffix (N = 1, 2, 3, ...) until a free name is
// found. An explicit path is returned unchanged — collision avoidance only
// applies to the derived default, since an explicit -o is interpreted as
// already fully intentional (force/append govern how it's opened).
func ResolvePath(explicit string, argv0 string) string {
	if explicit != "" {
		return explicit
	}

	base := filepath.Base(argv0)
	name := base + ".log"

	if _, err := os.Stat(name); err != nil {
		return name
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d.log", base, n)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// File is an opened, advisory-locked output file.
type File struct {
	*os.File
	lock *flock.Flock
}

// Open opens path according to mode and acquires an exclusive advisory
// lock on it for the lifetime of the session.
func Open(path string, mode Mode) (*File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	switch mode {
	case ModeCreate:
		flags |= os.O_EXCL
	case ModeForce:
		flags |= os.O_TRUNC
	case ModeAppend:
		flags |= os.O_APPEND
	case ModeNull:
		return nil, fmt.Errorf("outfile: Open called with ModeNull")
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file %q: %w", path, err)
	}

	lk := flock.New(path + ".lock")
	locked, err := lk.TryLock()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lock output file %q: %w", path, err)
	}
	if !locked {
		f.Close()
		return nil, fmt.Errorf("output file %q is locked by another sessrec session", path)
	}

	return &File{File: f, lock: lk}, nil
}

// Close closes the file and releases the advisory lock.
func (f *File) Close() error {
	ferr := f.File.Close()
	_ = f.lock.Unlock()
	return ferr
}
