// Package fs provides the filesystem seam used by the transcript store.
//
// The main types are:
//   - [FS]: interface for the filesystem operations scribe needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Faulty]: testing implementation that fails or "crashes" at a chosen operation
//   - [AtomicWriter]: temp file + rename writes that never expose partial content
//   - [Locker]: advisory flock(2) locks on dedicated lock files
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths of the standard library io/fs package.
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. Implementations must behave like
// [os.File], including that [File.Fd] returns a descriptor usable with flock
// until the file is closed.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod].
	Chmod(mode os.FileMode) error
}

// FS defines the filesystem operations used for loading and flushing
// transcripts.
//
// All methods mirror their [os] package equivalents but can be intercepted
// for fault injection. Implementations must be safe for concurrent use.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// ReadDir lists a directory sorted by name. See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Rename moves a file. See [os.Rename]. Atomic on the same filesystem.
	Rename(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
