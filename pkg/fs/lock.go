package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned by [Locker.TryLock] when another process holds
	// the lock.
	ErrWouldBlock = errors.New("lock would block")

	// errInodeMismatch signals that the lock file was replaced between open
	// and flock. Callers retry.
	errInodeMismatch = errors.New("inode mismatch")
)

// Locker provides advisory exclusive locks using flock(2).
//
// flock applies to an inode, not a pathname, so lock a dedicated lock file
// (for example "chapter1.txt.lock") that is never replaced while held. The
// transcript itself is replaced by every atomic flush and must not be used
// as the lock file.
//
// This implementation is Unix-only.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs, flock: unix.Flock}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying descriptor. Close is
// idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(lk.flock, fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock attempts to acquire an exclusive lock on path without blocking.
// The lock file and its parent directories are created when missing.
//
// Returns [ErrWouldBlock] if another holder has the lock.
func (l *Locker) TryLock(path string) (*Lock, error) {
	const maxReplaced = 16

	for range maxReplaced {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		_ = file.Close()

		if !errors.Is(err, errInodeMismatch) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: lock file keeps being replaced", ErrWouldBlock)
}

func (l *Locker) acquire(file File, path string) error {
	fd := int(file.Fd())

	err := flockRetryEINTR(l.flock, fd, unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}

		return fmt.Errorf("flock: %w", err)
	}

	openInfo, err := file.Stat()
	if err != nil {
		_ = flockRetryEINTR(l.flock, fd, unix.LOCK_UN)

		return fmt.Errorf("stat lock fd: %w", err)
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil || !os.SameFile(openInfo, pathInfo) {
		_ = flockRetryEINTR(l.flock, fd, unix.LOCK_UN)

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat lock path: %w", err)
		}

		return errInodeMismatch
	}

	return nil
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

func (l *Locker) openLockFile(path string) (File, error) {
	f, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}

	return l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// flockRetryEINTR wraps flock, retrying when a signal interrupts the call.
func flockRetryEINTR(flock func(fd int, how int) error, fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
