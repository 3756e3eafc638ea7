package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrCrashed is returned by every operation on a [Faulty] after a simulated
// crash. Reopen the underlying directory with a fresh FS to inspect what
// "survived".
var ErrCrashed = errors.New("simulated crash")

// FaultOp identifies an operation that can be failed by [Faulty].
type FaultOp string

// Valid FaultOp values.
const (
	FaultOpOpen      FaultOp = "open"
	FaultOpOpenFile  FaultOp = "openfile"
	FaultOpReadFile  FaultOp = "readfile"
	FaultOpMkdirAll  FaultOp = "mkdirall"
	FaultOpStat      FaultOp = "stat"
	FaultOpReadDir   FaultOp = "readdir"
	FaultOpExists    FaultOp = "exists"
	FaultOpRemove    FaultOp = "remove"
	FaultOpRename    FaultOp = "rename"
	FaultOpFileWrite FaultOp = "file.write"
	FaultOpFileSync  FaultOp = "file.sync"
	FaultOpFileStat  FaultOp = "file.stat"
	FaultOpFileChmod FaultOp = "file.chmod"
	FaultOpFileClose FaultOp = "file.close"
)

// FaultMode determines what happens when a fault triggers.
type FaultMode uint8

const (
	// FaultFail skips the operation and returns an [*InjectedError].
	FaultFail FaultMode = iota

	// FaultCrashBefore skips the operation and latches the FS into the
	// crashed state.
	FaultCrashBefore

	// FaultCrashAfter performs the operation, then latches the FS into the
	// crashed state and returns [ErrCrashed].
	FaultCrashAfter
)

// Fault selects the operation to break.
type Fault struct {
	// Op is the operation to match.
	Op FaultOp

	// Base restricts matching to paths whose base name equals Base.
	// For renames the destination is matched. Empty matches any path.
	Base string

	// After triggers on the Nth matching operation (1-indexed). 0 means 1.
	After int

	Mode FaultMode
}

// InjectedError marks an error as intentionally injected by [Faulty].
type InjectedError struct {
	Op   FaultOp
	Path string
}

func (e *InjectedError) Error() string {
	return fmt.Sprintf("injected %s fault: %s", e.Op, e.Path)
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
func IsInjected(err error) bool {
	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and breaks exactly one chosen operation.
//
// It is used to show that a crash between "temp file written" and "renamed"
// leaves the target intact, and that a crash right after the rename leaves
// the new content in place.
type Faulty struct {
	inner FS
	fault Fault

	mu      sync.Mutex
	seen    int
	fired   bool
	crashed bool
}

// NewFaulty returns a [Faulty] that delegates to inner until fault triggers.
func NewFaulty(inner FS, fault Fault) *Faulty {
	if inner == nil {
		panic("inner fs is nil")
	}

	if fault.After <= 0 {
		fault.After = 1
	}

	return &Faulty{inner: inner, fault: fault}
}

// Fired reports whether the fault has triggered.
func (f *Faulty) Fired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fired
}

// Crashed reports whether the FS is latched in the crashed state.
func (f *Faulty) Crashed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.crashed
}

// check runs op through the fault logic. It returns (run, err): run reports
// whether the real operation should execute, err is returned instead of (or,
// for FaultCrashAfter, after) the operation.
func (f *Faulty) check(op FaultOp, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.crashed {
		return false, ErrCrashed
	}

	if f.fired || op != f.fault.Op {
		return true, nil
	}

	if f.fault.Base != "" && filepath.Base(path) != f.fault.Base {
		return true, nil
	}

	f.seen++
	if f.seen < f.fault.After {
		return true, nil
	}

	f.fired = true

	switch f.fault.Mode {
	case FaultCrashBefore:
		f.crashed = true

		return false, ErrCrashed
	case FaultCrashAfter:
		return true, ErrCrashed
	default:
		return false, &InjectedError{Op: op, Path: path}
	}
}

// finish latches the crash for FaultCrashAfter once the real op has run.
func (f *Faulty) finish(err error) error {
	if errors.Is(err, ErrCrashed) {
		f.mu.Lock()
		f.crashed = true
		f.mu.Unlock()
	}

	return err
}

func (f *Faulty) Open(path string) (File, error) {
	run, err := f.check(FaultOpOpen, path)
	if !run {
		return nil, err
	}

	file, openErr := f.inner.Open(path)
	if openErr != nil {
		return nil, openErr
	}

	if err != nil {
		_ = file.Close()

		return nil, f.finish(err)
	}

	return &faultyFile{File: file, fs: f, path: path}, nil
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	run, err := f.check(FaultOpOpenFile, path)
	if !run {
		return nil, err
	}

	file, openErr := f.inner.OpenFile(path, flag, perm)
	if openErr != nil {
		return nil, openErr
	}

	if err != nil {
		_ = file.Close()

		return nil, f.finish(err)
	}

	return &faultyFile{File: file, fs: f, path: path}, nil
}

func (f *Faulty) ReadFile(path string) ([]byte, error) {
	run, err := f.check(FaultOpReadFile, path)
	if !run {
		return nil, err
	}

	data, readErr := f.inner.ReadFile(path)
	if err != nil {
		return nil, f.finish(err)
	}

	return data, readErr
}

func (f *Faulty) MkdirAll(path string, perm os.FileMode) error {
	run, err := f.check(FaultOpMkdirAll, path)
	if !run {
		return err
	}

	return f.finish(errors.Join(f.inner.MkdirAll(path, perm), err))
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	run, err := f.check(FaultOpStat, path)
	if !run {
		return nil, err
	}

	info, statErr := f.inner.Stat(path)
	if err != nil {
		return nil, f.finish(err)
	}

	return info, statErr
}

func (f *Faulty) ReadDir(path string) ([]os.DirEntry, error) {
	run, err := f.check(FaultOpReadDir, path)
	if !run {
		return nil, err
	}

	entries, readErr := f.inner.ReadDir(path)
	if err != nil {
		return nil, f.finish(err)
	}

	return entries, readErr
}

func (f *Faulty) Exists(path string) (bool, error) {
	run, err := f.check(FaultOpExists, path)
	if !run {
		return false, err
	}

	ok, existsErr := f.inner.Exists(path)
	if err != nil {
		return false, f.finish(err)
	}

	return ok, existsErr
}

func (f *Faulty) Remove(path string) error {
	run, err := f.check(FaultOpRemove, path)
	if !run {
		return err
	}

	return f.finish(errors.Join(f.inner.Remove(path), err))
}

func (f *Faulty) Rename(oldpath, newpath string) error {
	run, err := f.check(FaultOpRename, newpath)
	if !run {
		return err
	}

	return f.finish(errors.Join(f.inner.Rename(oldpath, newpath), err))
}

type faultyFile struct {
	File

	fs   *Faulty
	path string
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	run, err := ff.fs.check(FaultOpFileWrite, ff.path)
	if !run {
		return 0, err
	}

	n, writeErr := ff.File.Write(p)
	if err != nil {
		return n, ff.fs.finish(err)
	}

	return n, writeErr
}

func (ff *faultyFile) Sync() error {
	run, err := ff.fs.check(FaultOpFileSync, ff.path)
	if !run {
		return err
	}

	return ff.fs.finish(errors.Join(ff.File.Sync(), err))
}

func (ff *faultyFile) Stat() (os.FileInfo, error) {
	run, err := ff.fs.check(FaultOpFileStat, ff.path)
	if !run {
		return nil, err
	}

	info, statErr := ff.File.Stat()
	if err != nil {
		return nil, ff.fs.finish(err)
	}

	return info, statErr
}

func (ff *faultyFile) Chmod(mode os.FileMode) error {
	run, err := ff.fs.check(FaultOpFileChmod, ff.path)
	if !run {
		return err
	}

	return ff.fs.finish(errors.Join(ff.File.Chmod(mode), err))
}

// Close always releases the real descriptor, even after a crash, so tests
// do not leak file handles.
func (ff *faultyFile) Close() error {
	_, err := ff.fs.check(FaultOpFileClose, ff.path)
	closeErr := ff.File.Close()

	if err != nil {
		return ff.fs.finish(err)
	}

	return closeErr
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
