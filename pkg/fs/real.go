package fs

import (
	"os"
)

// Real implements [FS] on top of the [os] package.
//
// Every method is a passthrough with identical error semantics, except
// [Real.Exists] which is built on [os.Stat].
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

func (*Real) Open(path string) (File, error) {
	return os.Open(path)
}

func (*Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (*Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (*Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (*Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (*Real) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// Exists checks if a path exists using [os.Stat].
func (*Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

func (*Real) Remove(path string) error {
	return os.Remove(path)
}

func (*Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
