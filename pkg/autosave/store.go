package autosave

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/scribe/pkg/fs"
	"github.com/calvinalkan/scribe/pkg/transcript"
)

var (
	// ErrExternalModification means the file changed on disk since it was
	// last read or written through this package. Nothing was written.
	ErrExternalModification = errors.New("external modification")

	// ErrIO wraps filesystem failures while reading or writing a transcript.
	// In-memory state is untouched, so the operation can be retried.
	ErrIO = errors.New("io error")
)

// ConflictError reports an on-disk fingerprint that differs from the one the
// caller expected.
type ConflictError struct {
	Path     string
	Expected Fingerprint
	Actual   Fingerprint
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %v (expected %s, found %s)", e.Path, ErrExternalModification, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrExternalModification
}

const dirPerm = 0o755

// Load reads and parses the transcript at path. A missing file yields an
// empty Document and a fingerprint with Exists set to false.
//
// Parse failures are returned as [*transcript.FormatError] wrapped with the
// path.
func Load(fsys fs.FS, path string) (*transcript.Document, Fingerprint, error) {
	data, fp, err := readFingerprint(fsys, path)
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	if !fp.Exists {
		return transcript.New(), fp, nil
	}

	doc, err := transcript.ParseBytes(data)
	if err != nil {
		return nil, Fingerprint{}, fmt.Errorf("%s: %w", path, err)
	}

	return doc, fp, nil
}

// Save writes doc to path if the file on disk still matches expected, and
// returns the fingerprint of the written content. Dirty flags are not
// touched.
//
// A mismatch returns a [*ConflictError]. Write failures wrap [ErrIO]; when
// only the directory sync after the rename failed, the error also matches
// [fs.ErrAtomicWriteDirSync] and the returned fingerprint describes the new
// content, which is in place.
func Save(fsys fs.FS, path string, doc *transcript.Document, expected Fingerprint) (Fingerprint, error) {
	return save(fsys, path, doc, expected, fs.NewAtomicWriter(fsys).DefaultOptions())
}

func save(fsys fs.FS, path string, doc *transcript.Document, expected Fingerprint, opts fs.AtomicWriteOptions) (Fingerprint, error) {
	_, actual, err := readFingerprint(fsys, path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: fingerprint %s: %w", ErrIO, path, err)
	}

	if !actual.Equal(expected) {
		return Fingerprint{}, &ConflictError{Path: path, Expected: expected, Actual: actual}
	}

	var buf bytes.Buffer

	err = transcript.Encode(&buf, doc)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("serialize %s: %w", path, err)
	}

	data := buf.Bytes()
	written := FingerprintOf(data)

	err = fsys.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: mkdir %s: %w", ErrIO, filepath.Dir(path), err)
	}

	err = fs.NewAtomicWriter(fsys).Write(path, bytes.NewReader(data), opts)
	if err != nil {
		if errors.Is(err, fs.ErrAtomicWriteDirSync) {
			return written, fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
		}

		return Fingerprint{}, fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}

	return written, nil
}
