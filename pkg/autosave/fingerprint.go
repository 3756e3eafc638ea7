package autosave

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/calvinalkan/scribe/pkg/fs"
)

// Fingerprint identifies the on-disk content of a transcript at a point in
// time. Two fingerprints are equal only when both describe a missing file
// or both describe byte-identical content.
type Fingerprint struct {
	Exists bool
	Size   int64
	Sum    [blake2b.Size256]byte
}

// FingerprintOf returns the fingerprint of data as if it were stored on disk.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint{Exists: true, Size: int64(len(data)), Sum: blake2b.Sum256(data)}
}

// Equal reports whether f and other describe the same on-disk state.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if !f.Exists || !other.Exists {
		return f.Exists == other.Exists
	}

	return f.Size == other.Size && f.Sum == other.Sum
}

func (f Fingerprint) String() string {
	if !f.Exists {
		return "missing"
	}

	return fmt.Sprintf("%s/%d", hex.EncodeToString(f.Sum[:6]), f.Size)
}

// readFingerprint reads path and returns its content and fingerprint. A
// missing file is not an error.
func readFingerprint(fsys fs.FS, path string) ([]byte, Fingerprint, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Fingerprint{}, nil
		}

		return nil, Fingerprint{}, err
	}

	return data, FingerprintOf(data), nil
}
