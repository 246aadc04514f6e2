// Package fingerprint computes stable per-file fingerprints used to decide
// whether a watched file must be re-indexed. A fingerprint combines size,
// modification time, and a content hash so that any observable change to
// the file produces a different value.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	qerrors "github.com/quarrydocs/quarry/internal/errors"
)

// Fingerprint identifies one observed version of a file's content.
type Fingerprint struct {
	Size        int64
	ModTimeUnix int64 // nanoseconds
	ContentHash string
}

// String renders the composite form persisted in the manifest.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%d:%d:%s", f.Size, f.ModTimeUnix, f.ContentHash)
}

// Equal reports whether two fingerprints describe the same content version.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size &&
		f.ModTimeUnix == other.ModTimeUnix &&
		f.ContentHash == other.ContentHash
}

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool {
	return f.ContentHash == "" && f.Size == 0 && f.ModTimeUnix == 0
}

// Compute reads the file at path and returns its fingerprint.
// The content is streamed through the hash rather than loaded whole.
func Compute(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, qerrors.Wrap(qerrors.ErrCodeFileNotFound, err)
		}
		return Fingerprint{}, qerrors.Wrap(qerrors.ErrCodeFilePermission, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, qerrors.Wrap(qerrors.ErrCodeFilePermission, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return Fingerprint{}, qerrors.Wrap(qerrors.ErrCodeFilePermission, err)
	}

	return Fingerprint{
		Size:        info.Size(),
		ModTimeUnix: info.ModTime().UnixNano(),
		ContentHash: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// HashText returns the sha256 hex digest of a string. Used for
// content-addressed chunk IDs and the embedding cache key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
