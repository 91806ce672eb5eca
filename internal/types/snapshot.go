package types

import (
	"fmt"
	"regexp"
)

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// FileSnapshot records a file's on-disk identity at a point in time, used
// to detect external drift during a transaction.
type FileSnapshot struct {
	Path  string
	Mtime int64
	Size  int64
	SHA256 string
}

// NewFileSnapshot validates and constructs a FileSnapshot. SHA256 must be
// exactly 64 lowercase hex characters (canonical form).
func NewFileSnapshot(path string, mtime, size int64, sha256 string) (FileSnapshot, error) {
	if err := ValidatePath(path); err != nil {
		return FileSnapshot{}, err
	}
	if mtime <= 0 {
		return FileSnapshot{}, fmt.Errorf("file_snapshot: mtime must be > 0, got %d", mtime)
	}
	if size < 0 {
		return FileSnapshot{}, fmt.Errorf("file_snapshot: size must be >= 0, got %d", size)
	}
	if !sha256Hex.MatchString(sha256) {
		return FileSnapshot{}, fmt.Errorf("file_snapshot: sha256 must be 64 lowercase hex chars, got %q", sha256)
	}
	return FileSnapshot{Path: path, Mtime: mtime, Size: size, SHA256: sha256}, nil
}
