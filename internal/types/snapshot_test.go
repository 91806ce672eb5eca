package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileSnapshot_Valid(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	snap, err := NewFileSnapshot("src/main.go", 1700000000, 120, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, snap.SHA256)
}

func TestNewFileSnapshot_RejectsUppercaseHash(t *testing.T) {
	hash := strings.Repeat("AB", 32)
	_, err := NewFileSnapshot("src/main.go", 1, 0, hash)
	assert.Error(t, err, "canonical form is lowercase hex only")
}

func TestNewFileSnapshot_RejectsWrongLength(t *testing.T) {
	_, err := NewFileSnapshot("src/main.go", 1, 0, "abc123")
	assert.Error(t, err)
}

func TestNewFileSnapshot_RejectsNonPositiveMtime(t *testing.T) {
	hash := strings.Repeat("00", 32)
	_, err := NewFileSnapshot("src/main.go", 0, 0, hash)
	assert.Error(t, err)
}

func TestNewFileSnapshot_RejectsNegativeSize(t *testing.T) {
	hash := strings.Repeat("00", 32)
	_, err := NewFileSnapshot("src/main.go", 1, -1, hash)
	assert.Error(t, err)
}

func TestNewFileSnapshot_RejectsInvalidPath(t *testing.T) {
	hash := strings.Repeat("00", 32)
	_, err := NewFileSnapshot("../escape.go", 1, 0, hash)
	assert.Error(t, err)
}
