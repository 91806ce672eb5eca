package sandboxexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

func mustChange(t *testing.T, path string) types.FileChange {
	t.Helper()
	fc, err := types.NewFileChange(path, types.Create, "", "package x\n", nil)
	require.NoError(t, err)
	return fc
}

func TestPackageDirs_DedupesAndSkipsNonGo(t *testing.T) {
	p, err := types.NewPatch("p", 0, []types.FileChange{
		mustChange(t, "pkg/sub/a.go"),
		mustChange(t, "pkg/sub/b.go"),
		mustChange(t, "cmd/tool/main.go"),
		mustChange(t, "docs/readme.md"),
	})
	require.NoError(t, err)

	dirs := packageDirs(p)
	assert.ElementsMatch(t, []string{"./pkg/sub", "./cmd/tool"}, dirs)
}

func TestPackageDirs_RootLevelFile(t *testing.T) {
	p, err := types.NewPatch("p", 0, []types.FileChange{mustChange(t, "main.go")})
	require.NoError(t, err)
	assert.Equal(t, []string{"./"}, packageDirs(p))
}

func TestCountTestOutcomes(t *testing.T) {
	out := `=== RUN   TestA
--- PASS: TestA (0.00s)
=== RUN   TestB
--- FAIL: TestB (0.01s)
--- PASS: TestC (0.00s)
PASS
`
	passed, failed := countTestOutcomes(out)
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, failed)
}

func TestCountTestOutcomes_PlainOutputHasNoPerTestLines(t *testing.T) {
	passed, failed := countTestOutcomes("ok  \tcodenerd-core/internal/types\t0.2s\n")
	assert.Zero(t, passed)
	assert.Zero(t, failed)
}

func TestNonEmptyLines(t *testing.T) {
	lines := nonEmptyLines("a\n\n  \nb\n")
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestNew_DefaultTimeout(t *testing.T) {
	s := New(t.TempDir(), 0)
	assert.Positive(t, s.Timeout)
}
