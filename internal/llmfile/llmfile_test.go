package llmfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd-core/internal/types"
)

const sampleScript = `patches:
  - id: fix-1
    files:
      - path: pkg/a.go
        kind: modify
        old_content: "old\n"
        new_content: "new\n"
        hunks:
          - start_line: 1
            end_line: 1
            original_lines: ["old"]
            new_lines: ["new"]
  - id: fix-2
    files:
      - path: pkg/b.go
        kind: create
        new_content: "package pkg\n"
`

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesScript(t *testing.T) {
	q, err := Load(writeScript(t, sampleScript))
	require.NoError(t, err)
	require.NotNil(t, q)
}

func TestLoad_EmptyScriptErrors(t *testing.T) {
	_, err := Load(writeScript(t, "patches: []\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGeneratePatch_ReplaysInOrder(t *testing.T) {
	q, err := Load(writeScript(t, sampleScript))
	require.NoError(t, err)

	p1, err := q.GeneratePatch(context.Background(), "task", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "fix-1", p1.ID)
	assert.Equal(t, 0, p1.Iteration)
	require.Len(t, p1.Files, 1)
	assert.Equal(t, types.Modify, p1.Files[0].Kind)

	p2, err := q.GeneratePatch(context.Background(), "task", nil, nil, "feedback")
	require.NoError(t, err)
	assert.Equal(t, "fix-2", p2.ID)
	assert.Equal(t, types.Create, p2.Files[0].Kind)
}

func TestGeneratePatch_ExhaustedQueueRepeatsLastPatch(t *testing.T) {
	q, err := Load(writeScript(t, sampleScript))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := q.GeneratePatch(context.Background(), "task", nil, nil, "")
		require.NoError(t, err)
	}
	p, err := q.GeneratePatch(context.Background(), "task", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "fix-2", p.ID, "a drained queue keeps proposing its last patch")
}

func TestGeneratePatch_InvalidKindErrors(t *testing.T) {
	script := `patches:
  - id: bad
    files:
      - path: a.go
        kind: rename
        new_content: "x\n"
`
	q, err := Load(writeScript(t, script))
	require.NoError(t, err)

	_, err = q.GeneratePatch(context.Background(), "task", nil, nil, "")
	assert.Error(t, err)
}
