package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"pkg/user/service.go":      "package user\n\nfunc AddUser() {\n\tvalidateUser()\n}\n\nfunc validateUser() {}\n",
		"pkg/user/service_test.go": "package user\n\nfunc TestAddUser(t *testing.T) {}\n",
		"vendor/dep/dep.go":        "package dep\n\nfunc Vendored() {}\n",
		"README.md":                "not go\n",
	}
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestBuildClient_IndexesOnlyProductionGoFiles(t *testing.T) {
	root := seedWorkspace(t)

	client, paths, err := BuildClient(context.Background(), root, nil)
	require.NoError(t, err)
	require.NotNil(t, client)

	assert.Contains(t, paths, "pkg/user/service.go")
	assert.NotContains(t, paths, "pkg/user/service_test.go", "test files are skipped")
	assert.NotContains(t, paths, "vendor/dep/dep.go", "vendored code is skipped")
	assert.NotContains(t, paths, "README.md")
}

func TestBuildClient_ScopeQueryFindsIndexedFile(t *testing.T) {
	root := seedWorkspace(t)

	client, _, err := BuildClient(context.Background(), root, nil)
	require.NoError(t, err)

	paths, err := client.QueryScope(context.Background(), "AddUser validation", 5)
	require.NoError(t, err)
	assert.Contains(t, paths, "pkg/user/service.go")
}

func TestBuildClient_EmptyWorkspace(t *testing.T) {
	client, paths, err := BuildClient(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Empty(t, paths)
}

func TestLoadChunks_MirrorsBuildClientWalk(t *testing.T) {
	root := seedWorkspace(t)

	chunks, err := LoadChunks(root)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "pkg/user/service.go", chunks[0].FilePath)
	assert.Contains(t, chunks[0].Content, "func AddUser()")
}
