package tofs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return dir
}

func TestTransaction_WriteReadRoundTrip(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	require.NoError(t, txn.Write("a.txt", "hello"))
	content, err := txn.Read("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
}

func TestTransaction_DeleteThenExistsFalse(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	require.NoError(t, txn.Write("a.txt", "hello"))
	require.NoError(t, txn.Delete("a.txt"))
	assert.False(t, txn.Exists("a.txt"))
}

func TestTransaction_TombstoneThenResurrect(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	require.NoError(t, txn.Write("x", "1"))
	require.NoError(t, txn.Delete("x"))
	require.NoError(t, txn.Write("x", "2"))

	content, err := txn.Read("x")
	require.NoError(t, err)
	assert.Equal(t, "2", content)

	assert.Equal(t, []string{"x"}, txn.GetModifiedFiles())
	assert.Empty(t, txn.GetDeletedFiles())
}

func TestTransaction_EmptyFileModification(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	require.NoError(t, txn.Write("a.txt", ""))
	require.NoError(t, txn.Write("a.txt", "hello\n"))

	changes, err := txn.GetDiff()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	fc := changes[0]
	require.Len(t, fc.Hunks, 1)
	assert.Equal(t, 1, fc.Hunks[0].StartLine)
	assert.Equal(t, []string{"hello"}, fc.Hunks[0].NewLines)
}

func TestTransaction_DriftCausesAbort(t *testing.T) {
	root := newTempWorkspace(t)
	path := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(path, []byte("print(1)\n"), 0o644))

	txn := Begin(root)
	require.NoError(t, txn.Snapshot("main.py"))

	// Externally rewrite the file during the transaction.
	require.NoError(t, os.WriteFile(path, []byte("print(2)\n"), 0o644))

	err := txn.CheckDrift("main.py")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindExternalDrift))
}

func TestTransaction_NoDriftWhenUnchanged(t *testing.T) {
	root := newTempWorkspace(t)
	path := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(path, []byte("print(1)\n"), 0o644))

	txn := Begin(root)
	require.NoError(t, txn.Snapshot("main.py"))
	assert.NoError(t, txn.CheckDrift("main.py"))
}

func TestTransaction_GetOrParseIR_Idempotent(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	src := "package main\nfunc Foo() { Bar() }\nfunc Bar() {}\n"
	ir1, err := txn.GetOrParseIR(context.Background(), "a.go", src)
	require.NoError(t, err)
	ir2, err := txn.GetOrParseIR(context.Background(), "a.go", src)
	require.NoError(t, err)

	assert.Equal(t, ir1, ir2)
	assert.Equal(t, VariantParsed, ir1.Variant)
}

func TestTransaction_GeneratedFilePlaceholder(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	ir, err := txn.GetOrParseIR(context.Background(), "api.pb.go", "// Code generated by protoc-gen-go. DO NOT EDIT.\npackage api\n")
	require.NoError(t, err)
	assert.Equal(t, VariantGenerated, ir.Variant)
}

func TestTransaction_OversizedBlobPlaceholder(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)
	txn.parse.MaxFileSize = 8

	ir, err := txn.GetOrParseIR(context.Background(), "big.go", "0123456789")
	require.NoError(t, err)
	assert.Equal(t, VariantOpaqueBlob, ir.Variant)
}

func TestTransaction_LFSPointerPlaceholder(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	content := "version https://git-lfs.github.com/spec/v1\noid sha256:abc\nsize 123\n"
	ir, err := txn.GetOrParseIR(context.Background(), "model.bin", content)
	require.NoError(t, err)
	assert.Equal(t, VariantLfsPointer, ir.Variant)
}

func TestTransaction_SymbolTableDefensiveCopy(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)

	_, err := txn.GetOrParseIR(context.Background(), "a.go", "package main\nfunc Foo() {}\n")
	require.NoError(t, err)

	table := txn.SymbolTable()
	table["Foo"] = "mutated.go"

	table2 := txn.SymbolTable()
	assert.Equal(t, "a.go", table2["Foo"])
}

func TestTransaction_Dispose_MakesStateUnreachable(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)
	require.NoError(t, txn.Write("a.txt", "x"))
	_, err := txn.GetOrParseIR(context.Background(), "a.go", "package main\n")
	require.NoError(t, err)

	txn.Dispose()

	assert.Nil(t, txn.irCache)
	assert.Nil(t, txn.snapshots)

	_, err = txn.Read("a.txt")
	assert.Error(t, err)
}

func TestTransaction_CommitWritesOverlayAndRemovesTombstones(t *testing.T) {
	root := newTempWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("stale"), 0o644))

	txn := Begin(root)
	require.NoError(t, txn.Write("new.txt", "fresh"))
	require.NoError(t, txn.Delete("old.txt"))

	require.NoError(t, txn.Commit())

	data, err := os.ReadFile(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	_, err = os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestTransaction_CommitDisposesTransaction(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)
	require.NoError(t, txn.Write("a.txt", "x"))
	require.NoError(t, txn.Commit())

	assert.Nil(t, txn.irCache)
	_, err := txn.Read("a.txt")
	assert.Error(t, err)
}

func TestTransaction_RollbackLeavesDiskUntouched(t *testing.T) {
	root := newTempWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.txt"), []byte("original"), 0o644))

	txn := Begin(root)
	require.NoError(t, txn.Write("keep.txt", "overwritten"))
	require.NoError(t, txn.Write("new.txt", "never written"))
	txn.Rollback()

	data, err := os.ReadFile(filepath.Join(root, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = txn.Read("keep.txt")
	assert.Error(t, err)
}

func TestTransaction_CommitAfterDisposeErrors(t *testing.T) {
	root := newTempWorkspace(t)
	txn := Begin(root)
	txn.Dispose()
	assert.Error(t, txn.Commit())
}

func TestTransaction_PrepareForExternalTool(t *testing.T) {
	root := newTempWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("hi"), 0o644))

	txn := Begin(root)
	require.NoError(t, txn.Write("pkg/b.go", "package pkg\nfunc B() {}\n"))

	mat, err := txn.PrepareForExternalTool()
	require.NoError(t, err)
	defer mat.Cleanup()

	data, err := os.ReadFile(filepath.Join(mat.Dir, "pkg", "b.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "func B()")

	data, err = os.ReadFile(filepath.Join(mat.Dir, "pkg", "a.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "package pkg")
}
