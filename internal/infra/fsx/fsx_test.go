package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteFileAtomicReplace(dir, "a.txt", []byte("hello")))
	require.NoError(t, WriteFileAtomicReplace(dir, "a.txt", []byte("world")))

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".a.txt.tmp-"), "临时文件未清理：%q", e.Name())
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error { return os.ErrPermission }
	defer func() { renameFunc = old }()

	require.Error(t, WriteFileAtomicReplace(dir, "a.txt", []byte("hello")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "失败时不应留下任何文件")
}

func TestReplaceFile_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, ReplaceFile(src, dst))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestReplaceFile_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dst.bin"), 0o755))

	err := ReplaceFile(src, filepath.Join(dir, "dst.bin"))
	require.Error(t, err)
	assert.True(t, IsPathTypeConflict(err), "期望 PathTypeConflictError，实际：%T %v", err, err)
}

func TestRemoveIfExists(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, RemoveIfExists(filepath.Join(dir, "missing")))

	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	assert.NoError(t, RemoveIfExists(p))
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}
