package zim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func TestOpenFileCompoundSinglePart(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive.zim", []byte("hello world"))

	fc, err := openFileCompound(filepath.Join(dir, "archive.zim"))
	require.NoError(t, err)
	defer fc.close()

	assert.False(t, fc.IsMultiPart())
	assert.Equal(t, Size(11), fc.Size())

	buf := make([]byte, 5)
	require.NoError(t, fc.readAt(buf, 6))
	assert.Equal(t, "world", string(buf))
}

func TestOpenFileCompoundSplitParts(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "archive.zim")
	writeFile(t, dir, "archive.zimaa", []byte("0123456789"))
	writeFile(t, dir, "archive.zimab", []byte("abcdefghij"))

	fc, err := openFileCompound(base + "aa")
	require.NoError(t, err)
	defer fc.close()

	assert.True(t, fc.IsMultiPart())
	assert.Equal(t, Size(20), fc.Size())

	buf := make([]byte, 6)
	require.NoError(t, fc.readAt(buf, 8))
	assert.Equal(t, "89abcd", string(buf))
}

func TestOpenFileCompoundReadPastEndFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "archive.zim", []byte("short"))

	fc, err := openFileCompound(filepath.Join(dir, "archive.zim"))
	require.NoError(t, err)
	defer fc.close()

	buf := make([]byte, 10)
	err = fc.readAt(buf, 0)
	assert.Error(t, err)
}
