package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLogDir_CreatesAndProbes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	r := CheckLogDir(dir)
	assert.Equal(t, StatusPass, r.Status)
	assert.Equal(t, dir, r.Message)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the write probe must clean up after itself")
}

func TestCheckLogDir_WarnsWhenPathIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	r := CheckLogDir(filepath.Join(file, "sub"))
	assert.Equal(t, StatusWarn, r.Status)
	assert.False(t, r.Critical())
	assert.Contains(t, r.Details, "logging.file")
}

func TestCheckDiskSpace(t *testing.T) {
	r := CheckDiskSpace(t.TempDir())
	assert.Equal(t, "disk_space", r.Name)
	assert.Contains(t, r.Message, "free")

	r = CheckDiskSpace(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Equal(t, StatusFail, r.Status)
}

func TestCheckFileDescriptors(t *testing.T) {
	r := CheckFileDescriptors()
	assert.Equal(t, "file_descriptors", r.Name)
	assert.NotEmpty(t, r.Message)
	assert.NotEqual(t, StatusFail, r.Status, "fd limit is never a hard failure")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{512, "512 bytes"},
		{2 * 1024, "2.0 KB"},
		{100 * 1024 * 1024, "100.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.bytes))
	}
}
