package fileutil

import (
	"bytes"
	"strings"
	"testing"

	"amo-signer/internal/testutil"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileSafe_Success(t *testing.T) {
	fs := testutil.MemFS(t, map[string]string{"/work/test.txt": "test content"})

	data, err := ReadFileSafe(fs, "/work/test.txt", 1024)
	require.NoError(t, err)
	assert.Equal(t, "test content", string(data))
}

func TestReadFileSafe_FileNotFound(t *testing.T) {
	_, err := ReadFileSafe(afero.NewMemMapFs(), "/nonexistent/file.txt", 1024)
	assert.Error(t, err)
}

func TestReadFileSafe_ExceedsMaxSize(t *testing.T) {
	fs := testutil.MemFS(t, map[string]string{"/large.txt": strings.Repeat("a", 2048)})

	// Try to read with 1KB limit
	_, err := ReadFileSafe(fs, "/large.txt", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
	assert.Contains(t, err.Error(), "1024 bytes")
	assert.Contains(t, err.Error(), "2048 bytes")
}

func TestReadFileSafe_ExactlyMaxSize(t *testing.T) {
	fs := testutil.MemFS(t, map[string]string{"/exact.txt": strings.Repeat("a", 1024)})

	// Should succeed when size equals limit
	data, err := ReadFileSafe(fs, "/exact.txt", 1024)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
}

func TestReadAllSafe_Success(t *testing.T) {
	data, err := ReadAllSafe(bytes.NewReader([]byte("test content")), 1024)
	require.NoError(t, err)
	assert.Equal(t, "test content", string(data))
}

func TestReadAllSafe_ExceedsMaxSize(t *testing.T) {
	content := strings.Repeat("a", 2048)

	_, err := ReadAllSafe(bytes.NewReader([]byte(content)), 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum size")
	assert.Contains(t, err.Error(), "1024 bytes")
}

func TestReadAllSafe_ExactlyMaxSize(t *testing.T) {
	content := strings.Repeat("a", 1024)

	data, err := ReadAllSafe(bytes.NewReader([]byte(content)), 1024)
	require.NoError(t, err)
	assert.Len(t, data, 1024)
}

func TestReadAllSafe_Empty(t *testing.T) {
	data, err := ReadAllSafe(bytes.NewReader(nil), 1024)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestValidateUpload(t *testing.T) {
	fs := testutil.MemFS(t, map[string]string{
		"/work/addon.xpi": "PK-zip-bytes",
		"/work/empty.xpi": "",
	})
	require.NoError(t, fs.MkdirAll("/work/dir.xpi", 0o755))

	tests := []struct {
		name          string
		path          string
		expectedInErr string
	}{
		{name: "valid package", path: "/work/addon.xpi"},
		{name: "empty path", path: "", expectedInErr: "package path is required"},
		{name: "missing file", path: "/not/a/real/path.xpi", expectedInErr: "not found or not readable"},
		{name: "directory", path: "/work/dir.xpi", expectedInErr: "is a directory"},
		{name: "empty file", path: "/work/empty.xpi", expectedInErr: "is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(fs, tt.path)
			if tt.expectedInErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedInErr)
		})
	}
}

func TestCreateFile_Truncates(t *testing.T) {
	fs := testutil.MemFS(t, map[string]string{"/out/f.xpi": "old content that is long"})

	f, err := CreateFile(fs, "/out/f.xpi")
	require.NoError(t, err)
	_, err = f.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "new", testutil.ReadFile(t, fs, "/out/f.xpi"))
}
