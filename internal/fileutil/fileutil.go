package fileutil

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
)

const (
	// MaxConfigFileSize is the maximum size for configuration files (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024

	// MaxManifestSize is the maximum size of a manifest.json inside a package (1MB)
	MaxManifestSize = 1 * 1024 * 1024

	// MaxHTTPResponseSize is the maximum size for buffered HTTP response bodies (50MB)
	MaxHTTPResponseSize = 50 * 1024 * 1024
)

// ReadFileSafe reads a file with a size limit to prevent DoS attacks
func ReadFileSafe(fs afero.Fs, path string, maxSize int64) ([]byte, error) {
	// Get file info to check size before reading
	info, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.Size() > maxSize {
		return nil, fmt.Errorf("file %s exceeds maximum size of %d bytes (actual: %d bytes)", path, maxSize, info.Size())
	}

	return afero.ReadFile(fs, path)
}

// ReadAllSafe reads from an io.Reader with a size limit to prevent DoS attacks
func ReadAllSafe(r io.Reader, maxSize int64) ([]byte, error) {
	// Use io.LimitReader to prevent reading beyond maxSize
	limitedReader := io.LimitReader(r, maxSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("data exceeds maximum size of %d bytes", maxSize)
	}

	return data, nil
}

// ValidateUpload checks that path names a readable, non-empty regular file
func ValidateUpload(fs afero.Fs, path string) error {
	if path == "" {
		return fmt.Errorf("package path is required")
	}

	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("package file not found or not readable: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("package path %s is a directory, not a file", path)
	}

	if info.Size() == 0 {
		return fmt.Errorf("package file %s is empty", path)
	}

	return nil
}

// CreateFile opens path for writing, truncating any previous content
func CreateFile(fs afero.Fs, path string) (afero.File, error) {
	return fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}
