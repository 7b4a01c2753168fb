package testutil

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/afero"
)

// CaptureOutput captures stdout and stderr for the duration of the test.
// Returns functions to retrieve the captured output.
//
// Usage:
//
//	func TestMyFunction(t *testing.T) {
//	    getStdout, getStderr := testutil.CaptureOutput(t)
//
//	    myFunction()
//
//	    // Retrieving closes the pipe and restores the original stream
//	    assert.Contains(t, getStdout(), "expected output")
//	}
func CaptureOutput(t *testing.T) (getStdout, getStderr func() string) {
	t.Helper()

	getStdout = capture(t, &os.Stdout)
	getStderr = capture(t, &os.Stderr)
	return getStdout, getStderr
}

// capture redirects *target into a pipe until the returned func is called
// or the test ends, whichever comes first
func capture(t *testing.T, target **os.File) func() string {
	t.Helper()

	original := *target
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	*target = w

	done := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		_ = r.Close()
		done <- buf.String()
	}()

	closed := false
	restore := func() {
		if closed {
			return
		}
		closed = true
		_ = w.Close()
		*target = original
	}
	t.Cleanup(restore)

	var output string
	var collected bool
	return func() string {
		restore()
		if !collected {
			output = <-done
			collected = true
		}
		return output
	}
}

// MemFS returns an in-memory file system seeded with files (path -> content)
func MemFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to seed %s: %v", path, err)
		}
	}
	return fs
}

// ReadFile returns the content of path in fs, failing the test if it is missing
func ReadFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
