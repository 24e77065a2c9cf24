package helpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TempDirWithFiles creates a temporary directory (cleaned up
// automatically by the testing framework) containing a file
// for each name provided. Each file holds the given content.
func TempDirWithFiles(t *testing.T, names []string, content []byte) (string, []string) {
	dirPath := t.TempDir()
	filePaths := make([]string, 0, len(names))
	for _, name := range names {
		filePaths = append(filePaths, WriteFile(t, dirPath, name, content))
	}

	require.Len(t, filePaths, len(names), "Expected file paths recorded to match length of requested files")
	return dirPath, filePaths
}

// WriteFile writes content to dir/name, failing the test on error.
func WriteFile(t *testing.T, dir string, name string, content []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644), "failed to create file in temporary dir")

	return path
}

// Backdate sets both the access and modification time of the
// file at path to 'age' in the past.
func Backdate(t *testing.T, path string, age time.Duration) {
	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp), "failed to backdate file")
}
