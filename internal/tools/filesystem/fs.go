package filesystem

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem defines the interface for filesystem operations.
// This allows mocking the os package for testing.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadDir(name string) ([]os.DirEntry, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
	Remove(name string) error
}

// OSFileSystem is the default implementation that uses the os package.
type OSFileSystem struct{}

// NewOSFileSystem creates a new OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (*OSFileSystem) Stat(name string) (os.FileInfo, error)      { return os.Stat(name) }
func (*OSFileSystem) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }
func (*OSFileSystem) Remove(name string) error                   { return os.Remove(name) }
func (*OSFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// ResolvePath joins a model-supplied relative path to the repo root and
// rejects traversal outside it.
func ResolvePath(repoRoot, path string) (string, error) {
	full := filepath.Clean(filepath.Join(repoRoot, path))
	root := filepath.Clean(repoRoot)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside repository root", path)
	}
	return full, nil
}
