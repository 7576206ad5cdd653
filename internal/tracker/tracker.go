// Package tracker records the last-observed modification time of files the
// agent has read or written, and gates edits on the read-before-write
// invariant: a file may only be edited if the agent has seen its current
// on-disk content.
package tracker

import (
	"container/list"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCap bounds the number of tracked paths. A path evicted by the cap
// simply requires a fresh read before its next edit.
const DefaultCap = 512

// FileSystem defines the filesystem operations the tracker needs.
// This allows mocking the os package for testing.
type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
}

// OSFileSystem is the default implementation that uses the os package.
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (os.FileInfo, error)    { return os.Stat(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)     { return os.ReadFile(name) }
func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}
func (OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// FileExistsError reports a create targeting a path that already exists.
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s (use an edit operation instead)", e.Path)
}

// FileOutdatedError reports an edit blocked by the staleness invariant:
// the path was never read, no longer exists, or changed on disk since the
// agent last observed it.
type FileOutdatedError struct {
	Path   string
	Reason string
}

func (e *FileOutdatedError) Error() string {
	return fmt.Sprintf("file must be re-read before editing: %s (%s)", e.Path, e.Reason)
}

type record struct {
	path  string
	mtime time.Time
}

// Tracker is safe for concurrent use. Entries are kept in recency order
// and the least-recently-touched path is evicted once the cap is exceeded.
// Only Read and Write count as touches; AssertCanEdit is a pure check.
type Tracker struct {
	fs  FileSystem
	cap int

	mu      sync.Mutex
	entries map[string]*list.Element // path -> element holding *record
	order   *list.List               // front = most recently touched
}

// New creates a tracker backed by the real filesystem.
func New() *Tracker {
	return NewWithFS(OSFileSystem{}, DefaultCap)
}

// NewWithFS creates a tracker with an explicit filesystem and cap.
func NewWithFS(fs FileSystem, cap int) *Tracker {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Tracker{
		fs:      fs,
		cap:     cap,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Read returns the file's content and records its current mtime as the
// tracked observation time.
func (t *Tracker) Read(path string) (string, error) {
	abs := absPath(path)
	data, err := t.fs.ReadFile(abs)
	if err != nil {
		return "", err
	}
	info, err := t.fs.Stat(abs)
	if err != nil {
		return "", err
	}
	t.record(abs, info.ModTime())
	return string(data), nil
}

// Write creates parent directories as needed, writes the content and
// records the resulting mtime, so an immediately following edit succeeds.
// It is also used to mark a path freshly known after a tool creates it.
func (t *Tracker) Write(path, content string) error {
	abs := absPath(path)
	if err := t.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	if err := t.fs.WriteFile(abs, []byte(content), 0o644); err != nil {
		return err
	}
	info, err := t.fs.Stat(abs)
	if err != nil {
		return err
	}
	t.record(abs, info.ModTime())
	return nil
}

// AssertCanCreate fails if the path already exists.
func (t *Tracker) AssertCanCreate(path string) error {
	abs := absPath(path)
	if _, err := t.fs.Stat(abs); err == nil {
		return &FileExistsError{Path: path}
	}
	return nil
}

// AssertCanEdit enforces the staleness invariant. A stale record is
// cleared so the caller cannot pass the check by retrying without reading.
func (t *Tracker) AssertCanEdit(path string) error {
	abs := absPath(path)

	t.mu.Lock()
	el, tracked := t.entries[abs]
	var seen time.Time
	if tracked {
		seen = el.Value.(*record).mtime
	}
	t.mu.Unlock()

	if !tracked {
		return &FileOutdatedError{Path: path, Reason: "never read in this session"}
	}

	info, err := t.fs.Stat(abs)
	if err != nil {
		t.Invalidate(abs)
		return &FileOutdatedError{Path: path, Reason: "file no longer exists"}
	}
	if info.ModTime().After(seen) {
		t.Invalidate(abs)
		return &FileOutdatedError{Path: path, Reason: "modified on disk since last read"}
	}
	return nil
}

// Invalidate drops the record for a path, forcing a re-read before the
// next edit. Used by the staleness check and the filesystem watcher.
func (t *Tracker) Invalidate(path string) {
	abs := absPath(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.entries[abs]; ok {
		t.order.Remove(el)
		delete(t.entries, abs)
	}
}

// InvalidateIfStale drops the record only when the on-disk mtime is newer
// than the tracked observation, or the file is gone.
func (t *Tracker) InvalidateIfStale(path string) {
	abs := absPath(path)

	t.mu.Lock()
	el, tracked := t.entries[abs]
	var seen time.Time
	if tracked {
		seen = el.Value.(*record).mtime
	}
	t.mu.Unlock()

	if !tracked {
		return
	}
	info, err := t.fs.Stat(abs)
	if err != nil || info.ModTime().After(seen) {
		t.Invalidate(abs)
	}
}

// Len reports the number of tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) record(abs string, mtime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[abs]; ok {
		el.Value.(*record).mtime = mtime
		t.order.MoveToFront(el)
		return
	}

	t.entries[abs] = t.order.PushFront(&record{path: abs, mtime: mtime})
	for len(t.entries) > t.cap {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*record).path)
	}
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
