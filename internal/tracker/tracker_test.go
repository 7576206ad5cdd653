package tracker

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeFS is an in-memory FileSystem with controllable mtimes.
type fakeFS struct {
	files map[string]*fakeFile
	clock time.Time
}

type fakeFile struct {
	data  []byte
	mtime time.Time
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]*fakeFile), clock: time.Unix(1000, 0)}
}

func (f *fakeFS) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// put writes a file as an external actor would, advancing the clock.
func (f *fakeFS) put(name, data string) {
	f.files[absPath(name)] = &fakeFile{data: []byte(data), mtime: f.tick()}
}

func (f *fakeFS) Stat(name string) (os.FileInfo, error) {
	file, ok := f.files[absPath(name)]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return fakeInfo{name: filepath.Base(name), size: int64(len(file.data)), mtime: file.mtime}, nil
}

func (f *fakeFS) ReadFile(name string) ([]byte, error) {
	file, ok := f.files[absPath(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), file.data...), nil
}

func (f *fakeFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	f.files[absPath(name)] = &fakeFile{data: append([]byte(nil), data...), mtime: f.tick()}
	return nil
}

func (f *fakeFS) MkdirAll(path string, perm os.FileMode) error { return nil }

type fakeInfo struct {
	name  string
	size  int64
	mtime time.Time
}

func (i fakeInfo) Name() string       { return i.name }
func (i fakeInfo) Size() int64        { return i.size }
func (i fakeInfo) Mode() os.FileMode  { return 0o644 }
func (i fakeInfo) ModTime() time.Time { return i.mtime }
func (i fakeInfo) IsDir() bool        { return false }
func (i fakeInfo) Sys() any           { return nil }

func TestEditRequiresPriorRead(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("a.txt", "hello")
	tr := NewWithFS(ffs, 0)

	var outdated *FileOutdatedError
	if err := tr.AssertCanEdit("a.txt"); !errors.As(err, &outdated) {
		t.Fatalf("AssertCanEdit before read = %v, want FileOutdatedError", err)
	}

	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := tr.AssertCanEdit("a.txt"); err != nil {
		t.Fatalf("AssertCanEdit after read = %v, want nil", err)
	}
}

func TestEditBlockedByExternalModification(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("a.txt", "v1")
	tr := NewWithFS(ffs, 0)

	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	ffs.put("a.txt", "v2") // out-of-band edit

	var outdated *FileOutdatedError
	if err := tr.AssertCanEdit("a.txt"); !errors.As(err, &outdated) {
		t.Fatalf("AssertCanEdit = %v, want FileOutdatedError", err)
	}

	// The stale record is cleared: the check keeps failing until a fresh
	// read, even though the mtime no longer advances.
	if err := tr.AssertCanEdit("a.txt"); err == nil {
		t.Fatal("AssertCanEdit passed on retry without a fresh read")
	}

	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("re-Read: %v", err)
	}
	if err := tr.AssertCanEdit("a.txt"); err != nil {
		t.Fatalf("AssertCanEdit after re-read = %v, want nil", err)
	}
}

func TestEditBlockedAfterDeletion(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("a.txt", "hello")
	tr := NewWithFS(ffs, 0)

	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	delete(ffs.files, absPath("a.txt"))

	var outdated *FileOutdatedError
	if err := tr.AssertCanEdit("a.txt"); !errors.As(err, &outdated) {
		t.Fatalf("AssertCanEdit = %v, want FileOutdatedError", err)
	}
}

func TestWriteRecordsFreshMtime(t *testing.T) {
	ffs := newFakeFS()
	tr := NewWithFS(ffs, 0)

	if err := tr.Write("new/dir/a.txt", "content"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tr.AssertCanEdit("new/dir/a.txt"); err != nil {
		t.Fatalf("AssertCanEdit after write = %v, want nil", err)
	}
	got, err := tr.Read("new/dir/a.txt")
	if err != nil || got != "content" {
		t.Fatalf("Read = (%q, %v), want (content, nil)", got, err)
	}
}

func TestAssertCanCreate(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("exists.txt", "x")
	tr := NewWithFS(ffs, 0)

	var exists *FileExistsError
	if err := tr.AssertCanCreate("exists.txt"); !errors.As(err, &exists) {
		t.Fatalf("AssertCanCreate(existing) = %v, want FileExistsError", err)
	}
	if err := tr.AssertCanCreate("fresh.txt"); err != nil {
		t.Fatalf("AssertCanCreate(fresh) = %v, want nil", err)
	}
}

func TestLRUEvictionFailsClosed(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("a.txt", "a")
	ffs.put("b.txt", "b")
	ffs.put("c.txt", "c")
	tr := NewWithFS(ffs, 2)

	for _, p := range []string{"a.txt", "b.txt"} {
		if _, err := tr.Read(p); err != nil {
			t.Fatalf("Read(%s): %v", p, err)
		}
	}
	// Touch a so b becomes the eviction candidate.
	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("Read(a): %v", err)
	}
	if _, err := tr.Read("c.txt"); err != nil {
		t.Fatalf("Read(c): %v", err)
	}

	if got := tr.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	if err := tr.AssertCanEdit("b.txt"); err == nil {
		t.Fatal("evicted path passed AssertCanEdit; eviction must fail closed")
	}
	for _, p := range []string{"a.txt", "c.txt"} {
		if err := tr.AssertCanEdit(p); err != nil {
			t.Fatalf("AssertCanEdit(%s) = %v, want nil", p, err)
		}
	}
}

func TestInvalidateIfStaleKeepsFreshRecords(t *testing.T) {
	ffs := newFakeFS()
	ffs.put("a.txt", "v1")
	tr := NewWithFS(ffs, 0)

	if _, err := tr.Read("a.txt"); err != nil {
		t.Fatalf("Read: %v", err)
	}
	tr.InvalidateIfStale("a.txt")
	if err := tr.AssertCanEdit("a.txt"); err != nil {
		t.Fatalf("fresh record dropped: %v", err)
	}

	ffs.put("a.txt", "v2")
	tr.InvalidateIfStale("a.txt")
	if got := tr.Len(); got != 0 {
		t.Fatalf("Len after stale invalidation = %d, want 0", got)
	}
}
