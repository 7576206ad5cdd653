package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChamsBouzaiene/tern/internal/tracker"
)

func TestResolvePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	if _, err := ResolvePath(root, "../outside.txt"); err == nil {
		t.Fatal("traversal outside root was allowed")
	}
	if _, err := ResolvePath(root, "sub/../a.txt"); err != nil {
		t.Fatalf("in-root path rejected: %v", err)
	}
	got, err := ResolvePath(root, "")
	if err != nil || got != filepath.Clean(root) {
		t.Fatalf("ResolvePath(root, \"\") = (%q, %v)", got, err)
	}
}

func TestReadFileRecordsObservation(t *testing.T) {
	root := t.TempDir()
	tr := tracker.New()
	tool := NewReadFileTool(root, tr)

	full := filepath.Join(root, "a.txt")
	if err := os.WriteFile(full, []byte("one\ntwo"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := tool.Fn(context.Background(), map[string]any{"path": "a.txt"})
	if err != nil {
		t.Fatalf("read_file: %v", err)
	}

	var res struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		LineCount int    `json:"line_count"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Content != "one\ntwo" || res.LineCount != 2 {
		t.Fatalf("result = %+v", res)
	}

	// The read must unlock editing through the shared tracker.
	if err := tr.AssertCanEdit(full); err != nil {
		t.Fatalf("AssertCanEdit after read_file: %v", err)
	}
}

func TestFileStatus(t *testing.T) {
	root := t.TempDir()
	tool := NewFileStatusTool(root)

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := tool.Fn(context.Background(), map[string]any{"path": "a.txt"})
	if err != nil {
		t.Fatalf("file_status: %v", err)
	}
	var res struct {
		Exists bool  `json:"exists"`
		IsDir  bool  `json:"is_dir"`
		Size   int64 `json:"size"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Exists || res.IsDir || res.Size != 4 {
		t.Fatalf("result = %+v", res)
	}

	out, err = tool.Fn(context.Background(), map[string]any{"path": "missing.txt"})
	if err != nil {
		t.Fatalf("file_status on missing path: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Exists {
		t.Fatal("missing path reported as existing")
	}
}

func TestListFilesRespectsIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"a.go", "b.go", "node_modules/dep.js", "sub/c.go"} {
		full := filepath.Join(root, p)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewListFilesTool(root)
	out, err := tool.Fn(context.Background(), map[string]any{"recursive": true})
	if err != nil {
		t.Fatalf("list_files: %v", err)
	}

	var res struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, f := range res.Files {
		seen[f] = true
	}
	for _, want := range []string{"a.go", "b.go", filepath.Join("sub", "c.go")} {
		if !seen[want] {
			t.Fatalf("missing %s in %v", want, res.Files)
		}
	}
	if seen[filepath.Join("node_modules", "dep.js")] {
		t.Fatal("default ignore pattern not applied")
	}
}
