package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestFileStore_ListAndRead verifies discovery of .md documents and
// whole-document reads.
func TestFileStore_ListAndRead(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "Projects"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	writeFile(t, dir, "Today.md", "- [ ] one")
	writeFile(t, dir, "Projects/Work.md", "- [x] two")
	writeFile(t, dir, "notes.txt", "not a document")

	store := NewFileStore(dir)
	ctx := context.Background()

	paths, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"Projects/Work.md", "Today.md"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("List mismatch (-want +got):\n%s", diff)
	}

	content, err := store.Read(ctx, "Today.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if content != "- [ ] one" {
		t.Errorf("Read = %q", content)
	}
}

// TestFileStore_MissingRoot verifies a missing vault is an empty vault.
func TestFileStore_MissingRoot(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope"))
	paths, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("List = %v, want empty", paths)
	}
}

// TestFileStore_ReadFreshSeesExternalWrite verifies the strong read
// bypasses the content cache.
func TestFileStore_ReadFreshSeesExternalWrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "old")

	store := NewFileStore(dir)
	ctx := context.Background()

	if _, err := store.Read(ctx, "doc.md"); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// External write behind the store's back.
	writeFile(t, dir, "doc.md", "new")

	content, err := store.ReadFresh(ctx, "doc.md")
	if err != nil {
		t.Fatalf("ReadFresh failed: %v", err)
	}
	if content != "new" {
		t.Errorf("ReadFresh = %q, want new", content)
	}
}

// TestFileStore_WriteRoundTrip verifies Write then Read.
func TestFileStore_WriteRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	if err := store.Write(ctx, "sub/new.md", "- [ ] created"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	content, err := store.Read(ctx, "sub/new.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if content != "- [ ] created" {
		t.Errorf("Read = %q", content)
	}
}

// TestFileStore_TaskLines verifies the structural index.
func TestFileStore_TaskLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "# Heading\n- [ ] first\ntext\n- [x] second\n1. [ ] third")

	store := NewFileStore(dir)
	lines, err := store.TaskLines(context.Background(), "doc.md")
	if err != nil {
		t.Fatalf("TaskLines failed: %v", err)
	}
	if diff := cmp.Diff([]int{1, 3, 4}, lines); diff != "" {
		t.Errorf("TaskLines mismatch (-want +got):\n%s", diff)
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir for %s failed: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write %s failed: %v", rel, err)
	}
}
