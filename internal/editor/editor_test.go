package editor

import (
	"context"
	"path/filepath"
	"testing"

	"tasklens/internal/vault"
)

// TestMemoryBuffer_LineAccess verifies basic line reads and bounds
// checking.
func TestMemoryBuffer_LineAccess(t *testing.T) {
	b := NewMemoryBuffer("doc.md", "alpha\nbeta\ngamma")

	if n := b.LineCount(); n != 3 {
		t.Fatalf("LineCount = %d, want 3", n)
	}

	line, err := b.Line(1)
	if err != nil {
		t.Fatalf("Line(1) failed: %v", err)
	}
	if line != "beta" {
		t.Errorf("Line(1) = %q, want beta", line)
	}

	if _, err := b.Line(3); err == nil {
		t.Error("Line(3) should be out of range")
	}
	if err := b.SetLine(-1, "x"); err == nil {
		t.Error("SetLine(-1) should be out of range")
	}
}

// TestMemoryBuffer_ChangeNotification verifies subscribers fire on
// mutation but not on no-op writes.
func TestMemoryBuffer_ChangeNotification(t *testing.T) {
	b := NewMemoryBuffer("doc.md", "alpha\nbeta")

	var n int
	cancel := b.OnChange(func() { n++ })

	if err := b.SetLine(0, "alpha2"); err != nil {
		t.Fatalf("SetLine failed: %v", err)
	}
	if n != 1 {
		t.Errorf("changes after SetLine = %d, want 1", n)
	}

	// Writing identical text is not a change.
	if err := b.SetLine(0, "alpha2"); err != nil {
		t.Fatalf("SetLine failed: %v", err)
	}
	if n != 1 {
		t.Errorf("changes after no-op SetLine = %d, want 1", n)
	}

	b.SetText("fresh content")
	if n != 2 {
		t.Errorf("changes after SetText = %d, want 2", n)
	}

	cancel()
	b.SetText("more")
	if n != 2 {
		t.Errorf("changes after cancel = %d, want 2", n)
	}
}

// TestMemoryBuffer_WriteThrough verifies mutations reach the attached
// store.
func TestMemoryBuffer_WriteThrough(t *testing.T) {
	dir := t.TempDir()
	store := vault.NewFileStore(dir)
	ctx := context.Background()

	if err := store.Write(ctx, "notes.md", "- [ ] a\n- [ ] b"); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	b := NewMemoryBuffer("notes.md", "- [ ] a\n- [ ] b")
	b.AttachStore(store)

	if err := b.SetLine(1, "- [x] b"); err != nil {
		t.Fatalf("SetLine failed: %v", err)
	}

	content, err := store.ReadFresh(ctx, "notes.md")
	if err != nil {
		t.Fatalf("ReadFresh failed: %v", err)
	}
	if content != "- [ ] a\n- [x] b" {
		t.Errorf("store content = %q, want write-through result", content)
	}

	// The file really exists on disk under the vault root.
	if _, err := store.ReadFresh(ctx, filepath.ToSlash("notes.md")); err != nil {
		t.Errorf("document missing from store: %v", err)
	}
}
