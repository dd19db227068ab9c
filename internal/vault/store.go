// Package vault provides the document store contract, a file-backed
// store over a directory of markdown documents, the TTL task cache and
// the rescan watcher that keeps the cache honest under external edits.
package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tasklens/internal/task"
)

// Store is the document store collaborator: whole-document reads and
// writes keyed by slash-separated document identifiers, plus the
// structural index of which lines are task list items.
type Store interface {
	// List returns the identifiers of every document in the vault.
	List(ctx context.Context) ([]string, error)

	// Read returns a document's content, preferring a cached copy.
	// Suitable for bulk scans where slightly stale content is fine.
	Read(ctx context.Context, path string) (string, error)

	// ReadFresh bypasses any cache. Write-backs must read through this
	// so a rewrite is based on current text.
	ReadFresh(ctx context.Context, path string) (string, error)

	// Write replaces a document's content.
	Write(ctx context.Context, path string, content string) error

	// TaskLines returns the zero-based line numbers of task list items.
	TaskLines(ctx context.Context, path string) ([]int, error)
}

type fileEntry struct {
	content string
	modTime time.Time
}

// FileStore implements Store over a directory tree of .md files.
// Read serves from a per-file content cache validated by mtime;
// ReadFresh always hits the disk.
type FileStore struct {
	root string

	mu    sync.Mutex
	files map[string]fileEntry
}

// NewFileStore creates a FileStore rooted at dir. The directory does not
// need to exist yet; List over a missing root is an empty vault.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		root:  dir,
		files: make(map[string]fileEntry),
	}
}

// List implements Store.List, returning slash-separated paths relative
// to the vault root.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list vault %s: %w", s.root, err)
	}
	return paths, nil
}

// Read implements Store.Read.
func (s *FileStore) Read(ctx context.Context, path string) (string, error) {
	full := s.fullPath(path)
	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("failed to stat document %s: %w", path, err)
	}

	s.mu.Lock()
	entry, ok := s.files[path]
	s.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.content, nil
	}

	return s.readThrough(path, full)
}

// ReadFresh implements Store.ReadFresh.
func (s *FileStore) ReadFresh(ctx context.Context, path string) (string, error) {
	return s.readThrough(path, s.fullPath(path))
}

func (s *FileStore) readThrough(path, full string) (string, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", path, err)
	}

	content := string(data)
	info, err := os.Stat(full)
	if err == nil {
		s.mu.Lock()
		s.files[path] = fileEntry{content: content, modTime: info.ModTime()}
		s.mu.Unlock()
	}
	return content, nil
}

// Write implements Store.Write.
func (s *FileStore) Write(ctx context.Context, path string, content string) error {
	full := s.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create document directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	info, err := os.Stat(full)
	if err == nil {
		s.mu.Lock()
		s.files[path] = fileEntry{content: content, modTime: info.ModTime()}
		s.mu.Unlock()
	}
	return nil
}

// TaskLines implements Store.TaskLines by scanning the document for
// checkbox lines.
func (s *FileStore) TaskLines(ctx context.Context, path string) ([]int, error) {
	content, err := s.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	var lines []int
	for i, line := range strings.Split(content, "\n") {
		if task.IsTaskLine(line) {
			lines = append(lines, i)
		}
	}
	return lines, nil
}

func (s *FileStore) fullPath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}
