package vault

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"tasklens/internal/task"
)

// memStore is an in-memory Store that counts full-scan reads so tests
// can assert on rebuild behavior.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]string
	lists int
	reads int
}

func newMemStore(docs map[string]string) *memStore {
	return &memStore{docs: docs}
}

func (m *memStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	var out []string
	for p := range m.docs {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) Read(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	content, ok := m.docs[path]
	if !ok {
		return "", fmt.Errorf("no such document %s", path)
	}
	return content, nil
}

func (m *memStore) ReadFresh(ctx context.Context, path string) (string, error) {
	return m.Read(ctx, path)
}

func (m *memStore) Write(ctx context.Context, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[path] = content
	return nil
}

func (m *memStore) TaskLines(ctx context.Context, path string) ([]int, error) {
	m.mu.Lock()
	content, ok := m.docs[path]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such document %s", path)
	}
	var lines []int
	for i, line := range strings.Split(content, "\n") {
		if task.IsTaskLine(line) {
			lines = append(lines, i)
		}
	}
	return lines, nil
}

func (m *memStore) listCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// TestCache_ScanParsesAllDocuments verifies a full scan covers every
// document's task lines.
func TestCache_ScanParsesAllDocuments(t *testing.T) {
	store := newMemStore(map[string]string{
		"Today.md":    "- [ ] one\nplain\n- [x] two [completed: 2026-08-20]",
		"Projects.md": "- [ ] three [priority: high]",
	})
	cache := NewCache(store, &CacheConfig{TTL: 10 * time.Second, Clock: clock.NewMock(), Logger: quietLogger()})

	records, err := cache.Tasks(context.Background())
	if err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Tasks returned %d records, want 3", len(records))
	}

	byDesc := make(map[string]task.Record)
	for _, r := range records {
		byDesc[r.Description] = r
	}
	if r := byDesc["two"]; !r.Completed || r.CompletedDate != "2026-08-20" {
		t.Errorf("record two = %+v, want completed on 2026-08-20", r)
	}
	if r := byDesc["three"]; r.Priority != task.PriorityHigh {
		t.Errorf("record three priority = %q, want high", r.Priority)
	}
}

// TestCache_TTLServesWithoutRescan verifies two calls inside the TTL
// share one scan and return the identical snapshot.
func TestCache_TTLServesWithoutRescan(t *testing.T) {
	store := newMemStore(map[string]string{"a.md": "- [ ] x"})
	mock := clock.NewMock()
	cache := NewCache(store, &CacheConfig{TTL: 10 * time.Second, Clock: mock, Logger: quietLogger()})
	ctx := context.Background()

	first, err := cache.Tasks(ctx)
	if err != nil {
		t.Fatalf("first Tasks failed: %v", err)
	}

	mock.Add(5 * time.Second)
	second, err := cache.Tasks(ctx)
	if err != nil {
		t.Fatalf("second Tasks failed: %v", err)
	}

	if store.listCount() != 1 {
		t.Errorf("scans = %d, want 1 within TTL", store.listCount())
	}
	if &first[0] != &second[0] {
		t.Error("second call should return the same snapshot")
	}
}

// TestCache_TTLExpiryRescans verifies the entry goes stale after the
// TTL.
func TestCache_TTLExpiryRescans(t *testing.T) {
	store := newMemStore(map[string]string{"a.md": "- [ ] x"})
	mock := clock.NewMock()
	cache := NewCache(store, &CacheConfig{TTL: 10 * time.Second, Clock: mock, Logger: quietLogger()})
	ctx := context.Background()

	if _, err := cache.Tasks(ctx); err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	mock.Add(11 * time.Second)
	if _, err := cache.Tasks(ctx); err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}

	if store.listCount() != 2 {
		t.Errorf("scans = %d, want 2 after TTL expiry", store.listCount())
	}
}

// TestCache_InvalidateForcesRescan verifies Invalidate overrides any
// remaining TTL.
func TestCache_InvalidateForcesRescan(t *testing.T) {
	store := newMemStore(map[string]string{"a.md": "- [ ] x"})
	mock := clock.NewMock()
	cache := NewCache(store, &CacheConfig{TTL: time.Hour, Clock: mock, Logger: quietLogger()})
	ctx := context.Background()

	if _, err := cache.Tasks(ctx); err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}

	store.docs["a.md"] = "- [x] x [completed: 2026-08-23]"
	cache.Invalidate()

	records, err := cache.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks after Invalidate failed: %v", err)
	}
	if store.listCount() != 2 {
		t.Errorf("scans = %d, want 2 after Invalidate", store.listCount())
	}
	if len(records) != 1 || !records[0].Completed {
		t.Errorf("records = %+v, want the updated completed task", records)
	}
}

// TestCache_EmptyVaultIsServable verifies an empty scan result is a
// valid cache entry.
func TestCache_EmptyVaultIsServable(t *testing.T) {
	store := newMemStore(map[string]string{})
	mock := clock.NewMock()
	cache := NewCache(store, &CacheConfig{TTL: 10 * time.Second, Clock: mock, Logger: quietLogger()})
	ctx := context.Background()

	if _, err := cache.Tasks(ctx); err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if _, err := cache.Tasks(ctx); err != nil {
		t.Fatalf("Tasks failed: %v", err)
	}
	if store.listCount() != 1 {
		t.Errorf("scans = %d, want 1 for cached empty vault", store.listCount())
	}
}

// TestCache_InternalUpdateLedger verifies the shared write timestamp.
func TestCache_InternalUpdateLedger(t *testing.T) {
	store := newMemStore(map[string]string{})
	mock := clock.NewMock()
	cache := NewCache(store, &CacheConfig{TTL: 10 * time.Second, Clock: mock, Logger: quietLogger()})

	if !cache.LastInternalUpdate().IsZero() {
		t.Error("LastInternalUpdate should start at zero")
	}

	mock.Add(3 * time.Second)
	cache.NoteInternalUpdate()
	if got := cache.LastInternalUpdate(); !got.Equal(mock.Now()) {
		t.Errorf("LastInternalUpdate = %v, want %v", got, mock.Now())
	}
}
