package vault

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tasklens/internal/task"
)

// CacheConfig holds configuration for the task cache.
type CacheConfig struct {
	// TTL is how long a scan result stays servable without a rescan.
	TTL time.Duration

	// Clock drives TTL checks; tests inject a mock.
	Clock clock.Clock

	// Logger for cache activity.
	Logger *log.Logger
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:    10 * time.Second,
		Clock:  clock.New(),
		Logger: log.New(os.Stderr, "[vault] ", log.LstdFlags),
	}
}

// Cache holds the last full scan of all task records with a staleness
// TTL. The held entry is replaced whole on rebuild; readers never see a
// partial update. It also carries the process-wide "last internal
// update" timestamp used to tell our own write-backs apart from
// external edits.
type Cache struct {
	store  Store
	ttl    time.Duration
	clk    clock.Clock
	logger *log.Logger

	mu           sync.Mutex
	records      []task.Record
	scannedAt    time.Time
	valid        bool
	lastInternal time.Time
}

// NewCache creates a Cache over the given store.
func NewCache(store Store, config *CacheConfig) *Cache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[vault] ", log.LstdFlags)
	}
	return &Cache{
		store:  store,
		ttl:    config.TTL,
		clk:    config.Clock,
		logger: config.Logger,
	}
}

// Tasks returns the cached records when the entry is still within its
// TTL, otherwise rescans the whole vault first. Callers must treat the
// returned slice as read-only.
func (c *Cache) Tasks(ctx context.Context) ([]task.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.clk.Since(c.scannedAt) < c.ttl {
		return c.records, nil
	}

	records, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}

	c.records = records
	c.scannedAt = c.clk.Now()
	c.valid = true
	return c.records, nil
}

// Invalidate forces the next Tasks call to rescan regardless of the
// TTL. Called after every write-back so subsequent queries see the
// updated text.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
}

// NoteInternalUpdate records now as the time of an engine-initiated
// write-back.
func (c *Cache) NoteInternalUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastInternal = c.clk.Now()
}

// LastInternalUpdate returns the time of the most recent
// engine-initiated write-back, zero if none happened yet.
func (c *Cache) LastInternalUpdate() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastInternal
}

// scan reads every vault document and parses every indexed task line.
// Documents that fail to read are skipped with a warning so one bad
// file cannot hide the rest of the vault.
func (c *Cache) scan(ctx context.Context) ([]task.Record, error) {
	paths, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list vault: %w", err)
	}

	var records []task.Record
	for _, path := range paths {
		content, err := c.store.Read(ctx, path)
		if err != nil {
			c.logger.Printf("Warning: skipping unreadable document %s: %v", path, err)
			continue
		}
		taskLines, err := c.store.TaskLines(ctx, path)
		if err != nil {
			c.logger.Printf("Warning: no task index for %s: %v", path, err)
			continue
		}

		lines := strings.Split(content, "\n")
		for _, i := range taskLines {
			if i < 0 || i >= len(lines) {
				continue
			}
			if rec, ok := task.Parse(lines[i], i, path); ok {
				records = append(records, rec)
			}
		}
	}

	c.logger.Printf("Scanned %d documents, %d tasks", len(paths), len(records))
	return records, nil
}
