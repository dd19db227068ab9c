// Package watch implements the debounced scanner of the currently open
// document: it detects checkbox flips, broadcasts status changes, and
// reconciles completion tags in the live text.
package watch

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tasklens/internal/bus"
	"tasklens/internal/editor"
	"tasklens/internal/task"
	"tasklens/internal/vault"
)

// Config holds configuration for the editor watcher.
type Config struct {
	// Debounce is the trailing-edge window after the last buffer
	// change; only the final change in a burst triggers a scan.
	Debounce time.Duration

	// Clock drives the debounce timer; tests inject a mock.
	Clock clock.Clock

	// Logger for watcher activity.
	Logger *log.Logger

	// Today returns the current date string used for new completion
	// tags. Defaults to the clock's date in YYYY-MM-DD.
	Today func() string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: 500 * time.Millisecond,
		Clock:    clock.New(),
		Logger:   log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// Watcher scans the open document after each debounced change burst.
// Every task line gets a status broadcast, changed or not, so views
// always hold a fresh status signal; lines whose completion tag
// disagrees with the checkbox are rewritten in place.
type Watcher struct {
	buf    editor.Buffer
	bus    *bus.Bus
	cache  *vault.Cache
	config *Config

	mu           sync.Mutex
	timer        *clock.Timer
	cancelChange func()
}

// New creates a Watcher over the given buffer. Start must be called
// before any change events are observed.
func New(buf editor.Buffer, b *bus.Bus, cache *vault.Cache, config *Config) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	if config.Today == nil {
		clk := config.Clock
		config.Today = func() string { return clk.Now().Format("2006-01-02") }
	}
	return &Watcher{
		buf:    buf,
		bus:    b,
		cache:  cache,
		config: config,
	}
}

// Start subscribes to buffer changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelChange != nil {
		return
	}
	w.cancelChange = w.buf.OnChange(w.schedule)
}

// Stop unsubscribes and cancels any pending scan.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelChange != nil {
		w.cancelChange()
		w.cancelChange = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// schedule arms the debounce timer, replacing any earlier one so only
// the trailing edge of a change burst triggers a scan.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.config.Clock.AfterFunc(w.config.Debounce, w.Scan)
}

// Scan walks every line of the open document once: publishes a status
// change for each task line and reconciles its completion tag. Lines
// are rewritten only when their text actually changed; any rewrite
// records the internal-update time and invalidates the vault cache.
func (w *Watcher) Scan() {
	today := w.config.Today()
	path := w.buf.Path()
	changed := false

	for i := 0; i < w.buf.LineCount(); i++ {
		line, err := w.buf.Line(i)
		if err != nil {
			// Concurrent edit shrank the buffer mid-scan.
			w.config.Logger.Printf("Line %d vanished during scan: %v", i, err)
			break
		}

		done, ok := task.Status(line)
		if !ok {
			continue
		}

		w.bus.PublishStatus(bus.StatusChange{
			Addr: task.Address{Path: path, Line: i},
			Done: done,
		})

		rewritten, lineChanged := task.Reconcile(line, done, today)
		if !lineChanged {
			continue
		}
		if err := w.buf.SetLine(i, rewritten); err != nil {
			w.config.Logger.Printf("Failed to rewrite line %d: %v", i, err)
			continue
		}
		changed = true
	}

	if changed {
		w.cache.NoteInternalUpdate()
		w.cache.Invalidate()
	}
}
