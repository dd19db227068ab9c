package vault

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"

	"tasklens/internal/bus"
)

// RescanConfig holds configuration for the rescan watcher.
type RescanConfig struct {
	// Debounce is how long to wait after the last file event before
	// reacting. Batches rapid external edits together.
	Debounce time.Duration

	// Settle is the window after one of our own write-backs during
	// which incoming file events are treated as echoes and deferred.
	Settle time.Duration

	// Clock drives the debounce and settle timers.
	Clock clock.Clock

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultRescanConfig returns sensible defaults.
func DefaultRescanConfig() *RescanConfig {
	return &RescanConfig{
		Debounce: 500 * time.Millisecond,
		Settle:   2 * time.Second,
		Clock:    clock.New(),
		Logger:   log.New(os.Stderr, "[rescan] ", log.LstdFlags),
	}
}

// RescanWatcher observes the vault directory for external .md edits.
// Events are debounced with a cancel-and-replace timer; when the timer
// fires outside the settle window of our own last write-back, the cache
// is invalidated and a refresh-all is broadcast. Events inside the
// settle window are echoes of this process's writes and are deferred
// one settle period instead of triggering an immediate rescan.
type RescanWatcher struct {
	cache   *Cache
	bus     *bus.Bus
	watcher *fsnotify.Watcher
	config  *RescanConfig

	mu      sync.Mutex
	timer   *clock.Timer
	running bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRescanWatcher creates a RescanWatcher. Start must be called before
// any events are processed.
func NewRescanWatcher(cache *Cache, b *bus.Bus, config *RescanConfig) (*RescanWatcher, error) {
	if config == nil {
		config = DefaultRescanConfig()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[rescan] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &RescanWatcher{
		cache:   cache,
		bus:     b,
		watcher: watcher,
		config:  config,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the vault directory for .md changes.
func (w *RescanWatcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("rescan watcher already running")
	}

	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch vault directory %s: %w", dir, err)
	}

	w.running = true
	w.wg.Add(1)
	go w.loop()

	w.config.Logger.Printf("Watching vault: %s", dir)
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *RescanWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// loop converts raw fsnotify events into debounced rescan triggers.
func (w *RescanWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".md") {
				continue
			}
			w.schedule(w.config.Debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// schedule arms the debounce timer, cancelling any earlier one so only
// the last event in a burst fires.
func (w *RescanWatcher) schedule(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.config.Clock.AfterFunc(d, w.fire)
}

// fire runs after the debounce window. Echoes of our own write-backs
// are pushed out one settle period; genuine external edits invalidate
// the cache and notify every view.
func (w *RescanWatcher) fire() {
	since := w.config.Clock.Since(w.cache.LastInternalUpdate())
	if since < w.config.Settle {
		w.config.Logger.Printf("Change within settle window (%v ago), deferring", since)
		w.schedule(w.config.Settle)
		return
	}

	w.config.Logger.Println("External vault change, invalidating cache")
	w.cache.Invalidate()
	w.bus.PublishRefresh()
}
