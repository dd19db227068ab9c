// Package view owns one query block: it runs the fetch/filter/sort/
// group/limit pipeline, renders the result behind a content-hash guard,
// and manages the grace-period completion state machine for
// user-initiated checks.
package view

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tasklens/internal/bus"
	"tasklens/internal/query"
	"tasklens/internal/task"
	"tasklens/internal/vault"
)

// RenderFunc receives a view's rendered content. Implementations may
// panic; the view recovers at its boundary and substitutes an inline
// error so sibling views are unaffected.
type RenderFunc func(name, content string)

// Edit is the data contract of the modal edit form: the fields a user
// may change on a task. Edits commit immediately, with no grace period.
type Edit struct {
	Description string
	Completed   bool
	Priority    task.Priority
}

// Config holds configuration for a view.
type Config struct {
	// GraceTicks is how many countdown ticks a pending completion
	// survives before committing.
	GraceTicks int

	// TickInterval is the length of one countdown tick.
	TickInterval time.Duration

	// SettleDelay is the wait after a refresh-all signal before the
	// view re-runs its pipeline.
	SettleDelay time.Duration

	// Clock drives the countdown and settle timers.
	Clock clock.Clock

	// Logger for view activity.
	Logger *log.Logger

	// Today returns the current date string for completion commits and
	// "done today" matching.
	Today func() string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GraceTicks:   5,
		TickInterval: time.Second,
		SettleDelay:  2 * time.Second,
		Clock:        clock.New(),
		Logger:       log.New(os.Stderr, "[view] ", log.LstdFlags),
	}
}

// pending is one live grace-period countdown.
type pending struct {
	remaining int
	timer     *clock.Timer
}

// View renders one query block and keeps it consistent with broadcast
// events and the vault cache.
type View struct {
	name   string
	spec   *query.Spec
	cache  *vault.Cache
	store  vault.Store
	bus    *bus.Bus
	render RenderFunc
	config *Config

	mu       sync.Mutex
	current  []task.Record
	lastHash string
	pending  map[task.Address]*pending
	settle   *clock.Timer
	cancels  []func()
	closed   bool
}

// New compiles the query block, subscribes to the broadcaster and
// returns a View ready for its first Refresh.
func New(name, querySource string, cache *vault.Cache, store vault.Store, b *bus.Bus, render RenderFunc, config *Config) *View {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[view] ", log.LstdFlags)
	}
	if config.Today == nil {
		clk := config.Clock
		config.Today = func() string { return clk.Now().Format("2006-01-02") }
	}

	v := &View{
		name:    name,
		spec:    query.Compile(querySource),
		cache:   cache,
		store:   store,
		bus:     b,
		render:  render,
		config:  config,
		pending: make(map[task.Address]*pending),
	}
	v.cancels = append(v.cancels,
		b.OnStatusChange(v.handleStatus),
		b.OnRefresh(v.handleRefresh),
	)
	return v
}

// Close unsubscribes from the broadcaster and stops all timers. Pending
// completions are discarded without committing.
func (v *View) Close() {
	v.mu.Lock()
	v.closed = true
	for _, p := range v.pending {
		p.timer.Stop()
	}
	v.pending = make(map[task.Address]*pending)
	if v.settle != nil {
		v.settle.Stop()
		v.settle = nil
	}
	cancels := v.cancels
	v.cancels = nil
	v.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Refresh runs the full query pipeline and re-renders. Rendering is
// skipped when the visible result is unchanged since the last render.
func (v *View) Refresh(ctx context.Context) error {
	records, err := v.cache.Tasks(ctx)
	if err != nil {
		v.emit(fmt.Sprintf("error: %v", err))
		return err
	}

	result := v.spec.Apply(records, v.config.Today())

	v.mu.Lock()
	v.current = result
	content, changed := v.composeLocked()
	v.mu.Unlock()

	if changed {
		v.emit(content)
	}
	return nil
}

// Result returns a copy of the currently displayed records.
func (v *View) Result() []task.Record {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]task.Record, len(v.current))
	copy(out, v.current)
	return out
}

// Pending reports whether a grace-period countdown is live for addr.
func (v *View) Pending(addr task.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.pending[addr]
	return ok
}

// handleStatus patches the in-memory copy of the addressed task and
// re-renders immediately, without touching the cache. Status changes
// bypass the cache so they are visible before any rebuild.
func (v *View) handleStatus(sc bus.StatusChange) {
	v.mu.Lock()
	patched := false
	for i := range v.current {
		if v.current[i].Address() == sc.Addr {
			v.current[i].Completed = sc.Done
			patched = true
		}
	}
	var content string
	var changed bool
	if patched {
		content, changed = v.composeLocked()
	}
	v.mu.Unlock()

	if changed {
		v.emit(content)
	}
}

// handleRefresh schedules a pipeline re-run after the settle delay,
// replacing any earlier pending refresh.
func (v *View) handleRefresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	if v.settle != nil {
		v.settle.Stop()
	}
	v.settle = v.config.Clock.AfterFunc(v.config.SettleDelay, func() {
		_ = v.Refresh(context.Background())
	})
}

// Complete starts the grace-period countdown for a user check-click.
// The task is shown complete immediately, but its record and the
// underlying text stay untouched until the countdown expires, so "not
// done" queries keep matching it and an uncheck costs nothing.
func (v *View) Complete(addr task.Address) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if _, ok := v.pending[addr]; ok {
		v.mu.Unlock()
		return
	}
	p := &pending{remaining: v.config.GraceTicks}
	p.timer = v.config.Clock.AfterFunc(v.config.TickInterval, func() { v.tick(addr) })
	v.pending[addr] = p
	content, changed := v.composeLocked()
	v.mu.Unlock()

	if changed {
		v.emit(content)
	}
}

// Uncheck cancels a live countdown for addr, reverting the visual state
// with zero text mutation. Unchecking a task without a countdown is a
// text edit and flows through the editor watcher instead.
func (v *View) Uncheck(addr task.Address) {
	v.mu.Lock()
	p, ok := v.pending[addr]
	if !ok {
		v.mu.Unlock()
		return
	}
	p.timer.Stop()
	delete(v.pending, addr)
	content, changed := v.composeLocked()
	v.mu.Unlock()

	if changed {
		v.emit(content)
	}
}

// tick advances one countdown by a single tick, committing at zero.
func (v *View) tick(addr task.Address) {
	v.mu.Lock()
	p, ok := v.pending[addr]
	if !ok || v.closed {
		v.mu.Unlock()
		return
	}
	p.remaining--
	if p.remaining > 0 {
		p.timer = v.config.Clock.AfterFunc(v.config.TickInterval, func() { v.tick(addr) })
		v.mu.Unlock()
		return
	}
	delete(v.pending, addr)
	v.mu.Unlock()

	v.commit(addr)
}

// commit writes the completion back to text: fresh read, address and
// shape checks, checkbox set, completion tag replaced with today's
// date. Failures abort silently per the error taxonomy; the debounce
// and TTL machinery re-reads fresh state later.
func (v *View) commit(addr task.Address) {
	ctx := context.Background()
	today := v.config.Today()

	content, err := v.store.ReadFresh(ctx, addr.Path)
	if err != nil {
		v.config.Logger.Printf("Commit aborted, cannot read %s: %v", addr.Path, err)
		return
	}

	lines := strings.Split(content, "\n")
	if addr.Line < 0 || addr.Line >= len(lines) {
		// Stale address: the document shrank since the scan.
		v.config.Logger.Printf("Commit aborted, stale address %s", addr)
		return
	}

	rewritten, ok := task.Complete(lines[addr.Line], today)
	if !ok {
		// Parse mismatch: the line is no longer a task.
		v.config.Logger.Printf("Commit aborted, %s is no longer a task line", addr)
		return
	}
	if rewritten == lines[addr.Line] {
		return
	}

	lines[addr.Line] = rewritten
	if err := v.store.Write(ctx, addr.Path, strings.Join(lines, "\n")); err != nil {
		v.config.Logger.Printf("Commit failed for %s: %v", addr, err)
		return
	}

	v.cache.NoteInternalUpdate()
	v.cache.Invalidate()

	v.mu.Lock()
	for i := range v.current {
		if v.current[i].Address() == addr {
			v.current[i].Completed = true
			v.current[i].CompletedDate = today
		}
	}
	content2, changed := v.composeLocked()
	v.mu.Unlock()

	if changed {
		v.emit(content2)
	}
	v.config.Logger.Printf("Committed completion for %s", addr)
}

// ApplyEdit commits a modal-form edit immediately and broadcasts a
// refresh-all, since description and priority changes cannot be patched
// incrementally by other views.
func (v *View) ApplyEdit(addr task.Address, edit Edit) error {
	ctx := context.Background()

	content, err := v.store.ReadFresh(ctx, addr.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", addr.Path, err)
	}

	lines := strings.Split(content, "\n")
	if addr.Line < 0 || addr.Line >= len(lines) {
		return fmt.Errorf("stale address %s", addr)
	}

	rewritten, ok := task.ApplyEdit(lines[addr.Line], edit.Description, edit.Completed, edit.Priority, v.config.Today())
	if !ok {
		return fmt.Errorf("%s is no longer a task line", addr)
	}

	if rewritten != lines[addr.Line] {
		lines[addr.Line] = rewritten
		if err := v.store.Write(ctx, addr.Path, strings.Join(lines, "\n")); err != nil {
			return fmt.Errorf("failed to write %s: %w", addr.Path, err)
		}
		v.cache.NoteInternalUpdate()
		v.cache.Invalidate()
	}

	v.bus.PublishRefresh()
	return nil
}

// emit delivers rendered content to the sink, recovering any panic at
// the view boundary so one broken sink cannot crash sibling views. A
// failed render is replaced with an inline error message.
func (v *View) emit(content string) {
	defer func() {
		if r := recover(); r != nil {
			v.config.Logger.Printf("Render failed for view %q: %v", v.name, r)
			func() {
				defer func() { _ = recover() }()
				v.render(v.name, fmt.Sprintf("render error: %v", r))
			}()
		}
	}()
	v.render(v.name, content)
}
