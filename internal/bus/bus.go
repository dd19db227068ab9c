// Package bus provides the in-process change broadcaster shared by the
// editor watcher, views, vault watcher and dashboard.
//
// Two event kinds flow through it: per-task status flips, delivered
// synchronously so views can update ahead of any cache rebuild, and
// refresh-all signals for structural edits the cache cannot patch
// incrementally. One Bus instance is created at engine start and handed
// to every component; there is no package-level singleton.
package bus

import (
	"sync"

	"tasklens/internal/task"
)

// StatusChange notifies subscribers that a single task's checkbox state
// flipped in the live document.
type StatusChange struct {
	Addr task.Address
	Done bool
}

type statusSub struct {
	id int
	fn func(StatusChange)
}

type refreshSub struct {
	id int
	fn func()
}

// Bus fans events out to subscribers. Delivery is synchronous and in
// publish order per subscriber; no ordering is guaranteed across
// independent subscribers.
type Bus struct {
	mu          sync.Mutex
	nextID      int
	statusSubs  []statusSub
	refreshSubs []refreshSub
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// OnStatusChange registers a status-change subscriber and returns its
// cancel func. The callback runs on the publisher's goroutine and must
// not block.
func (b *Bus) OnStatusChange(fn func(StatusChange)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.statusSubs = append(b.statusSubs, statusSub{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.statusSubs {
			if s.id == id {
				b.statusSubs = append(b.statusSubs[:i], b.statusSubs[i+1:]...)
				return
			}
		}
	}
}

// OnRefresh registers a refresh-all subscriber and returns its cancel
// func.
func (b *Bus) OnRefresh(fn func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.refreshSubs = append(b.refreshSubs, refreshSub{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.refreshSubs {
			if s.id == id {
				b.refreshSubs = append(b.refreshSubs[:i], b.refreshSubs[i+1:]...)
				return
			}
		}
	}
}

// PublishStatus delivers a status change to every subscriber before
// returning. Callbacks are invoked outside the bus lock so a subscriber
// may unsubscribe itself.
func (b *Bus) PublishStatus(sc StatusChange) {
	b.mu.Lock()
	subs := make([]statusSub, len(b.statusSubs))
	copy(subs, b.statusSubs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(sc)
	}
}

// PublishRefresh signals every subscriber that everything may have
// changed.
func (b *Bus) PublishRefresh() {
	b.mu.Lock()
	subs := make([]refreshSub, len(b.refreshSubs))
	copy(subs, b.refreshSubs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn()
	}
}
