// Package editor defines the live editor buffer contract and an
// in-memory implementation that mirrors writes back to the document
// store.
package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tasklens/internal/vault"
)

// Buffer is the live-editor collaborator: line-level access to the one
// currently open document plus change notification.
type Buffer interface {
	// Path identifies the open document.
	Path() string

	// LineCount returns the number of lines in the buffer.
	LineCount() int

	// Line returns line i. Errors on out-of-range indices.
	Line(i int) (string, error)

	// SetLine replaces line i. Errors on out-of-range indices.
	SetLine(i int, text string) error

	// OnChange registers a change subscriber and returns its cancel
	// func. Subscribers fire on every mutation, including SetLine.
	OnChange(fn func()) (cancel func())
}

type changeSub struct {
	id int
	fn func()
}

// MemoryBuffer is an in-memory line buffer. When a store is attached,
// every mutation writes the whole document through so the buffer and
// the vault never diverge, matching a host editor that persists its
// open file.
type MemoryBuffer struct {
	path string

	mu     sync.Mutex
	lines  []string
	store  vault.Store
	nextID int
	subs   []changeSub
}

// NewMemoryBuffer creates a buffer holding content for the document at
// path.
func NewMemoryBuffer(path, content string) *MemoryBuffer {
	return &MemoryBuffer{
		path:  path,
		lines: strings.Split(content, "\n"),
	}
}

// AttachStore enables write-through to the given store.
func (b *MemoryBuffer) AttachStore(store vault.Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
}

// Path implements Buffer.Path.
func (b *MemoryBuffer) Path() string {
	return b.path
}

// LineCount implements Buffer.LineCount.
func (b *MemoryBuffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Line implements Buffer.Line.
func (b *MemoryBuffer) Line(i int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.lines) {
		return "", fmt.Errorf("line %d out of range (0..%d)", i, len(b.lines)-1)
	}
	return b.lines[i], nil
}

// SetLine implements Buffer.SetLine.
func (b *MemoryBuffer) SetLine(i int, text string) error {
	b.mu.Lock()
	if i < 0 || i >= len(b.lines) {
		b.mu.Unlock()
		return fmt.Errorf("line %d out of range (0..%d)", i, len(b.lines)-1)
	}
	if b.lines[i] == text {
		b.mu.Unlock()
		return nil
	}
	b.lines[i] = text
	err := b.flushLocked()
	subs := b.copySubsLocked()
	b.mu.Unlock()

	notify(subs)
	return err
}

// SetText replaces the whole buffer, as a host editor does when the
// user types.
func (b *MemoryBuffer) SetText(content string) {
	b.mu.Lock()
	b.lines = strings.Split(content, "\n")
	_ = b.flushLocked()
	subs := b.copySubsLocked()
	b.mu.Unlock()

	notify(subs)
}

// Content returns the buffer joined back into document text.
func (b *MemoryBuffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, "\n")
}

// OnChange implements Buffer.OnChange.
func (b *MemoryBuffer) OnChange(fn func()) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, changeSub{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *MemoryBuffer) flushLocked() error {
	if b.store == nil {
		return nil
	}
	return b.store.Write(context.Background(), b.path, strings.Join(b.lines, "\n"))
}

func (b *MemoryBuffer) copySubsLocked() []changeSub {
	subs := make([]changeSub, len(b.subs))
	copy(subs, b.subs)
	return subs
}

func notify(subs []changeSub) {
	for _, s := range subs {
		s.fn()
	}
}
