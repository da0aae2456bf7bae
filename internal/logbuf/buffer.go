// Package logbuf stores a project's captured output lines.
//
// A Buffer is a fixed-capacity ring: once full, every append evicts the
// oldest line. Each appended line gets a sequence number; a reader keeps the
// cursor returned by Since and passes it back to receive only newer lines,
// so concurrent appends never cause re-reads. Sequence numbers keep growing
// across Reset, which lets a reader follow a project through restarts.
package logbuf

import "sync"

// DefaultCapacity is the number of lines retained per project.
const DefaultCapacity = 1000

// Buffer is a bounded, append-only, concurrency-safe line store.
type Buffer struct {
	mu    sync.Mutex
	ring  []string
	start int
	size  int

	// next is the sequence number the next appended line will get.
	next uint64

	// changed is closed and replaced on every append or reset.
	changed chan struct{}
}

// New creates an empty Buffer holding at most capacity lines.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		ring:    make([]string, capacity),
		changed: make(chan struct{}),
	}
}

// Append adds a line, evicting the oldest one when the buffer is full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	b.pushLocked(line)
	b.next++
	b.broadcastLocked()
	b.mu.Unlock()
}

// Lines returns a copy of every retained line, oldest first.
func (b *Buffer) Lines() []string {
	lines, _ := b.Since(0)
	return lines
}

// Since returns the retained lines with sequence >= cursor, oldest first,
// and the cursor to pass on the next call. If lines before the oldest
// retained one were requested they have been evicted and are skipped.
func (b *Buffer) Since(cursor uint64) ([]string, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	first := b.next - uint64(b.size)
	if cursor < first {
		cursor = first
	}
	if cursor >= b.next {
		return nil, b.next
	}

	skip := int(cursor - first)
	out := make([]string, 0, b.size-skip)
	for i := skip; i < b.size; i++ {
		out = append(out, b.ring[(b.start+i)%len(b.ring)])
	}
	return out, b.next
}

// Cursor returns the sequence number the next appended line will get.
func (b *Buffer) Cursor() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Len returns the number of retained lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the maximum number of retained lines.
func (b *Buffer) Cap() int {
	return len(b.ring)
}

// Reset drops every retained line. The cursor is not rewound.
func (b *Buffer) Reset() {
	b.mu.Lock()
	for i := range b.ring {
		b.ring[i] = ""
	}
	b.start = 0
	b.size = 0
	b.broadcastLocked()
	b.mu.Unlock()
}

// Changed returns a channel that is closed at the next append or reset.
// Callers re-read with Since and then call Changed again.
func (b *Buffer) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.changed
}

func (b *Buffer) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Buffer) pushLocked(line string) {
	capacity := len(b.ring)
	if b.size < capacity {
		b.ring[(b.start+b.size)%capacity] = line
		b.size++
		return
	}

	// Overwrite oldest.
	b.ring[b.start] = line
	b.start = (b.start + 1) % capacity
}
