// Package scrollback implements the bounded, append-only, line-oriented
// scrollback buffer used to replay history to a newly attached client
// or answer read_pane.
//
// Grounded on kojo's internal/session/ringbuffer.go (single mutex,
// fixed-capacity ring, Write/Bytes shape), re-expressed as a ring of
// complete lines instead of raw bytes per spec §4.2's "Maximum line
// count is configurable" contract — no pack library specializes in a
// bounded line log, so this part is stdlib-only and justified as such.
package scrollback

import "sync"

const DefaultMaxLines = 10000

// Buffer is a bounded ring of complete lines plus one in-progress
// "carry" line for bytes that haven't seen a trailing '\n' yet.
type Buffer struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
	start    int // index of the oldest line in lines (ring cursor)
	count    int // number of valid lines currently stored
	carry    []byte
}

// New creates a Buffer bounded to maxLines complete lines. A maxLines
// of 0 or less uses DefaultMaxLines.
func New(maxLines int) *Buffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Buffer{
		maxLines: maxLines,
		lines:    make([]string, maxLines),
	}
}

// PushBytes parses raw bytes into complete lines, preserving a mid-line
// carry across calls. Oldest lines are evicted silently once the buffer
// is full; this operation never fails.
func (b *Buffer) PushBytes(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	for i, c := range p {
		if c == '\n' {
			line := string(b.carry) + string(p[start:i])
			b.carry = nil
			b.appendLocked(line)
			start = i + 1
		}
	}
	if start < len(p) {
		b.carry = append(b.carry, p[start:]...)
	}
}

func (b *Buffer) appendLocked(line string) {
	idx := (b.start + b.count) % b.maxLines
	b.lines[idx] = line
	if b.count < b.maxLines {
		b.count++
	} else {
		b.start = (b.start + 1) % b.maxLines
	}
}

// LinesTail returns up to n of the most recent complete lines, oldest
// first. A non-positive n or n larger than the stored count returns
// everything available.
func (b *Buffer) LinesTail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]string, n)
	skip := b.count - n
	for i := 0; i < n; i++ {
		idx := (b.start + skip + i) % b.maxLines
		out[i] = b.lines[idx]
	}
	return out
}

// IterRange returns the complete lines whose 0-based position (relative
// to the oldest line currently retained) falls in [start, end).
func (b *Buffer) IterRange(start, end int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start < 0 {
		start = 0
	}
	if end > b.count {
		end = b.count
	}
	if start >= end {
		return nil
	}
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		idx := (b.start + i) % b.maxLines
		out = append(out, b.lines[idx])
	}
	return out
}

// Len returns the number of complete lines currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
