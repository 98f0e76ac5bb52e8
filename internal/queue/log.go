// Package queue provides the bounded in-process event log that decouples
// the poll cycle from stream subscribers. One writer appends; any number
// of readers tail independently by position.
package queue

import (
	"sync"

	"github.com/crimson-sun/sentinel/internal/model"
)

// DefaultCapacity bounds the log when no capacity is configured.
const DefaultCapacity = 10_000

// Entry is one flagged warning as it appears in the log. Entries are
// written once and never mutated.
type Entry struct {
	Position  uint64
	WarningID int64
	Category  string
	Payload   model.RawEvent
}

// Log is an append-only, capacity-bounded sequence of entries backed by a
// ring buffer. Positions are assigned monotonically starting at 0 and are
// never reused; once the log is full each append overwrites the oldest
// entry in place, so readers that fall behind see gaps rather than errors.
type Log struct {
	mu       sync.RWMutex
	capacity int
	base     uint64 // position of the oldest retained entry
	head     int    // ring index of the oldest retained entry
	buf      []Entry
}

// NewLog creates a Log holding at most capacity entries. Non-positive
// capacities fall back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity}
}

// Append adds one entry, assigns it the next position, and evicts the
// oldest entry if the log is full. Returns the assigned position. O(1):
// at steady state each append is a single in-place slot overwrite.
func (l *Log) Append(warningID int64, category string, payload model.RawEvent) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buf) < l.capacity {
		pos := l.base + uint64(len(l.buf))
		l.buf = append(l.buf, Entry{
			Position:  pos,
			WarningID: warningID,
			Category:  category,
			Payload:   payload,
		})
		return pos
	}

	pos := l.base + uint64(l.capacity)
	l.buf[l.head] = Entry{
		Position:  pos,
		WarningID: warningID,
		Category:  category,
		Payload:   payload,
	}
	l.head = (l.head + 1) % l.capacity
	l.base++
	return pos
}

// ReadFrom returns a copy of all entries at or after pos, in order, plus
// the position to resume from on the next call. Positions older than the
// oldest retained entry are clamped to it rather than treated as errors.
func (l *Log) ReadFrom(pos uint64) ([]Entry, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	next := l.base + uint64(len(l.buf))
	if pos >= next {
		return nil, next
	}
	if pos < l.base {
		pos = l.base
	}
	out := make([]Entry, next-pos)
	start := (l.head + int(pos-l.base)) % len(l.buf)
	n := copy(out, l.buf[start:])
	copy(out[n:], l.buf[:len(out)-n])
	return out, next
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

// Oldest returns the position of the oldest retained entry. Meaningful
// only when Len() > 0.
func (l *Log) Oldest() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base
}
