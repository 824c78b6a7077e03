package changes

import (
	"sync"

	"netwatch/pkg/models"
)

// DefaultCapacity is the event log size when none is configured.
const DefaultCapacity = 200

// Log is a bounded FIFO of change events. When full, the oldest events are
// overwritten first. Append is called by the scheduler only; readers get copies.
type Log struct {
	mu       sync.RWMutex
	entries  []models.ChangeEvent
	capacity int
	head     int
	total    int64
}

// NewLog creates a log holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]models.ChangeEvent, 0, capacity),
		capacity: capacity,
	}
}

// Append adds events in order, evicting the oldest when over capacity.
func (l *Log) Append(events ...models.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range events {
		if len(l.entries) < l.capacity {
			l.entries = append(l.entries, ev)
		} else {
			l.entries[l.head] = ev
		}
		l.head = (l.head + 1) % l.capacity
		l.total++
	}
}

// Recent returns up to limit events, most recent first. A limit <= 0 returns all.
func (l *Log) Recent(limit int) []models.ChangeEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ChangeEvent, 0, limit)
	// head is the slot after the newest entry, both before and after wrapping.
	for i := 1; i <= limit; i++ {
		idx := (l.head - i + l.capacity) % l.capacity
		out = append(out, l.entries[idx])
	}
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Total returns how many events were ever appended.
func (l *Log) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Capacity returns the configured bound.
func (l *Log) Capacity() int {
	return l.capacity
}
