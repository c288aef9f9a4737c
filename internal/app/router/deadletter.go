package router

import (
	"sync"
	"time"
)

// DeadLetter receives notifications that exhausted their delivery retries.
type DeadLetter interface {
	Sink(n Notification, channel Channel, attempts int, lastErr error)
}

// DeadLetterEntry is one undeliverable notification retained for inspection.
type DeadLetterEntry struct {
	Notification Notification
	Channel      Channel
	Attempts     int
	LastError    string
	FailedAt     time.Time
}

// MemoryDeadLetter retains dead-lettered notifications in memory, bounded by
// capacity with oldest-first eviction.
type MemoryDeadLetter struct {
	mu       sync.Mutex
	capacity int
	entries  []DeadLetterEntry
}

// NewMemoryDeadLetter constructs a bounded in-memory dead-letter sink.
func NewMemoryDeadLetter(capacity int) *MemoryDeadLetter {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryDeadLetter{capacity: capacity}
}

// Sink records the failed notification.
func (d *MemoryDeadLetter) Sink(n Notification, channel Channel, attempts int, lastErr error) {
	entry := DeadLetterEntry{
		Notification: n,
		Channel:      channel,
		Attempts:     attempts,
		FailedAt:     time.Now(),
	}
	if lastErr != nil {
		entry.LastError = lastErr.Error()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.entries) >= d.capacity {
		d.entries = d.entries[1:]
	}
	d.entries = append(d.entries, entry)
}

// List returns a copy of the retained entries, oldest first.
func (d *MemoryDeadLetter) List() []DeadLetterEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DeadLetterEntry(nil), d.entries...)
}

// Len reports the number of retained entries.
func (d *MemoryDeadLetter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

var _ DeadLetter = (*MemoryDeadLetter)(nil)
