package events

import (
	"context"
	"sync"
)

// Sink persists flushed events.
type Sink interface {
	Write(ctx context.Context, batch []Event) error
	// Truncate drops every event of runID with a sequence number above seq.
	Truncate(ctx context.Context, runID string, seq uint64) error
	Close() error
}

// Discard drops everything.
type Discard struct{}

func (Discard) Write(context.Context, []Event) error           { return nil }
func (Discard) Truncate(context.Context, string, uint64) error { return nil }
func (Discard) Close() error                                   { return nil }

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Write(_ context.Context, batch []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, batch...)
	return nil
}

func (m *MemorySink) Truncate(_ context.Context, runID string, seq uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.RunID != runID || ev.Seq <= seq {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Events returns a copy of everything written, in write order.
func (m *MemorySink) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.events...)
}

// Count returns the number of events of typ.
func (m *MemorySink) Count(typ Type) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
