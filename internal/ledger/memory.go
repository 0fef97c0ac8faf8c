package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and dry runs. Failure injection
// mirrors how the real stores misbehave.
type MemoryStore struct {
	mu       sync.Mutex
	channels map[string][]Entry
	now      func() time.Time

	AppendErr error
	ReadErr   error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string][]Entry),
		now:      time.Now,
	}
}

// WithNowFunc overrides the timestamp source.
func (m *MemoryStore) WithNowFunc(now func() time.Time) *MemoryStore {
	if now != nil {
		m.now = now
	}
	return m
}

// Append records one entry in the channel.
func (m *MemoryStore) Append(_ context.Context, channel, message string) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel] = append(m.channels[channel], NewEntry(m.now(), message))
	return nil
}

// ReadAll returns a copy of the channel's entries.
func (m *MemoryStore) ReadAll(_ context.Context, channel string) ([]Entry, error) {
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.channels[channel]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Messages returns just the message column of a channel, oldest first.
func (m *MemoryStore) Messages(channel string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.channels[channel] {
		out = append(out, e.Message)
	}
	return out
}
