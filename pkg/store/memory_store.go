package store

import (
	"context"
	"fmt"
	"sync"

	"tobiascms/pkg/channel"
)

// MemoryStore keeps records in-process. It backs tests and the
// single-node development mode, and follows the same contract as the
// Postgres store: client-chosen ids, insertion order, change events
// published after each write.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[string][]Fields
	notifier channel.Channel
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(notifier channel.Channel) *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Fields), notifier: notifier}
}

// List returns all records of a table in insertion order.
func (m *MemoryStore) List(_ context.Context, table string) ([]Fields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.tables[table]
	out := make([]Fields, 0, len(records))
	for _, r := range records {
		out = append(out, cloneFields(r))
	}
	return out, nil
}

// Upsert stores or replaces a record and returns the stored value.
func (m *MemoryStore) Upsert(ctx context.Context, table string, record Fields) (Fields, error) {
	id := recordID(record)
	if id == "" {
		return nil, fmt.Errorf("record id required")
	}
	stored := cloneFields(record)

	m.mu.Lock()
	eventType := channel.EventInsert
	records := m.tables[table]
	replaced := false
	for i, r := range records {
		if recordID(r) == id {
			records[i] = stored
			eventType = channel.EventUpdate
			replaced = true
			break
		}
	}
	if !replaced {
		m.tables[table] = append(records, stored)
	}
	m.mu.Unlock()

	publish(ctx, m.notifier, channel.Event{Type: eventType, Table: table, New: cloneFields(stored)})
	return cloneFields(stored), nil
}

// Delete removes a record by id.
func (m *MemoryStore) Delete(ctx context.Context, table, id string) error {
	m.mu.Lock()
	records := m.tables[table]
	found := false
	filtered := records[:0]
	for _, r := range records {
		if recordID(r) == id {
			found = true
			continue
		}
		filtered = append(filtered, r)
	}
	m.tables[table] = filtered
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("delete %s/%s: %w", table, id, ErrRecordMissing)
	}
	publish(ctx, m.notifier, channel.Event{Type: channel.EventDelete, Table: table, Old: &channel.Ref{ID: id}})
	return nil
}

func cloneFields(record Fields) Fields {
	out := make(Fields, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}
