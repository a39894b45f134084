package sync

import (
	gosync "sync"

	"tobiascms/pkg/domain"
)

// Collection is the in-memory ordered state of one table. It is the
// only mutable shared resource: both the synchronizer (local writes)
// and the bridge (remote events) funnel through the replace-or-insert
// and remove primitives below, keeping merge logic in one place.
// Listeners receive a fresh snapshot after every mutation.
type Collection[T domain.Entity] struct {
	mu        gosync.RWMutex
	items     []T
	listeners map[int]func([]T)
	nextID    int
}

// NewCollection initializes an empty collection.
func NewCollection[T domain.Entity]() *Collection[T] {
	return &Collection[T]{listeners: make(map[int]func([]T))}
}

// Snapshot returns a copy of the current ordered records.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Collection[T]) snapshotLocked() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the record with the given id and its list position.
func (c *Collection[T]) Get(id string) (T, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i, item := range c.items {
		if item.EntityID() == id {
			return item, i, true
		}
	}
	var zero T
	return zero, -1, false
}

// Replace swaps in the full table contents from a bulk load.
func (c *Collection[T]) Replace(items []T) {
	c.mu.Lock()
	c.items = make([]T, len(items))
	copy(c.items, items)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snapshot)
}

// Upsert replaces the record with a matching id in place, or appends
// when absent. Order of existing records is preserved.
func (c *Collection[T]) Upsert(rec T) {
	c.mu.Lock()
	replaced := false
	for i, item := range c.items {
		if item.EntityID() == rec.EntityID() {
			c.items[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		c.items = append(c.items, rec)
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snapshot)
}

// InsertAt restores a record at a list position; out-of-range indexes
// append.
func (c *Collection[T]) InsertAt(index int, rec T) {
	c.mu.Lock()
	if index < 0 || index > len(c.items) {
		index = len(c.items)
	}
	c.items = append(c.items, rec)
	copy(c.items[index+1:], c.items[index:])
	c.items[index] = rec
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snapshot)
}

// Remove deletes the record with the given id, a no-op when absent.
func (c *Collection[T]) Remove(id string) {
	c.mu.Lock()
	filtered := c.items[:0]
	for _, item := range c.items {
		if item.EntityID() != id {
			filtered = append(filtered, item)
		}
	}
	c.items = filtered
	snapshot := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snapshot)
}

// Subscribe registers a snapshot listener; the returned function
// unsubscribes it.
func (c *Collection[T]) Subscribe(fn func([]T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Collection[T]) notify(snapshot []T) {
	c.mu.RLock()
	fns := make([]func([]T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}
