package channel

import (
	"context"
	"sync"
)

// LocalChannel is an in-process fanout used by tests and single-node
// deployments. Events are delivered synchronously in the publisher's
// goroutine.
type LocalChannel struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Event) // table -> subscriber id -> fn
}

// NewLocalChannel initializes an empty in-process channel.
func NewLocalChannel() *LocalChannel {
	return &LocalChannel{subs: make(map[string]map[int]func(Event))}
}

// Subscribe registers fn for events on table.
func (c *LocalChannel) Subscribe(_ context.Context, table string, fn func(Event)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[table] == nil {
		c.subs[table] = make(map[int]func(Event))
	}
	id := c.nextID
	c.nextID++
	c.subs[table][id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[table], id)
	}, nil
}

// Publish delivers ev to all subscribers of its table.
func (c *LocalChannel) Publish(_ context.Context, ev Event) error {
	c.mu.RLock()
	fns := make([]func(Event), 0, len(c.subs[ev.Table]))
	for _, fn := range c.subs[ev.Table] {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}
