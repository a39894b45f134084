package sync

import (
	"fmt"
	gosync "sync"
)

// Op names the kind of in-flight operation.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type pendingOp[T any] struct {
	kind     Op
	snapshot *T  // prior record for update/delete, nil for add
	index    int // list position of the snapshot, -1 when unknown
}

// Ledger tracks at most one pending operation per entity id, holding
// the snapshot to roll back to. An entry exists exactly while the
// operation is in flight.
type Ledger[T any] struct {
	mu  gosync.Mutex
	ops map[string]pendingOp[T]
}

// NewLedger initializes an empty ledger.
func NewLedger[T any]() *Ledger[T] {
	return &Ledger[T]{ops: make(map[string]pendingOp[T])}
}

// Begin records a pending operation. A second Begin for the same id
// before End fails with ErrConcurrentMutation.
func (l *Ledger[T]) Begin(id string, kind Op, snapshot *T, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.ops[id]; ok {
		return fmt.Errorf("%w: %s while %s is in flight", ErrConcurrentMutation, kind, prev.kind)
	}
	l.ops[id] = pendingOp[T]{kind: kind, snapshot: snapshot, index: index}
	return nil
}

// End clears the entry. Idempotent, so success and rollback paths can
// both attempt cleanup safely.
func (l *Ledger[T]) End(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ops, id)
}

// IsPending reports whether an operation is in flight for id.
func (l *Ledger[T]) IsPending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ops[id]
	return ok
}

// SnapshotOf returns the rollback snapshot and its original list
// position for a pending id.
func (l *Ledger[T]) SnapshotOf(id string) (*T, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	op, ok := l.ops[id]
	if !ok {
		return nil, -1, false
	}
	return op.snapshot, op.index, true
}
