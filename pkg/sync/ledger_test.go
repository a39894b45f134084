package sync

import (
	"errors"
	"testing"

	"tobiascms/pkg/domain"
)

func TestLedgerSingleOperationPerID(t *testing.T) {
	l := NewLedger[domain.Product]()
	if err := l.Begin("a", OpUpdate, &domain.Product{ID: "a"}, 0); err != nil {
		t.Fatalf("first begin: %v", err)
	}
	err := l.Begin("a", OpDelete, nil, -1)
	if !errors.Is(err, ErrConcurrentMutation) {
		t.Fatalf("second begin: got %v, want ErrConcurrentMutation", err)
	}
	// An unrelated id is not blocked.
	if err := l.Begin("b", OpAdd, nil, -1); err != nil {
		t.Fatalf("begin other id: %v", err)
	}
}

func TestLedgerEndIdempotent(t *testing.T) {
	l := NewLedger[domain.Product]()
	if err := l.Begin("a", OpAdd, nil, -1); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !l.IsPending("a") {
		t.Fatal("expected a pending")
	}
	l.End("a")
	l.End("a")
	if l.IsPending("a") {
		t.Fatal("expected a cleared")
	}
	if err := l.Begin("a", OpUpdate, nil, -1); err != nil {
		t.Fatalf("begin after end: %v", err)
	}
}

func TestLedgerSnapshotOf(t *testing.T) {
	l := NewLedger[domain.Product]()
	prior := domain.Product{ID: "a", Name: "Mascara", Stock: 5}
	if err := l.Begin("a", OpDelete, &prior, 2); err != nil {
		t.Fatalf("begin: %v", err)
	}
	snapshot, index, ok := l.SnapshotOf("a")
	if !ok || snapshot == nil {
		t.Fatal("expected snapshot for pending id")
	}
	if snapshot.Name != "Mascara" || index != 2 {
		t.Fatalf("snapshot = %+v at %d", *snapshot, index)
	}
	l.End("a")
	if _, _, ok := l.SnapshotOf("a"); ok {
		t.Fatal("expected no snapshot after end")
	}
}
