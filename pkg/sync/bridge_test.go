package sync

import (
	"context"
	"testing"
	"time"

	"tobiascms/pkg/channel"
	"tobiascms/pkg/domain"
	"tobiascms/pkg/store"
)

func remoteInsert(id string, fields store.Fields) channel.Event {
	merged := store.Fields{"id": id}
	for k, v := range fields {
		merged[k] = v
	}
	return channel.Event{Type: channel.EventInsert, Table: "products", New: merged}
}

func remoteUpdate(id string, fields store.Fields) channel.Event {
	ev := remoteInsert(id, fields)
	ev.Type = channel.EventUpdate
	return ev
}

func remoteDelete(id string) channel.Event {
	return channel.Event{Type: channel.EventDelete, Table: "products", Old: &channel.Ref{ID: id}}
}

func TestApplyRemoteInsertIdempotent(t *testing.T) {
	s, _, _ := newTestEngine(t, newHookStore())

	ev := remoteInsert("a", store.Fields{"name": "Mascara", "stock": 5})
	s.ApplyRemote(ev)
	s.ApplyRemote(ev)

	snapshot := s.Collection().Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("duplicate insert produced %d records", len(snapshot))
	}
	if snapshot[0].Name != "Mascara" || snapshot[0].Stock != 5 {
		t.Fatalf("merged record = %+v", snapshot[0])
	}
}

func TestApplyRemoteUpdateReplacesRecord(t *testing.T) {
	s, _, _ := newTestEngine(t, newHookStore())
	s.Collection().Replace([]domain.Product{{ID: "a", Name: "Mascara", Stock: 5}})

	s.ApplyRemote(remoteUpdate("a", store.Fields{"name": "Mascara", "stock": 2}))
	if got, _, _ := s.Collection().Get("a"); got.Stock != 2 {
		t.Fatalf("record after remote update = %+v", got)
	}

	// An update for an id this session has never seen is absorbed as an
	// insert, since the missed insert event will not be redelivered.
	s.ApplyRemote(remoteUpdate("b", store.Fields{"name": "Lipstick"}))
	if _, _, ok := s.Collection().Get("b"); !ok {
		t.Fatal("remote update for unseen id dropped")
	}
}

func TestApplyRemoteDelete(t *testing.T) {
	s, _, _ := newTestEngine(t, newHookStore())
	s.Collection().Replace([]domain.Product{{ID: "a"}, {ID: "b"}})

	s.ApplyRemote(remoteDelete("a"))
	assertOrder(t, s.Collection().Snapshot(), "b")

	// Deleting an unknown id is a no-op, not an error.
	s.ApplyRemote(remoteDelete("nope"))
	assertOrder(t, s.Collection().Snapshot(), "b")
}

func TestApplyRemoteYieldsToPendingLocalOperation(t *testing.T) {
	rec := newHookStore()
	rec.gate = make(chan struct{})
	rec.entered = make(chan struct{})
	s, _, _ := newTestEngine(t, rec)
	s.Collection().Replace([]domain.Product{{ID: "a", Name: "Mascara", Stock: 5}})
	if _, err := rec.inner.Upsert(context.Background(), "products", store.Fields{"id": "a", "name": "Mascara", "stock": 5}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "a", map[string]any{"stock": 3}, nil)
		done <- err
	}()
	<-rec.entered

	// The echo of another session's write arrives mid-flight; the local
	// pending value must win until the operation resolves.
	s.ApplyRemote(remoteUpdate("a", store.Fields{"name": "Mascara", "stock": 99}))
	if got, _, _ := s.Collection().Get("a"); got.Stock != 3 {
		t.Fatalf("remote event overwrote pending local value: %+v", got)
	}
	s.ApplyRemote(remoteDelete("a"))
	if _, _, ok := s.Collection().Get("a"); !ok {
		t.Fatal("remote delete removed record with pending local operation")
	}

	close(rec.gate)
	if err := <-done; err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, _, _ := s.Collection().Get("a"); got.Stock != 3 {
		t.Fatalf("final record = %+v", got)
	}
}

func TestApplyRemoteDropsMalformedEvents(t *testing.T) {
	s, _, _ := newTestEngine(t, newHookStore())
	s.Collection().Replace([]domain.Product{{ID: "a", Name: "Mascara"}})

	s.ApplyRemote(channel.Event{Type: channel.EventInsert, Table: "products", New: store.Fields{"name": "no id"}})
	s.ApplyRemote(channel.Event{Type: channel.EventUpdate, Table: "products", New: store.Fields{"id": "a", "stock": "not a number"}})
	s.ApplyRemote(channel.Event{Type: channel.EventDelete, Table: "products"})
	s.ApplyRemote(channel.Event{Type: "TRUNCATE", Table: "products"})

	snapshot := s.Collection().Snapshot()
	if len(snapshot) != 1 || snapshot[0].Name != "Mascara" {
		t.Fatalf("malformed events changed state: %+v", snapshot)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestBridgeSubscribesAfterDelay(t *testing.T) {
	ch := channel.NewLocalChannel()
	s, _, _ := newTestEngine(t, newHookStore())
	b := NewBridge("products", ch, s, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Start(ctx)
	defer b.Stop()

	// Events published inside the settle window are lost by contract;
	// the bulk load that precedes Start already covers them.
	if err := ch.Publish(ctx, remoteInsert("early", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, _, ok := s.Collection().Get("early"); ok {
		t.Fatal("event delivered before the subscribe delay elapsed")
	}

	waitFor(t, time.Second, func() bool { return b.State().Connected })
	if err := ch.Publish(ctx, remoteInsert("a", store.Fields{"name": "Mascara"})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		_, _, ok := s.Collection().Get("a")
		return ok
	})
	if state := b.State(); state.LastEventAt == nil {
		t.Fatal("last event time not recorded")
	}
}

func TestBridgeStopDisconnects(t *testing.T) {
	ch := channel.NewLocalChannel()
	s, _, _ := newTestEngine(t, newHookStore())
	b := NewBridge("products", ch, s, time.Millisecond)

	b.Start(context.Background())
	waitFor(t, time.Second, func() bool { return b.State().Connected })
	b.Stop()

	if b.State().Connected {
		t.Fatal("bridge still reports connected after stop")
	}
	if err := ch.Publish(context.Background(), remoteInsert("a", nil)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, _, ok := s.Collection().Get("a"); ok {
		t.Fatal("event delivered after stop")
	}
}
