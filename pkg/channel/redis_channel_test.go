package channel

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisChannelRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ch, err := NewRedisChannel(mr.Addr(), "", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	ctx := context.Background()
	received := make(chan Event, 1)
	unsubscribe, err := ch.Subscribe(ctx, "products", func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	sent := Event{
		Type:  EventUpdate,
		Table: "products",
		New:   map[string]any{"id": "a", "name": "Mascara"},
	}
	if err := ch.Publish(ctx, sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != EventUpdate || got.Table != "products" || got.New["id"] != "a" {
			t.Fatalf("received event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestRedisChannelTableIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	ch, err := NewRedisChannel(mr.Addr(), "", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	ctx := context.Background()
	received := make(chan Event, 1)
	unsubscribe, err := ch.Subscribe(ctx, "products", func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if err := ch.Publish(ctx, Event{Type: EventInsert, Table: "services", New: map[string]any{"id": "s1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := ch.Publish(ctx, Event{Type: EventInsert, Table: "products", New: map[string]any{"id": "p1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Table != "products" || got.New["id"] != "p1" {
			t.Fatalf("crossed tables: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case got := <-received:
		t.Fatalf("unexpected second event: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisChannelMalformedPayloadDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	ch, err := NewRedisChannel(mr.Addr(), "", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close()

	ctx := context.Background()
	received := make(chan Event, 1)
	unsubscribe, err := ch.Subscribe(ctx, "products", func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	mr.Publish("changes:products", "{not json")
	if err := ch.Publish(ctx, Event{Type: EventInsert, Table: "products", New: map[string]any{"id": "p1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.New["id"] != "p1" {
			t.Fatalf("received event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event not delivered after malformed one")
	}
}
