package channel

import (
	"context"
	"testing"
)

func TestLocalChannelFanout(t *testing.T) {
	ch := NewLocalChannel()
	ctx := context.Background()

	var first, second, other int
	if _, err := ch.Subscribe(ctx, "products", func(Event) { first++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	unsubscribe, err := ch.Subscribe(ctx, "products", func(Event) { second++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := ch.Subscribe(ctx, "services", func(Event) { other++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ch.Publish(ctx, Event{Type: EventInsert, Table: "products"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first != 1 || second != 1 || other != 0 {
		t.Fatalf("delivery counts = %d/%d/%d", first, second, other)
	}

	unsubscribe()
	if err := ch.Publish(ctx, Event{Type: EventInsert, Table: "products"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first != 2 || second != 1 {
		t.Fatalf("delivery counts after unsubscribe = %d/%d", first, second)
	}
}
