package store

import (
	"context"

	"tobiascms/pkg/channel"
)

// Fields is a record in the application's naming convention: camelCase
// keys, JSON-serializable scalar values, "id" always present.
type Fields = map[string]any

// RecordStore defines persistence for the content tables. Upsert
// accepts a client-chosen id and returns the authoritative stored
// record. Implementations translate between the application's camelCase
// keys and the store's snake_case columns uniformly on write and read.
type RecordStore interface {
	List(ctx context.Context, table string) ([]Fields, error)
	Upsert(ctx context.Context, table string, record Fields) (Fields, error)
	Delete(ctx context.Context, table, id string) error
}

// publish emits a change event after a successful write, so connected
// sessions (including the writer itself) learn about the change.
func publish(ctx context.Context, ch channel.Channel, ev channel.Event) {
	if ch == nil {
		return
	}
	// Change delivery is best-effort; the write already succeeded.
	_ = ch.Publish(ctx, ev)
}

func recordID(record Fields) string {
	id, _ := record["id"].(string)
	return id
}
