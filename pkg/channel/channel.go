package channel

import "context"

// EventType matches the record store's change feed event names.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Ref identifies the record a DELETE event removed.
type Ref struct {
	ID string `json:"id"`
}

// Event is one change notification for a table. New carries the full
// record (app naming convention) for INSERT/UPDATE; Old carries the id
// for DELETE. Delivery is at-least-once and not ordered relative to the
// local write's own completion; every listener receives the event,
// including the one whose write caused it.
type Event struct {
	Type  EventType      `json:"eventType"`
	Table string         `json:"table"`
	New   map[string]any `json:"new,omitempty"`
	Old   *Ref           `json:"old,omitempty"`
}

// Channel delivers change notifications per table. Subscribe returns a
// cancel function that stops delivery and releases the subscription.
type Channel interface {
	Subscribe(ctx context.Context, table string, fn func(Event)) (func(), error)
	Publish(ctx context.Context, ev Event) error
}
