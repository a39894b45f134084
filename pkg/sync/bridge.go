package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"tobiascms/pkg/channel"
)

// DefaultSubscribeDelay is how long the bridge waits after the initial
// bulk load before subscribing, so a push event cannot arrive for a
// table whose snapshot has not populated the collection yet. A fixed
// delay is the observed contract of the system this replaces; a
// load-returned watermark would remove the timing guess.
const DefaultSubscribeDelay = 2 * time.Second

const resubscribeInterval = 5 * time.Second

// EventSink consumes remote change events. Both the collection
// synchronizer and the singleton implement it.
type EventSink interface {
	ApplyRemote(ev channel.Event)
}

// ConnectionState is per-table subscription health, purely for UI
// status display. It never gates whether mutations are attempted.
type ConnectionState struct {
	Connected   bool       `json:"connected"`
	LastEventAt *time.Time `json:"lastEventAt,omitempty"`
}

// Bridge subscribes to one table's change feed and folds events into
// the local state through the sink.
type Bridge struct {
	table  string
	ch     channel.Channel
	sink   EventSink
	delay  time.Duration
	logger *slog.Logger

	mu     gosync.Mutex
	state  ConnectionState
	cancel func()
	done   chan struct{}
}

// NewBridge wires a bridge for one table. A non-positive delay uses
// DefaultSubscribeDelay.
func NewBridge(table string, ch channel.Channel, sink EventSink, delay time.Duration) *Bridge {
	if delay <= 0 {
		delay = DefaultSubscribeDelay
	}
	return &Bridge{
		table:  table,
		ch:     ch,
		sink:   sink,
		delay:  delay,
		logger: slog.Default().With("table", table),
	}
}

// Start begins the deferred subscription. It returns immediately; the
// subscription is established in the background and re-established on
// failure until ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.mu.Lock()
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.delay):
		}
		for {
			unsubscribe, err := b.ch.Subscribe(ctx, b.table, b.handle)
			if err == nil {
				b.setConnected(true)
				<-ctx.Done()
				unsubscribe()
				b.setConnected(false)
				return
			}
			b.setConnected(false)
			b.logger.Warn("change subscription failed, retrying", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeInterval):
			}
		}
	}()
}

// Stop tears the subscription down and waits for the worker to exit.
func (b *Bridge) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// State returns the current subscription health.
func (b *Bridge) State() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) handle(ev channel.Event) {
	now := time.Now().UTC()
	b.mu.Lock()
	b.state.Connected = true
	b.state.LastEventAt = &now
	b.mu.Unlock()
	b.sink.ApplyRemote(ev)
}

func (b *Bridge) setConnected(connected bool) {
	b.mu.Lock()
	b.state.Connected = connected
	b.mu.Unlock()
}
