package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisChannel implements Channel over Redis pub/sub. Each table maps
// to one Redis channel; delivery is fire-and-forget, which matches the
// at-least-once, unordered contract of the change feed.
type RedisChannel struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisChannel connects to Redis. Prefix defaults to "changes".
func NewRedisChannel(addr, password, prefix string) (*RedisChannel, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "changes"
	}
	return &RedisChannel{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		logger: slog.Default(),
	}, nil
}

func (c *RedisChannel) channelName(table string) string {
	return c.prefix + ":" + table
}

// Subscribe listens on the table's Redis channel until cancelled.
func (c *RedisChannel) Subscribe(ctx context.Context, table string, fn func(Event)) (func(), error) {
	ps := c.client.Subscribe(ctx, c.channelName(table))
	// Force the subscription to be established before returning so a
	// caller-published event cannot be missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}
	go func() {
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.logger.Warn("drop malformed change event", "table", table, "err", err)
				continue
			}
			fn(ev)
		}
	}()
	return func() { _ = ps.Close() }, nil
}

// Publish broadcasts ev to all subscribers of its table.
func (c *RedisChannel) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := c.client.Publish(ctx, c.channelName(ev.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *RedisChannel) Close() error {
	return c.client.Close()
}
