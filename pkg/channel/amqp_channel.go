package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel implements Channel over a RabbitMQ fanout exchange per
// table. Each subscriber gets its own exclusive auto-delete queue, so
// every listener (the publishing session included) receives every event.
type AMQPChannel struct {
	conn   *amqp.Connection
	prefix string
	logger *slog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

// NewAMQPChannel dials the broker. Prefix defaults to "changes".
func NewAMQPChannel(url, prefix string) (*AMQPChannel, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "changes"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &AMQPChannel{conn: conn, prefix: prefix, pub: pub, logger: slog.Default()}, nil
}

func (c *AMQPChannel) exchangeName(table string) string {
	return c.prefix + "." + table
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, "fanout", false, false, false, false, nil)
}

// Subscribe binds a fresh exclusive queue to the table's exchange.
func (c *AMQPChannel) Subscribe(ctx context.Context, table string, fn func(Event)) (func(), error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	exchange := c.exchangeName(table)
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					c.logger.Warn("drop malformed change event", "table", table, "err", err)
					continue
				}
				fn(ev)
			}
		}
	}()
	return func() { _ = ch.Close() }, nil
}

// Publish sends ev to the table's fanout exchange.
func (c *AMQPChannel) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	exchange := c.exchangeName(ev.Table)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := declareExchange(c.pub, exchange); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	err = c.pub.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Close shuts down the broker connection.
func (c *AMQPChannel) Close() error {
	return c.conn.Close()
}
