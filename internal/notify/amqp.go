package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "topic"

// broker owns one AMQP connection and channel and redials when either
// has been closed.
type broker struct {
	url      string
	exchange string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func dialBroker(url, exchange string) (*broker, error) {
	b := &broker{url: url, exchange: exchange}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureConnection(); err != nil {
		return nil, err
	}
	return b, nil
}

// ensureConnection must be called with b.mu held.
func (b *broker) ensureConnection() error {
	if b.conn != nil && !b.conn.IsClosed() && b.channel != nil && !b.channel.IsClosed() {
		return nil
	}
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp.Dial(b.url)
		if err != nil {
			return fmt.Errorf("dial rabbitmq: %w", err)
		}
		b.conn = conn
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(b.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
	}
	b.channel = ch
	return nil
}

func (b *broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.channel != nil && !b.channel.IsClosed() {
		errs = append(errs, b.channel.Close())
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}

// Publisher is a Notifier that publishes each message as JSON to a durable
// topic exchange under RoutingKey.
type Publisher struct {
	b *broker
}

// NewPublisher connects to RabbitMQ and declares the exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	b, err := dialBroker(url, exchange)
	if err != nil {
		return nil, err
	}
	return &Publisher{b: b}, nil
}

func (p *Publisher) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if err := p.b.ensureConnection(); err != nil {
		return err
	}
	err = p.b.channel.PublishWithContext(ctx, p.b.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(msg.Kind),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	return p.b.Close()
}

// Consumer reads notifications from a queue bound to RoutingKey and hands
// them to a Notifier, typically a Mailer.
type Consumer struct {
	b     *broker
	queue string
}

// NewConsumer connects, declares the queue and binds it to the exchange.
func NewConsumer(url, exchange, queue string) (*Consumer, error) {
	b, err := dialBroker(url, exchange)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = b.conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := b.channel.QueueBind(queue, RoutingKey, exchange, false, nil); err != nil {
		_ = b.conn.Close()
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if err := b.channel.Qos(8, 0, false); err != nil {
		_ = b.conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	return &Consumer{b: b, queue: queue}, nil
}

// Run delivers messages to n until ctx is cancelled or the channel closes.
// Malformed bodies are rejected without requeue; delivery failures are
// logged and acknowledged so one bad address does not wedge the queue.
func (c *Consumer) Run(ctx context.Context, n Notifier) error {
	c.b.mu.Lock()
	deliveries, err := c.b.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	c.b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handleDelivery(ctx, d.Body, n); err != nil {
				log.Printf("ERROR: notification dropped: %v", err)
				if errors.Is(err, errMalformed) {
					_ = d.Reject(false)
					continue
				}
			}
			_ = d.Ack(false)
		}
	}
}

// Close releases the channel and connection.
func (c *Consumer) Close() error {
	return c.b.Close()
}

var errMalformed = errors.New("malformed notification")

func handleDelivery(ctx context.Context, body []byte, n Notifier) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.Kind == "" {
		return fmt.Errorf("%w: missing kind", errMalformed)
	}
	if err := n.Notify(ctx, msg); err != nil {
		return fmt.Errorf("deliver %s for event %s: %w", msg.Kind, msg.EventID, err)
	}
	return nil
}
