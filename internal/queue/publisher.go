package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher delivers order events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// NopPublisher drops every event. It is used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// AMQPPublisher publishes persistent JSON messages to a durable queue named
// after the event type, through the default exchange. The connection is
// dialled lazily and re-dialled after it closes.
type AMQPPublisher struct {
	url string
	log *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewAMQPPublisher(url string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: log}
}

func (p *AMQPPublisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	conn, err := p.connection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", ev.Type, err)
	}
	err = ch.PublishWithContext(ctx, "", ev.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.OrderID,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID))
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	return p.conn.Close()
}

// Encode renders an event as its wire JSON.
func Encode(ev OrderEvent) ([]byte, error) {
	if ev.Type != EventOrderPlaced && ev.Type != EventOrderCancelled {
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return json.Marshal(ev)
}
