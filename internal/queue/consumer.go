package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartOrderConsumer consumes both order queues and writes one structured
// audit log line per event. It reconnects with exponential backoff and
// returns only when ctx is cancelled. Malformed messages are rejected
// without requeue so they cannot loop.
func StartOrderConsumer(ctx context.Context, url string, log *zap.Logger) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("order consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn("order consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("order consumer: set QoS failed", zap.Error(err))
	}

	var streams []<-chan amqp.Delivery
	for _, q := range []string{EventOrderPlaced, EventOrderCancelled} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		streams = append(streams, msgs)
	}

	placed, cancelled := streams[0], streams[1]
	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-placed:
		case d, ok = <-cancelled:
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := HandleMessage(d.Body, log); err != nil {
			log.Error("order consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
}

// HandleMessage decodes one event and writes it to the audit log.
func HandleMessage(body []byte, log *zap.Logger) error {
	var ev OrderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.OrderID == "" {
		return errors.New("event without order_id")
	}
	qty := 0
	for _, it := range ev.Items {
		qty += it.Quantity
	}
	log.Info("order audit",
		zap.String("event", ev.Type),
		zap.String("order_id", ev.OrderID),
		zap.String("user_id", ev.UserID),
		zap.String("user_name", ev.UserName),
		zap.String("actor_id", ev.ActorID),
		zap.Int("lines", len(ev.Items)),
		zap.Int("units", qty),
		zap.String("total", ev.TotalAmount),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}
