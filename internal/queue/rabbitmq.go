package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitQueue sends and receives job messages over an AMQP broker with a
// durable main queue dead-lettering into <queue>.dlq.
type RabbitQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	prefetch   int
	deliveries <-chan amqp.Delivery
}

// NewRabbitQueue dials the broker and declares the main queue and its DLQ.
func NewRabbitQueue(url, queueName string, prefetch int) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	dlq := queueName + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare dlq: %w", err)
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false).
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitQueue{conn: conn, ch: ch, queue: queueName, prefetch: prefetch}, nil
}

// Send publishes a persistent message to the main queue.
func (q *RabbitQueue) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode amqp message: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return q.ch.PublishWithContext(cctx,
		"",      // default exchange
		q.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Timestamp:    time.Now(),
		},
	)
}

// Receive pulls the next delivery from the broker-managed consume channel.
func (q *RabbitQueue) Receive(ctx context.Context) ([]Delivery, error) {
	if q.deliveries == nil {
		if err := q.ch.Qos(q.prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("amqp qos: %w", err)
		}
		deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("amqp consume: %w", err)
		}
		q.deliveries = deliveries
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-q.deliveries:
		if !ok {
			return nil, errors.New("amqp delivery channel closed")
		}
		return []Delivery{{
			Body: d.Body,
			Ack:  func() error { return d.Ack(false) },
			Nack: func() error { return d.Nack(false, false) },
		}}, nil
	case <-time.After(pollWindow):
		return nil, nil
	}
}

// Ping reports broker reachability.
func (q *RabbitQueue) Ping(ctx context.Context) error {
	_ = ctx
	if q.conn.IsClosed() {
		return errors.New("amqp connection closed")
	}
	return nil
}

// Close releases the channel and connection.
func (q *RabbitQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var (
	_ Client   = (*RabbitQueue)(nil)
	_ Consumer = (*RabbitQueue)(nil)
	_ Pinger   = (*RabbitQueue)(nil)
)
