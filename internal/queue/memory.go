package queue

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue is a channel-backed queue for local development and
// tests. Jobs only reach consumers in the same process.
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// NewMemoryQueue returns an in-process queue with the given capacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{ch: make(chan []byte, capacity)}
}

func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	body, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return errors.New("queue closed")
	}
	select {
	case q.ch <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) ([]Delivery, error) {
	select {
	case body, ok := <-q.ch:
		if !ok {
			return nil, errors.New("queue closed")
		}
		d := Delivery{
			Body: body,
			Ack:  func() error { return nil },
			Nack: func() error {
				q.mu.Lock()
				defer q.mu.Unlock()
				if q.closed {
					return errors.New("queue closed")
				}
				select {
				case q.ch <- body:
					return nil
				default:
					return errors.New("queue full")
				}
			},
		}
		return []Delivery{d}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Ping(context.Context) error { return nil }

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
