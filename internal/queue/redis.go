package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pollWindow bounds a single blocking receive so consumers can observe
// shutdown between polls.
const pollWindow = 5 * time.Second

// RedisQueue sends and receives job messages over a Redis list, the same
// broker shape the original deployment used. BRPOP removes the item on
// claim, so redelivery after a worker crash is not provided by this
// backend; the reconciliation sweep covers records orphaned that way.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to Redis and verifies reachability.
func NewRedisQueue(ctx context.Context, url, queueName string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{client: client, key: queueName}, nil
}

// Send pushes a message onto the queue list.
func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", q.key, err)
	}
	return nil
}

// Receive blocks on the queue list for up to the poll window.
func (q *RedisQueue) Receive(ctx context.Context) ([]Delivery, error) {
	res, err := q.client.BRPop(ctx, pollWindow, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis brpop %s: %w", q.key, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, nil
	}

	body := []byte(res[1])
	return []Delivery{{
		Body: body,
		Ack:  func() error { return nil },
		Nack: func() error {
			// Push the item back so another attempt can claim it.
			return q.client.LPush(context.Background(), q.key, body).Err()
		},
	}}, nil
}

// Ping reports broker reachability.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var (
	_ Client   = (*RedisQueue)(nil)
	_ Consumer = (*RedisQueue)(nil)
	_ Pinger   = (*RedisQueue)(nil)
)
