package queue

import "context"

// Client sends analysis job messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// Delivery is one claimed queue item. Ack removes it from the backend;
// Nack returns it to the backend's failure handling (DLQ, redelivery,
// or nothing, depending on the broker).
type Delivery struct {
	Body []byte
	Ack  func() error
	Nack func() error
}

// Consumer receives deliveries from a queue backend. Receive blocks until
// at least one delivery arrives, the poll window elapses (returning an
// empty slice), or ctx is done.
type Consumer interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Close() error
}

// Pinger reports broker reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
