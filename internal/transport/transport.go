// Package transport defines the pub/sub connection used to carry message
// payloads, an in-memory broker, and a decorator that seals every payload
// with a password-derived envelope before it leaves the process.
package transport

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("transport closed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNoHandler is returned when Subscribe is called without a handler.
	ErrNoHandler = errors.New("handler is required")
)

// Message is a payload delivered on a topic.
type Message struct {
	ID          string
	Topic       string
	Payload     []byte
	PublishedAt time.Time
}

// Handler is invoked for each message delivered to a subscription. A
// returned error is reported to the connection's error callback; delivery
// continues with the next message.
type Handler func(ctx context.Context, msg *Message) error

// Subscription is an active registration of a Handler on a topic.
type Subscription interface {
	// Topic returns the subscribed topic.
	Topic() string

	// Unsubscribe stops delivery. After it returns the handler is not
	// called again. It is idempotent.
	Unsubscribe() error
}

// Conn is a pub/sub connection. All implementations are safe for
// concurrent use.
type Conn interface {
	// Publish sends payload to every subscriber of topic and returns the
	// message ID.
	Publish(ctx context.Context, topic string, payload []byte) (string, error)

	// Subscribe registers handler for topic. Delivery is asynchronous and
	// in publish order per subscription.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close releases the connection. After Close returns no handler is
	// running or will be called.
	Close() error
}
