package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscription queue length.
const DefaultBufferSize = 64

// ErrorHandler receives errors returned by handlers or raised while
// processing a delivered message.
type ErrorHandler func(topic string, err error)

// Broker is an in-process Conn. Each subscription owns a queue and a
// goroutine, so a slow handler delays only its own subscription.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscription]struct{}
	closed  bool
	wg      sync.WaitGroup
	buffer  int
	logger  *slog.Logger
	onError ErrorHandler
	now     func() time.Time
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscription queue length.
func WithBufferSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithBrokerLogger sets the logger.
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithErrorHandler sets the callback for handler errors.
func WithErrorHandler(fn ErrorHandler) BrokerOption {
	return func(b *Broker) {
		b.onError = fn
	}
}

// NewBroker returns an empty Broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: DefaultBufferSize,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers a copy of payload to each current subscriber of topic.
// It blocks while a subscriber's queue is full, until ctx is done.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	if topic == "" {
		return "", ErrInvalidTopic
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return "", ErrClosed
	}
	targets := make([]*subscription, 0, len(b.subs[topic]))
	for s := range b.subs[topic] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	id := uuid.NewString()
	published := b.now()

	for _, s := range targets {
		msg := &Message{
			ID:          id,
			Topic:       topic,
			Payload:     append([]byte(nil), payload...),
			PublishedAt: published,
		}
		select {
		case s.queue <- msg:
		case <-s.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	b.logger.DebugContext(ctx, "message published",
		slog.String("topic", topic),
		slog.String("message_id", id),
		slog.Int("subscribers", len(targets)),
	)
	return id, nil
}

// Subscribe registers handler on topic. The subscription ends when ctx is
// done, Unsubscribe is called, or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	if handler == nil {
		return nil, ErrNoHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		broker:  b,
		topic:   topic,
		handler: handler,
		queue:   make(chan *Message, b.buffer),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}

	b.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

// Close ends every subscription and waits for running handlers to return.
// It must not be called from a handler.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			s.stop()
		}
	}
	b.subs = make(map[string]map[*subscription]struct{})
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Broker) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.topic)
		}
	}
}

func (b *Broker) reportError(ctx context.Context, topic string, err error) {
	b.logger.WarnContext(ctx, "message handler failed",
		slog.String("topic", topic),
		slog.Any("error", err),
	)
	if b.onError != nil {
		b.onError(topic, err)
	}
}

type subscription struct {
	broker  *Broker
	topic   string
	handler Handler
	queue   chan *Message
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *subscription) Topic() string {
	return s.topic
}

func (s *subscription) Unsubscribe() error {
	s.stop()
	s.broker.remove(s)
	return nil
}

func (s *subscription) stop() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func (s *subscription) run(ctx context.Context) {
	defer s.broker.wg.Done()
	defer s.broker.remove(s)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop()
			return
		case msg := <-s.queue:
			// done and queue may both be ready.
			select {
			case <-s.done:
				return
			default:
			}
			if err := s.handler(ctx, msg); err != nil {
				s.broker.reportError(ctx, s.topic, fmt.Errorf("message %s: %w", msg.ID, err))
			}
		}
	}
}
