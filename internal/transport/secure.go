package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/awnumar/memguard"
)

var (
	// ErrEmptyPassword is returned by NewSecure for an empty password.
	ErrEmptyPassword = errors.New("encryption password is required")

	// ErrOpenFailed wraps the reason an inbound payload was dropped.
	ErrOpenFailed = errors.New("failed to open message payload")
)

// Cipher seals and opens payloads with a password. *crypto.Facade
// satisfies it.
type Cipher interface {
	Encrypt(plaintext, password []byte) ([]byte, error)
	Decrypt(envelope, password []byte) ([]byte, error)
}

// Secure wraps a Conn so that every published payload is sealed and every
// delivered payload is opened. A payload that fails to open is dropped and
// reported to the error handler; it is never delivered.
type Secure struct {
	conn     Conn
	cipher   Cipher
	password *memguard.Enclave
	onError  ErrorHandler
	logger   *slog.Logger
}

var _ Conn = (*Secure)(nil)

// SecureOption configures Secure.
type SecureOption func(*Secure)

// WithDropHandler sets the callback for dropped inbound payloads.
func WithDropHandler(fn ErrorHandler) SecureOption {
	return func(s *Secure) {
		s.onError = fn
	}
}

// WithSecureLogger sets the logger.
func WithSecureLogger(logger *slog.Logger) SecureOption {
	return func(s *Secure) {
		s.logger = logger
	}
}

// NewSecure returns conn wrapped with cipher. The password is moved into
// an encrypted enclave and the caller's slice is wiped.
func NewSecure(conn Conn, cipher Cipher, password []byte, opts ...SecureOption) (*Secure, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	s := &Secure{
		conn:     conn,
		cipher:   cipher,
		password: memguard.NewEnclave(password),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// withPassword runs fn with the password decrypted into locked memory,
// destroyed when fn returns.
func (s *Secure) withPassword(fn func(password []byte) ([]byte, error)) ([]byte, error) {
	buf, err := s.password.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open password enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// Publish seals payload and publishes the envelope.
func (s *Secure) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	envelope, err := s.withPassword(func(password []byte) ([]byte, error) {
		return s.cipher.Encrypt(payload, password)
	})
	if err != nil {
		return "", fmt.Errorf("failed to seal payload: %w", err)
	}
	return s.conn.Publish(ctx, topic, envelope)
}

// Subscribe registers handler for the opened payloads of topic.
func (s *Secure) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	return s.conn.Subscribe(ctx, topic, func(ctx context.Context, msg *Message) error {
		plaintext, err := s.withPassword(func(password []byte) ([]byte, error) {
			return s.cipher.Decrypt(msg.Payload, password)
		})
		if err != nil {
			s.drop(ctx, msg, err)
			return nil
		}

		opened := *msg
		opened.Payload = plaintext
		return handler(ctx, &opened)
	})
}

func (s *Secure) drop(ctx context.Context, msg *Message, err error) {
	s.logger.WarnContext(ctx, "dropping message",
		slog.String("topic", msg.Topic),
		slog.String("message_id", msg.ID),
		slog.Any("error", err),
	)
	if s.onError != nil {
		s.onError(msg.Topic, fmt.Errorf("%w: message %s: %w", ErrOpenFailed, msg.ID, err))
	}
}

// Close closes the underlying connection.
func (s *Secure) Close() error {
	return s.conn.Close()
}
