package relaymq

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/relaymq/client-go/internal/api"
	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
	"github.com/relaymq/client-go/internal/metrics"
	"github.com/relaymq/client-go/internal/provision"
	"github.com/relaymq/client-go/internal/tlssetup"
	"github.com/relaymq/client-go/internal/transport"
)

// Client publishes and receives end-to-end encrypted messages, manages the
// device key pairs, and provisions TLS material from the config service.
type Client struct {
	logger   *slog.Logger
	store    *keystore.Store
	conn     transport.Conn
	facade   *crypto.Facade
	cipher   transport.Cipher
	password *memguard.Enclave
	runner   provision.Runner
	material *tlssetup.Material

	metricsProvider *metrics.Provider

	mu     sync.RWMutex
	closed bool
}

// New creates a client. Without options it uses an in-process broker, an
// in-memory key store, and no payload encryption or provisioning.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		metricsNamespace: defaultMetricsNamespace,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	bm := metrics.NewNoOpBusinessMetrics()
	if cfg.meterProvider != nil {
		var err error
		bm, err = metrics.NewBusinessMetrics(cfg.meterProvider, cfg.metricsNamespace)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		logger:   cfg.logger,
		material: tlssetup.New(tlssetup.WithLogger(cfg.logger)),
	}

	if cfg.encryption != nil {
		if err := c.setupEncryption(cfg.encryption, bm); err != nil {
			return nil, err
		}
	}

	store, err := keystore.Open(ctx, cfg.keyStore, keystore.WithLogger(cfg.logger))
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}
	c.store = store

	conn := cfg.conn
	if conn == nil {
		conn = transport.NewBroker(transport.WithBrokerLogger(cfg.logger))
	}
	if c.cipher != nil {
		conn, err = c.secure(conn, cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	c.conn = conn

	if cfg.configURL != "" {
		if err := c.setupProvisioning(cfg, bm); err != nil {
			_ = conn.Close()
			_ = store.Close()
			return nil, err
		}
	}

	c.logger.DebugContext(ctx, "client created",
		slog.String("transformation", c.facade.Describe()),
		slog.Bool("provisioning", c.runner != nil),
	)
	return c, nil
}

func (c *Client) setupEncryption(enc *encryptionConfig, bm metrics.BusinessMetrics) error {
	if len(enc.password) == 0 {
		return fmt.Errorf("setup encryption: %w", transport.ErrEmptyPassword)
	}

	f := crypto.NewFacade(enc.params)
	if err := f.SetTransformation("AES", enc.mode, enc.padding); err != nil {
		return fmt.Errorf("setup encryption: %w", err)
	}

	c.facade = f
	c.cipher = newCipherWithMetrics(f, bm)
	c.password = memguard.NewEnclave(enc.password)
	return nil
}

func (c *Client) secure(conn transport.Conn, cfg *clientConfig) (transport.Conn, error) {
	buf, err := c.password.Open()
	if err != nil {
		return nil, fmt.Errorf("open password enclave: %w", err)
	}
	defer buf.Destroy()

	secureOpts := []transport.SecureOption{transport.WithSecureLogger(cfg.logger)}
	if cfg.onDrop != nil {
		secureOpts = append(secureOpts, transport.WithDropHandler(cfg.onDrop))
	}
	return transport.NewSecure(conn, c.cipher, bytes.Clone(buf.Bytes()), secureOpts...)
}

func (c *Client) setupProvisioning(cfg *clientConfig, bm metrics.BusinessMetrics) error {
	if cfg.apiKey == "" {
		return ErrMissingAPIKey
	}

	apiClient, err := api.New(cfg.configURL, cfg.apiKey, cfg.apiOptions()...)
	if err != nil {
		return wrapError(err)
	}

	sinks := chainSink{c.material}
	if cfg.sink != nil {
		sinks = append(sinks, cfg.sink)
	}

	provOpts := []provision.Option{
		provision.WithSink(sinks),
		provision.WithLogger(cfg.logger),
	}
	if cfg.selector != nil {
		provOpts = append(provOpts, provision.WithAliasSelector(cfg.selector))
	}
	if cfg.concurrency > 0 {
		provOpts = append(provOpts, provision.WithConcurrency(cfg.concurrency))
	}
	for _, fn := range cfg.observers {
		provOpts = append(provOpts, provision.WithObserver(fn))
	}

	c.runner = provision.NewRunnerWithMetrics(provision.New(c.store, apiClient, provOpts...), bm)
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Close closes the connection, the key store and the metrics provider.
// It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	errs := []error{c.conn.Close(), c.store.Close()}
	if c.metricsProvider != nil {
		errs = append(errs, c.metricsProvider.Shutdown(context.Background()))
	}
	return errors.Join(errs...)
}

// Publish sends payload on topic, sealed when encryption is enabled.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	return c.conn.Publish(ctx, topic, payload)
}

// Subscribe delivers the messages of topic to handler. With encryption
// enabled, payloads that fail to open are dropped and never reach handler.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.conn.Subscribe(ctx, topic, handler)
}

// EncryptionEnabled reports whether payloads are sealed.
func (c *Client) EncryptionEnabled() bool {
	return c.cipher != nil
}

// Transformation describes the envelope, e.g. "AES-256/GCM/NoPadding".
func (c *Client) Transformation() string {
	return c.facade.Describe()
}

// Seal encrypts plaintext into an envelope with the client password.
func (c *Client) Seal(plaintext []byte) ([]byte, error) {
	return c.withPassword(func(password []byte) ([]byte, error) {
		return c.cipher.Encrypt(plaintext, password)
	})
}

// Open decrypts an envelope produced by Seal.
func (c *Client) Open(envelope []byte) ([]byte, error) {
	return c.withPassword(func(password []byte) ([]byte, error) {
		return c.cipher.Decrypt(envelope, password)
	})
}

func (c *Client) withPassword(fn func(password []byte) ([]byte, error)) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.cipher == nil {
		return nil, ErrEncryptionDisabled
	}
	buf, err := c.password.Open()
	if err != nil {
		return nil, fmt.Errorf("open password enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// CreateKeyPair returns the DER public key stored under alias, generating
// a key pair first if none exists.
func (c *Client) CreateKeyPair(ctx context.Context, alias string) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.CreateOrReusePublicKey(ctx, alias)
}

// DeleteKeyPair removes the entry stored under alias.
func (c *Client) DeleteKeyPair(ctx context.Context, alias string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.store.DeleteKeyPair(ctx, alias)
}

// KeyAliases lists the key pair aliases in the key store.
func (c *Client) KeyAliases(ctx context.Context) ([]string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.ListAliases(ctx)
}

// Fingerprint returns the fingerprint the config service knows alias by.
func (c *Client) Fingerprint(ctx context.Context, alias string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	return c.store.CalcFingerprint(ctx, alias)
}

// ImportTrustedCertificate stores a DER certificate under alias. Such
// entries are never offered for provisioning.
func (c *Client) ImportTrustedCertificate(ctx context.Context, alias string, certDER []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.store.ImportTrustedCertificate(ctx, alias, certDER)
}

// Provision runs one provisioning flow. On success the client's TLS
// material holds the provisioned certificates; on failure nothing changes.
func (c *Client) Provision(ctx context.Context) (*ProvisionResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.runner == nil {
		return nil, ErrProvisioningDisabled
	}
	res, err := c.runner.Run(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	return res, nil
}

// TLSConfig returns a client TLS configuration built from provisioned
// material.
func (c *Client) TLSConfig() (*tls.Config, error) {
	return c.material.Config()
}

// chainSink applies secrets to each sink in order, stopping at the first
// failure.
type chainSink []provision.SecretSink

func (s chainSink) Apply(ctx context.Context, secrets []provision.Secret) error {
	for _, sink := range s {
		if err := sink.Apply(ctx, secrets); err != nil {
			return err
		}
	}
	return nil
}
