// Package tlssetup turns provisioned PEM secrets into TLS client settings.
package tlssetup

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/provision"
)

// Secret targets understood by Material.
const (
	TargetCA         = "ca"
	TargetClientCert = "client_cert"
	TargetClientKey  = "client_key"
)

var (
	// ErrUnknownTarget is returned for a secret whose target is not one of
	// the supported targets.
	ErrUnknownTarget = errors.New("unknown secret target")

	// ErrIncompleteKeyPair is returned when only one half of the client
	// certificate and key is supplied.
	ErrIncompleteKeyPair = errors.New("client certificate and key must be provisioned together")

	// ErrInvalidPEM is returned when a secret does not hold usable PEM data.
	ErrInvalidPEM = errors.New("invalid PEM material")

	// ErrNotProvisioned is returned by Config before any material is applied.
	ErrNotProvisioned = errors.New("no TLS material provisioned")
)

var _ provision.SecretSink = (*Material)(nil)

// Material accumulates provisioned TLS material. It is safe for concurrent
// use; Apply replaces state atomically, so a failed Apply leaves the
// previous material untouched.
type Material struct {
	mu         sync.RWMutex
	roots      *x509.CertPool
	cert       *tls.Certificate
	serverName string
	logger     *slog.Logger
}

// Option configures Material.
type Option func(*Material)

// WithServerName sets the server name verified by the returned configs.
func WithServerName(name string) Option {
	return func(m *Material) {
		m.serverName = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Material) {
		m.logger = logger
	}
}

// New returns empty Material.
func New(opts ...Option) *Material {
	m := &Material{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Apply installs secrets. Every secret is validated before any state
// changes. The caller keeps ownership of the secret values.
func (m *Material) Apply(ctx context.Context, secrets []provision.Secret) error {
	var caPEM, certPEM, keyPEM []byte
	for _, s := range secrets {
		switch s.Target {
		case TargetCA:
			caPEM = append(caPEM, s.Value...)
			caPEM = append(caPEM, '\n')
		case TargetClientCert:
			certPEM = s.Value
		case TargetClientKey:
			keyPEM = s.Value
		default:
			return fmt.Errorf("%w: %q (secret %s)", ErrUnknownTarget, s.Target, s.ID)
		}
	}
	defer crypto.Wipe(caPEM)

	if (certPEM == nil) != (keyPEM == nil) {
		return ErrIncompleteKeyPair
	}

	var roots *x509.CertPool
	if caPEM != nil {
		roots = x509.NewCertPool()
		if !roots.AppendCertsFromPEM(caPEM) {
			return fmt.Errorf("%w: no certificate in %s", ErrInvalidPEM, TargetCA)
		}
	}

	var cert *tls.Certificate
	if certPEM != nil {
		c, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPEM, err)
		}
		cert = &c
	}

	m.mu.Lock()
	if roots != nil {
		m.roots = roots
	}
	if cert != nil {
		m.cert = cert
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "tls material applied",
		slog.Bool("ca", roots != nil),
		slog.Bool("client_cert", cert != nil),
	)
	return nil
}

// Config returns a client TLS configuration built from the applied
// material. Each call returns a fresh value.
func (m *Material) Config() (*tls.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.roots == nil && m.cert == nil {
		return nil, ErrNotProvisioned
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    m.roots,
		ServerName: m.serverName,
	}
	if m.cert != nil {
		cfg.Certificates = []tls.Certificate{*m.cert}
	}
	return cfg, nil
}

// HasClientCertificate reports whether a client key pair was applied.
func (m *Material) HasClientCertificate() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cert != nil
}
