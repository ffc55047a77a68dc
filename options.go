package relaymq

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/relaymq/client-go/internal/api"
	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
	"github.com/relaymq/client-go/internal/provision"
	"github.com/relaymq/client-go/internal/transport"
)

// Types shared with the internal packages.
type (
	// DerivationParams configures password based key derivation.
	DerivationParams = crypto.DerivationParams
	// KDFAlgorithm names a key derivation function.
	KDFAlgorithm = crypto.KDFAlgorithm

	// KeyStoreConfig locates the key store bucket and keeper.
	KeyStoreConfig = keystore.Config
	// Digest is the OAEP digest of the key store.
	Digest = keystore.Digest

	// Secret is a provisioned secret and its target.
	Secret = provision.Secret
	// ProvisionResult summarizes a successful provisioning flow.
	ProvisionResult = provision.Result
	// SecretSink receives provisioned secrets.
	SecretSink = provision.SecretSink
	// AliasSelector chooses a key pair when several exist.
	AliasSelector = provision.AliasSelector
	// AliasSelectorFunc adapts a function to AliasSelector.
	AliasSelectorFunc = provision.AliasSelectorFunc
	// StateTransition is reported to provisioning observers.
	StateTransition = provision.Transition

	// Conn is the pub/sub connection messages travel over.
	Conn = transport.Conn
	// Message is a delivered message.
	Message = transport.Message
	// Handler processes delivered messages.
	Handler = transport.Handler
	// Subscription is an active subscription.
	Subscription = transport.Subscription
)

// Supported key derivation functions and OAEP digests.
const (
	PBKDF2WithHmacSHA1   = crypto.PBKDF2WithHmacSHA1
	PBKDF2WithHmacSHA256 = crypto.PBKDF2WithHmacSHA256
	PBKDF2WithHmacSHA384 = crypto.PBKDF2WithHmacSHA384
	PBKDF2WithHmacSHA512 = crypto.PBKDF2WithHmacSHA512

	DigestSHA1   = keystore.DigestSHA1
	DigestSHA256 = keystore.DigestSHA256
)

const defaultMetricsNamespace = "relaymq"

// DefaultDerivationParams returns PBKDF2-HMAC-SHA256, 10000 iterations, an
// 8 byte salt and a 256 bit key.
func DefaultDerivationParams() DerivationParams {
	return crypto.DefaultDerivationParams()
}

// encryptionConfig holds the envelope transformation.
type encryptionConfig struct {
	params   DerivationParams
	mode     string
	padding  string
	password []byte
}

// clientConfig holds configuration for the client.
type clientConfig struct {
	logger     *slog.Logger
	httpClient *http.Client
	timeout    time.Duration
	rateLimit  float64
	burst      int

	configURL string
	apiKey    string

	encryption *encryptionConfig
	keyStore   KeyStoreConfig
	conn       Conn

	sink        SecretSink
	selector    AliasSelector
	concurrency int
	observers   []func(StateTransition)
	onDrop      func(topic string, err error)

	meterProvider    metric.MeterProvider
	metricsNamespace string
}

// Option configures the client.
type Option func(*clientConfig)

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithConfigService sets the config service base URL and API key used by
// Provision.
func WithConfigService(baseURL, apiKey string) Option {
	return func(c *clientConfig) {
		c.configURL = baseURL
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets a custom HTTP client for the config service.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the config service request timeout.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithRateLimit caps config service requests per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.rateLimit = rps
		c.burst = burst
	}
}

// WithEncryption enables payload envelopes. mode is "GCM" or "CBC";
// padding is "NoPadding", "PKCS7Padding", "PKCS5Padding" or
// "ISO10126Padding". The password is moved into protected memory and the
// caller's slice is wiped when the client is created.
func WithEncryption(params DerivationParams, mode, padding string, password []byte) Option {
	return func(c *clientConfig) {
		c.encryption = &encryptionConfig{
			params:   params,
			mode:     mode,
			padding:  padding,
			password: password,
		}
	}
}

// WithKeyStore sets where key pairs are kept.
// Default: an in-memory bucket sealed with a random local key.
func WithKeyStore(cfg KeyStoreConfig) Option {
	return func(c *clientConfig) {
		c.keyStore = cfg
	}
}

// WithConn sets the pub/sub connection. The client takes ownership and
// closes it in Close. Default: an in-process broker.
func WithConn(conn Conn) Option {
	return func(c *clientConfig) {
		c.conn = conn
	}
}

// WithSecretSink sets an additional sink for provisioned secrets. The
// client's TLS material is always updated first.
func WithSecretSink(sink SecretSink) Option {
	return func(c *clientConfig) {
		c.sink = sink
	}
}

// WithAliasSelector sets the selector consulted when the key store holds
// several key pairs.
func WithAliasSelector(selector AliasSelector) Option {
	return func(c *clientConfig) {
		c.selector = selector
	}
}

// WithProvisionConcurrency bounds how many secrets are fetched at once.
// Default: 4
func WithProvisionConcurrency(n int) Option {
	return func(c *clientConfig) {
		c.concurrency = n
	}
}

// WithStateObserver registers fn for provisioning state transitions.
func WithStateObserver(fn func(StateTransition)) Option {
	return func(c *clientConfig) {
		c.observers = append(c.observers, fn)
	}
}

// WithDropHandler sets the callback for inbound messages discarded because
// their payload could not be opened.
func WithDropHandler(fn func(topic string, err error)) Option {
	return func(c *clientConfig) {
		c.onDrop = fn
	}
}

// WithMeterProvider records operation metrics on mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *clientConfig) {
		c.meterProvider = mp
	}
}

// WithMetricsNamespace sets the metric name prefix.
// Default: "relaymq"
func WithMetricsNamespace(namespace string) Option {
	return func(c *clientConfig) {
		c.metricsNamespace = namespace
	}
}

func (c *clientConfig) apiOptions() []api.Option {
	opts := []api.Option{api.WithLogger(c.logger)}
	if c.timeout > 0 {
		opts = append(opts, api.WithTimeout(c.timeout))
	}
	if c.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(c.httpClient))
	}
	if c.rateLimit > 0 {
		opts = append(opts, api.WithRateLimit(c.rateLimit, c.burst))
	}
	return opts
}
