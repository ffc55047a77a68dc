// Package config loads client configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
)

// Environment variables that override file values.
const (
	EnvLogLevel           = "RELAYMQ_LOG_LEVEL"
	EnvEncryptionEnabled  = "RELAYMQ_ENCRYPTION_ENABLED"
	EnvEncryptionPassword = "RELAYMQ_ENCRYPTION_PASSWORD"
	EnvConfigURL          = "RELAYMQ_CONFIG_URL"
	EnvConfigAPIKey       = "RELAYMQ_CONFIG_API_KEY"
	EnvKeystoreBucketURL  = "RELAYMQ_KEYSTORE_BUCKET_URL"
	EnvKeystoreKeeperURL  = "RELAYMQ_KEYSTORE_KEEPER_URL"
	EnvMetricsEnabled     = "RELAYMQ_METRICS_ENABLED"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete client configuration.
type Config struct {
	LogLevel      string              `yaml:"log_level"`
	Encryption    EncryptionConfig    `yaml:"encryption"`
	ConfigService ConfigServiceConfig `yaml:"config_service"`
	Keystore      KeystoreConfig      `yaml:"keystore"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// EncryptionConfig selects the payload envelope.
type EncryptionConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Algorithm     string              `yaml:"algorithm"`
	KeyLength     int                 `yaml:"key_length"`
	Mode          string              `yaml:"mode"`
	Padding       string              `yaml:"padding"`
	Password      string              `yaml:"password"`
	KeyDerivation KeyDerivationConfig `yaml:"key_derivation"`
}

// KeyDerivationConfig configures password based key derivation.
type KeyDerivationConfig struct {
	Algorithm string `yaml:"algorithm"`
	SaltBytes int    `yaml:"salt_bytes"`
	Iteration int    `yaml:"iteration"`
}

// ConfigServiceConfig locates the remote configuration service.
type ConfigServiceConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

// KeystoreConfig locates the key store. OAEPMGFDigest defaults to
// OAEPDigest.
type KeystoreConfig struct {
	BucketURL     string `yaml:"bucket_url"`
	KeeperURL     string `yaml:"keeper_url"`
	KeyBits       int    `yaml:"key_bits"`
	OAEPDigest    string `yaml:"oaep_digest"`
	OAEPMGFDigest string `yaml:"oaep_mgf_digest"`
}

// MetricsConfig controls metric collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Addr      string `yaml:"addr"`
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Encryption: EncryptionConfig{
			Enabled:   false,
			Algorithm: "AES",
			KeyLength: crypto.DefaultKeyBits,
			Mode:      "GCM",
			Padding:   "NoPadding",
			KeyDerivation: KeyDerivationConfig{
				Algorithm: string(crypto.DefaultKDFAlgorithm),
				SaltBytes: crypto.DefaultSaltBytes,
				Iteration: crypto.DefaultIterations,
			},
		},
		ConfigService: ConfigServiceConfig{
			Timeout: 30 * time.Second,
		},
		Keystore: KeystoreConfig{
			BucketURL:  "mem://",
			KeeperURL:  "base64key://",
			KeyBits:    keystore.DefaultKeyBits,
			OAEPDigest: string(keystore.DigestSHA256),
		},
		Metrics: MetricsConfig{
			Namespace: "relaymq",
		},
	}
}

// Load reads path (optional), a .env file found in the working directory or
// any parent, and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = env.GetString(EnvLogLevel, c.LogLevel)
	c.Encryption.Enabled = env.GetBool(EnvEncryptionEnabled, c.Encryption.Enabled)
	c.Encryption.Password = env.GetString(EnvEncryptionPassword, c.Encryption.Password)
	c.ConfigService.URL = env.GetString(EnvConfigURL, c.ConfigService.URL)
	c.ConfigService.APIKey = env.GetString(EnvConfigAPIKey, c.ConfigService.APIKey)
	c.Keystore.BucketURL = env.GetString(EnvKeystoreBucketURL, c.Keystore.BucketURL)
	c.Keystore.KeeperURL = env.GetString(EnvKeystoreKeeperURL, c.Keystore.KeeperURL)
	c.Metrics.Enabled = env.GetBool(EnvMetricsEnabled, c.Metrics.Enabled)
}

// DerivationParams returns the key derivation parameters.
func (e EncryptionConfig) DerivationParams() (crypto.DerivationParams, error) {
	alg, err := crypto.ParseKDFAlgorithm(e.KeyDerivation.Algorithm)
	if err != nil {
		return crypto.DerivationParams{}, err
	}
	p := crypto.DerivationParams{
		Algorithm:  alg,
		Iterations: e.KeyDerivation.Iteration,
		KeyBits:    e.KeyLength,
		SaltBytes:  e.KeyDerivation.SaltBytes,
	}
	return p, p.Validate()
}

// Facade returns a facade set up with the configured transformation.
func (e EncryptionConfig) Facade() (*crypto.Facade, error) {
	params, err := e.DerivationParams()
	if err != nil {
		return nil, err
	}
	f := crypto.NewFacade(params)
	if err := f.SetTransformation(e.Algorithm, e.Mode, e.Padding); err != nil {
		return nil, err
	}
	return f, nil
}

// StoreConfig returns the key store configuration.
func (k KeystoreConfig) StoreConfig() (keystore.Config, error) {
	digest, err := keystore.ParseDigest(k.OAEPDigest)
	if err != nil {
		return keystore.Config{}, err
	}
	mgf := digest
	if k.OAEPMGFDigest != "" {
		if mgf, err = keystore.ParseDigest(k.OAEPMGFDigest); err != nil {
			return keystore.Config{}, err
		}
	}
	return keystore.Config{
		BucketURL: k.BucketURL,
		KeeperURL: k.KeeperURL,
		KeyBits:   k.KeyBits,
		Digest:    digest,
		MGFDigest: mgf,
	}, nil
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns a JSON logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

// loadDotEnv loads the nearest .env file from the working directory up to
// the filesystem root. Variables already set are kept.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
