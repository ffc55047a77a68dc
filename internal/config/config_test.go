package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
)

const fullYAML = `
log_level: debug
encryption:
  enabled: true
  algorithm: AES
  key_length: 128
  mode: CBC
  padding: PKCS5Padding
  password: from-file
  key_derivation:
    algorithm: PBKDF2WithHmacSHA1
    salt_bytes: 16
    iteration: 2000
config_service:
  url: https://config.example.com
  api_key: file-key
  timeout: 5s
  rate_limit: 2.5
  burst: 3
keystore:
  bucket_url: file:///var/lib/relaymq/keys
  keeper_url: base64key://YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXoxMjM0NTY=
  key_bits: 3072
  oaep_digest: SHA-256
  oaep_mgf_digest: SHA-1
metrics:
  enabled: true
  namespace: edge
  addr: ":9464"
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, 128, cfg.Encryption.KeyLength)
	assert.Equal(t, "from-file", cfg.Encryption.Password)
	assert.Equal(t, 5*time.Second, cfg.ConfigService.Timeout)
	assert.Equal(t, 2.5, cfg.ConfigService.RateLimit)
	assert.Equal(t, 3072, cfg.Keystore.KeyBits)
	assert.Equal(t, ":9464", cfg.Metrics.Addr)

	params, err := cfg.Encryption.DerivationParams()
	require.NoError(t, err)
	assert.Equal(t, crypto.DerivationParams{
		Algorithm:  crypto.PBKDF2WithHmacSHA1,
		Iterations: 2000,
		KeyBits:    128,
		SaltBytes:  16,
	}, params)

	f, err := cfg.Encryption.Facade()
	require.NoError(t, err)
	assert.Equal(t, "AES-128/CBC/PKCS7Padding", f.Describe())

	sc, err := cfg.Keystore.StoreConfig()
	require.NoError(t, err)
	assert.Equal(t, keystore.DigestSHA256, sc.Digest)
	assert.Equal(t, keystore.DigestSHA1, sc.MGFDigest)
	assert.Equal(t, "file:///var/lib/relaymq/keys", sc.BucketURL)
}

func TestKeystoreConfig_MGFDigestFollowsDigest(t *testing.T) {
	cfg, err := Parse([]byte("keystore:\n  oaep_digest: SHA-1\n"))
	require.NoError(t, err)

	sc, err := cfg.Keystore.StoreConfig()
	require.NoError(t, err)
	assert.Equal(t, keystore.DigestSHA1, sc.Digest)
	assert.Equal(t, keystore.DigestSHA1, sc.MGFDigest)
}

func TestParse_DefaultsOnly(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	f, err := cfg.Encryption.Facade()
	require.NoError(t, err)
	assert.Equal(t, "AES-256/GCM/NoPadding", f.Describe())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown field", "encryption:\n  cipher: AES\n", "cipher"},
		{"bad key length", "encryption:\n  key_length: 512\n", "KeyLength"},
		{"bad mode", "encryption:\n  mode: ECB\n", "Mode"},
		{"bad padding", "encryption:\n  padding: Zero\n", "Padding"},
		{"gcm with padding", "encryption:\n  mode: GCM\n  padding: PKCS7Padding\n", "Padding"},
		{"bad algorithm", "encryption:\n  algorithm: DES\n", "Algorithm"},
		{"missing password", "encryption:\n  enabled: true\n", "Password"},
		{"zero iterations", "encryption:\n  key_derivation:\n    iteration: 0\n", "Iteration"},
		{"bad kdf", "encryption:\n  key_derivation:\n    algorithm: scrypt\n", "KeyDerivation"},
		{"url without key", "config_service:\n  url: https://x.example.com\n", "APIKey"},
		{"relative url", "config_service:\n  url: config.example.com\n  api_key: k\n", "URL"},
		{"small rsa key", "keystore:\n  key_bits: 512\n", "KeyBits"},
		{"bad digest", "keystore:\n  oaep_digest: MD5\n", "OAEPDigest"},
		{"bad mgf digest", "keystore:\n  oaep_mgf_digest: SHA-512\n", "OAEPMGFDigest"},
		{"random keeper with file bucket", "keystore:\n  bucket_url: file:///var/lib/relaymq/keys\n", "KeeperURL"},
		{"explicit random keeper with file bucket", "keystore:\n  bucket_url: file:///var/lib/relaymq/keys\n  keeper_url: base64key://\n", "KeeperURL"},
		{"bad log level", "log_level: loud\n", "LogLevel"},
		{"metrics without namespace", "metrics:\n  enabled: true\n  namespace: \"\"\n", "Namespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
			if tt.name != "unknown field" {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relaymq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o600))

	t.Setenv(EnvEncryptionPassword, "from-env")
	t.Setenv(EnvConfigAPIKey, "env-key")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMetricsEnabled, "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Encryption.Password)
	assert.Equal(t, "env-key", cfg.ConfigService.APIKey)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "https://config.example.com", cfg.ConfigService.URL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte(EnvEncryptionEnabled+"=true\n"+EnvEncryptionPassword+"=dotenv-secret\n"), 0o600))

	t.Chdir(nested)
	t.Cleanup(func() {
		os.Unsetenv(EnvEncryptionEnabled)
		os.Unsetenv(EnvEncryptionPassword)
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Encryption.Enabled)
	assert.Equal(t, "dotenv-secret", cfg.Encryption.Password)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_ValidationError(t *testing.T) {
	t.Setenv(EnvEncryptionEnabled, "true")
	t.Setenv(EnvEncryptionPassword, "")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "ERROR"

	var buf bytes.Buffer
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Error("shown", slog.String("k", "v"))

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
