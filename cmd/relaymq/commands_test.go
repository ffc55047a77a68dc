package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relaymq "github.com/relaymq/client-go"
)

func init() {
	color.NoColor = true
}

func newTestEnv(t *testing.T, opts ...relaymq.Option) *environment {
	t.Helper()

	cfg, err := relaymq.ParseConfig(nil)
	require.NoError(t, err)

	params := relaymq.DefaultDerivationParams()
	params.Iterations = 1000
	base := []relaymq.Option{
		relaymq.WithKeyStore(relaymq.KeyStoreConfig{KeyBits: 1024}),
		relaymq.WithEncryption(params, "GCM", "NoPadding", []byte("cli password")),
	}
	client, err := relaymq.New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &environment{
		cfg:    cfg,
		client: client,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestRunSealOpen(t *testing.T) {
	env := newTestEnv(t)

	var sealed bytes.Buffer
	err := runSeal(env, IOTuple{Reader: strings.NewReader("hello cli"), Writer: &sealed})
	require.NoError(t, err)
	assert.NotContains(t, sealed.String(), "hello cli")

	var opened bytes.Buffer
	err = runOpen(env, IOTuple{Reader: &sealed, Writer: &opened})
	require.NoError(t, err)
	assert.Equal(t, "hello cli", opened.String())
}

func TestRunOpen_Errors(t *testing.T) {
	env := newTestEnv(t)

	t.Run("not base64", func(t *testing.T) {
		err := runOpen(env, IOTuple{Reader: strings.NewReader("%%%"), Writer: io.Discard})
		assert.ErrorContains(t, err, "not base64")
	})

	t.Run("tampered envelope", func(t *testing.T) {
		envelope, err := env.client.Seal([]byte("payload"))
		require.NoError(t, err)
		envelope[len(envelope)-1] ^= 0xff

		in := strings.NewReader(base64.StdEncoding.EncodeToString(envelope))
		err = runOpen(env, IOTuple{Reader: in, Writer: io.Discard})
		assert.ErrorIs(t, err, relaymq.ErrDecryptionFailed)
	})
}

func TestRunKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runListKeys(ctx, env, &out))
	assert.Contains(t, out.String(), "No key pairs")

	out.Reset()
	require.NoError(t, runCreateKey(ctx, env, &out, "device"))
	assert.Contains(t, out.String(), "Key pair device ready")
	assert.Contains(t, out.String(), "Fingerprint: SHA256:")

	out.Reset()
	require.NoError(t, runListKeys(ctx, env, &out))
	assert.Equal(t, "device\n", out.String())

	out.Reset()
	require.NoError(t, runFingerprint(ctx, env, &out, "device"))
	fp, err := env.client.Fingerprint(ctx, "device")
	require.NoError(t, err)
	assert.Equal(t, "SHA256:"+fp+"\n", out.String())

	out.Reset()
	require.NoError(t, runDeleteKey(ctx, env, &out, "device"))
	assert.Contains(t, out.String(), "Deleted key pair device")

	err = runDeleteKey(ctx, env, &out, "device")
	assert.ErrorContains(t, err, `no key pair named "device"`)
}

func TestRunProvision_InvalidFormat(t *testing.T) {
	env := newTestEnv(t)
	err := runProvision(context.Background(), env, io.Discard, 0, "yaml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestRunProvision_Disabled(t *testing.T) {
	env := newTestEnv(t)
	err := runProvision(context.Background(), env, io.Discard, 0, "text")
	assert.ErrorIs(t, err, relaymq.ErrProvisioningDisabled)
}

func TestPrintProvision(t *testing.T) {
	res := &relaymq.ProvisionResult{
		FlowID:      "flow-1",
		Alias:       "device",
		Fingerprint: "abc",
		Secrets: []relaymq.Secret{
			{ID: "ca", Target: "ca", Value: []byte("pem bytes")},
		},
		Skipped: 2,
	}

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printProvision(&out, res, "text"))
		assert.Contains(t, out.String(), "Provisioned 1 secret(s) for device")
		assert.Contains(t, out.String(), "ca (ca)")
		assert.Contains(t, out.String(), "Skipped 2 batch descriptor(s)")
		assert.NotContains(t, out.String(), "pem bytes")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, printProvision(&out, res, "json"))

		var decoded provisionOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, "flow-1", decoded.FlowID)
		assert.Equal(t, []secretOutput{{ID: "ca", Target: "ca", Bytes: 9}}, decoded.Secrets)
		assert.Equal(t, 2, decoded.Skipped)
		assert.NotContains(t, out.String(), "pem bytes")
	})
}
