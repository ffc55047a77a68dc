package transport

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/relaymq/client-go/internal/crypto"
)

func newFacade(t *testing.T, mode, padding string) *crypto.Facade {
	t.Helper()
	params := crypto.DefaultDerivationParams()
	params.Iterations = 100
	f := crypto.NewFacade(params)
	require.NoError(t, f.SetTransformation("AES", mode, padding))
	return f
}

type dropLog struct {
	mu   sync.Mutex
	errs []error
}

func (d *dropLog) record(topic string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, err)
}

func (d *dropLog) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.errs)
}

func TestSecure_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent(), ignoreCoffer)

	transformations := []struct {
		mode    string
		padding string
	}{
		{"GCM", "NoPadding"},
		{"CBC", "PKCS7Padding"},
	}

	for _, tr := range transformations {
		t.Run(tr.mode, func(t *testing.T) {
			broker := NewBroker()
			defer broker.Close()

			conn, err := NewSecure(broker, newFacade(t, tr.mode, tr.padding), []byte("s3cret"))
			require.NoError(t, err)

			raw, plain := &collector{}, &collector{}
			_, err = broker.Subscribe(context.Background(), "t", raw.handle)
			require.NoError(t, err)
			_, err = conn.Subscribe(context.Background(), "t", plain.handle)
			require.NoError(t, err)

			_, err = conn.Publish(context.Background(), "t", []byte("Hello, World!"))
			require.NoError(t, err)

			require.Eventually(t, func() bool { return raw.count() == 1 && plain.count() == 1 }, waitFor, tick)
			assert.Equal(t, []string{"Hello, World!"}, plain.payloads())
			assert.False(t, bytes.Contains(raw.msgs[0].Payload, []byte("Hello")))
			assert.Equal(t, raw.msgs[0].ID, plain.msgs[0].ID)
		})
	}
}

func TestSecure_WrongPasswordDropped(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	facade := newFacade(t, "GCM", "NoPadding")
	sender, err := NewSecure(broker, facade, []byte("right"))
	require.NoError(t, err)

	drops := &dropLog{}
	receiver, err := NewSecure(broker, facade, []byte("wrong"), WithDropHandler(drops.record))
	require.NoError(t, err)

	got := &collector{}
	_, err = receiver.Subscribe(context.Background(), "t", got.handle)
	require.NoError(t, err)

	_, err = sender.Publish(context.Background(), "t", []byte("payload"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return drops.count() == 1 }, waitFor, tick)
	assert.Zero(t, got.count())
	assert.ErrorIs(t, drops.errs[0], ErrOpenFailed)
	assert.ErrorIs(t, drops.errs[0], crypto.ErrDecryptionFailed)
}

func TestSecure_PlaintextOnWireDropped(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	drops := &dropLog{}
	conn, err := NewSecure(broker, newFacade(t, "GCM", "NoPadding"), []byte("pw"), WithDropHandler(drops.record))
	require.NoError(t, err)

	got := &collector{}
	_, err = conn.Subscribe(context.Background(), "t", got.handle)
	require.NoError(t, err)

	// Too short to be an envelope.
	_, err = broker.Publish(context.Background(), "t", []byte("plain"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return drops.count() == 1 }, waitFor, tick)
	assert.Zero(t, got.count())
	assert.ErrorIs(t, drops.errs[0], crypto.ErrInvalidLength)
}

func TestSecure_PasswordMovedToEnclave(t *testing.T) {
	password := []byte("s3cret")
	_, err := NewSecure(NewBroker(), newFacade(t, "GCM", "NoPadding"), password)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, len(password)), password)
}

func TestSecure_Errors(t *testing.T) {
	_, err := NewSecure(NewBroker(), newFacade(t, "GCM", "NoPadding"), nil)
	assert.ErrorIs(t, err, ErrEmptyPassword)

	conn, err := NewSecure(NewBroker(), crypto.NewFacade(crypto.DefaultDerivationParams()), []byte("pw"))
	require.NoError(t, err)

	_, err = conn.Publish(context.Background(), "t", []byte("x"))
	assert.ErrorIs(t, err, crypto.ErrInvalidSequence)

	_, err = conn.Subscribe(context.Background(), "t", nil)
	assert.ErrorIs(t, err, ErrNoHandler)

	require.NoError(t, conn.Close())
	_, err = conn.Subscribe(context.Background(), "t", (&collector{}).handle)
	assert.ErrorIs(t, err, ErrClosed)
}
