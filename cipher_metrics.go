package relaymq

import (
	"context"
	"time"

	"github.com/relaymq/client-go/internal/metrics"
	"github.com/relaymq/client-go/internal/transport"
)

// cipherWithMetrics decorates a transport.Cipher with metrics instrumentation.
type cipherWithMetrics struct {
	next    transport.Cipher
	metrics metrics.BusinessMetrics
}

func newCipherWithMetrics(next transport.Cipher, m metrics.BusinessMetrics) transport.Cipher {
	return &cipherWithMetrics{next: next, metrics: m}
}

// Encrypt records metrics for envelope sealing.
func (c *cipherWithMetrics) Encrypt(plaintext, password []byte) ([]byte, error) {
	start := time.Now()
	out, err := c.next.Encrypt(plaintext, password)
	c.record("encrypt", start, err)
	return out, err
}

// Decrypt records metrics for envelope opening.
func (c *cipherWithMetrics) Decrypt(envelope, password []byte) ([]byte, error) {
	start := time.Now()
	out, err := c.next.Decrypt(envelope, password)
	c.record("decrypt", start, err)
	return out, err
}

func (c *cipherWithMetrics) record(operation string, start time.Time, err error) {
	ctx := context.Background()
	status := metrics.Status(err)
	c.metrics.RecordOperation(ctx, "cipher", operation, status)
	c.metrics.RecordDuration(ctx, "cipher", operation, time.Since(start), status)
}
