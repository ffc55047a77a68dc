package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestBusinessMetrics_PrometheusOutput(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "relaymq")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "cipher", "encrypt", StatusSuccess)
	bm.RecordOperation(ctx, "cipher", "encrypt", StatusSuccess)
	bm.RecordOperation(ctx, "provision", "run", StatusError)
	bm.RecordDuration(ctx, "cipher", "encrypt", 15*time.Millisecond, StatusSuccess)

	out := scrape(t, provider)
	assert.Regexp(t, `relaymq_operations_total\{[^}]*domain="cipher"[^}]*operation="encrypt"[^}]*status="success"[^}]*\} 2`, out)
	assert.Regexp(t, `relaymq_operations_total\{[^}]*domain="provision"[^}]*operation="run"[^}]*status="error"[^}]*\} 1`, out)
	assert.Contains(t, out, "relaymq_operation_duration_seconds")
}

func TestBusinessMetrics_ManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	bm, err := NewBusinessMetrics(mp, "relaymq")
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordOperation(ctx, "cipher", "decrypt", StatusError)
	bm.RecordDuration(ctx, "cipher", "decrypt", time.Second, StatusError)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	sum, ok := byName["relaymq_operations_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, StatusError, status.AsString())

	hist, ok := byName["relaymq_operation_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.0, hist.DataPoints[0].Sum, 1e-9)
}

func TestNoOpBusinessMetrics(t *testing.T) {
	bm := NewNoOpBusinessMetrics()
	bm.RecordOperation(context.Background(), "cipher", "encrypt", StatusSuccess)
	bm.RecordDuration(context.Background(), "cipher", "encrypt", time.Millisecond, StatusSuccess)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, Status(nil))
	assert.Equal(t, StatusError, Status(errors.New("x")))
}

func TestProvider_Shutdown(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	assert.NoError(t, provider.Shutdown(context.Background()))

	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}
