package relaymq

import (
	"context"
	"fmt"
	"net/http"

	"github.com/relaymq/client-go/internal/config"
	"github.com/relaymq/client-go/internal/metrics"
)

// Config is the file and environment configuration of a client.
type Config = config.Config

// LoadConfig reads the YAML file at path (optional), the nearest .env file,
// and RELAYMQ_* environment overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes and validates YAML without consulting the environment.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}

// NewFromConfig creates a client from cfg. Options given here take
// precedence over cfg.
func NewFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	base, provider, err := configOptions(cfg)
	if err != nil {
		return nil, err
	}

	c, err := New(ctx, append(base, opts...)...)
	if err != nil {
		if provider != nil {
			_ = provider.Shutdown(ctx)
		}
		return nil, err
	}
	c.metricsProvider = provider
	return c, nil
}

func configOptions(cfg *Config) ([]Option, *metrics.Provider, error) {
	storeCfg, err := cfg.Keystore.StoreConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []Option{WithKeyStore(storeCfg)}

	if cfg.Encryption.Enabled {
		params, err := cfg.Encryption.DerivationParams()
		if err != nil {
			return nil, nil, fmt.Errorf("encryption config: %w", err)
		}
		opts = append(opts, WithEncryption(params, cfg.Encryption.Mode, cfg.Encryption.Padding, []byte(cfg.Encryption.Password)))
	}

	if svc := cfg.ConfigService; svc.URL != "" {
		opts = append(opts, WithConfigService(svc.URL, svc.APIKey))
		if svc.Timeout > 0 {
			opts = append(opts, WithTimeout(svc.Timeout))
		}
		if svc.RateLimit > 0 {
			opts = append(opts, WithRateLimit(svc.RateLimit, svc.Burst))
		}
	}

	var provider *metrics.Provider
	if cfg.Metrics.Enabled {
		provider, err = metrics.NewProvider()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			WithMeterProvider(provider.MeterProvider()),
			WithMetricsNamespace(cfg.Metrics.Namespace),
		)
	}

	return opts, provider, nil
}

// MetricsHandler serves the client's metrics in Prometheus format. It is
// nil unless metrics were enabled in the configuration.
func (c *Client) MetricsHandler() http.Handler {
	if c.metricsProvider == nil {
		return nil
	}
	return c.metricsProvider.Handler()
}
