package config

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
)

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.By(logLevel)),
		validation.Field(&c.Encryption),
		validation.Field(&c.ConfigService),
		validation.Field(&c.Keystore),
		validation.Field(&c.Metrics),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Validate checks the encryption section. Nothing but the password is
// required while encryption is disabled, and not even that.
func (e EncryptionConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Algorithm,
			validation.Required,
			validation.By(func(v any) error {
				if !strings.EqualFold(v.(string), "AES") {
					return fmt.Errorf("unsupported algorithm %q", v)
				}
				return nil
			}),
		),
		validation.Field(&e.KeyLength, validation.Required, validation.In(128, 192, 256)),
		validation.Field(&e.Mode, validation.Required, validation.By(parses(crypto.ParseMode))),
		validation.Field(&e.Padding, validation.By(parses(crypto.ParsePadding)), validation.By(e.paddingFitsMode)),
		validation.Field(&e.Password, validation.When(e.Enabled, validation.Required.Error("is required when encryption is enabled"))),
		validation.Field(&e.KeyDerivation),
	)
}

func (e EncryptionConfig) paddingFitsMode(v any) error {
	m, err := crypto.ParseMode(e.Mode)
	if err != nil {
		return nil
	}
	p, err := crypto.ParsePadding(v.(string))
	if err != nil {
		return nil
	}
	if m == crypto.ModeGCM && p != crypto.PaddingNone {
		return fmt.Errorf("%s does not take padding", m)
	}
	return nil
}

// Validate checks the key derivation section.
func (k KeyDerivationConfig) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.Algorithm, validation.By(parses(crypto.ParseKDFAlgorithm))),
		validation.Field(&k.SaltBytes, validation.Required, validation.Min(1)),
		validation.Field(&k.Iteration, validation.Required, validation.Min(1)),
	)
}

// Validate checks the configuration service section. The section is
// optional as a whole; a URL without an API key is not.
func (s ConfigServiceConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.URL, validation.By(absoluteURL)),
		validation.Field(&s.APIKey, validation.When(s.URL != "", validation.Required.Error("is required when url is set"))),
		validation.Field(&s.Timeout, validation.Min(0).Exclusive().Error("must be positive")),
		validation.Field(&s.RateLimit, validation.Min(0.0)),
		validation.Field(&s.Burst, validation.Min(0)),
	)
}

// Validate checks the key store section.
func (k KeystoreConfig) Validate() error {
	return validation.ValidateStruct(&k,
		validation.Field(&k.BucketURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&k.KeeperURL, validation.Required, validation.By(absoluteURL), validation.By(k.keeperOutlivesProcess)),
		validation.Field(&k.KeyBits, validation.Required, validation.Min(1024)),
		validation.Field(&k.OAEPDigest, validation.By(parses(keystore.ParseDigest))),
		validation.Field(&k.OAEPMGFDigest, validation.By(parses(keystore.ParseDigest))),
	)
}

// keeperOutlivesProcess rejects a keeper without a fixed key unless the
// bucket is in memory too.
func (k KeystoreConfig) keeperOutlivesProcess(v any) error {
	if keystore.EphemeralKeeper(v.(string)) && !keystore.MemoryBucket(k.BucketURL) {
		return fmt.Errorf("must name a fixed key when bucket_url is persistent")
	}
	return nil
}

// Validate checks the metrics section.
func (m MetricsConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Namespace, validation.When(m.Enabled, validation.Required)),
	)
}

// parses adapts a Parse function to a validation rule.
func parses[T any](parse func(string) (T, error)) validation.RuleFunc {
	return func(v any) error {
		_, err := parse(v.(string))
		return err
	}
}

func logLevel(v any) error {
	switch strings.ToLower(v.(string)) {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("must be debug, info, warn or error")
	}
}

func absoluteURL(v any) error {
	s := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("%q is not an absolute URL", s)
	}
	return nil
}
