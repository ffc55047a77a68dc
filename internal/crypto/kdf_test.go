package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func TestDeriveKey_KnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		alg     KDFAlgorithm
		keyBits int
		want    string
	}{
		{"sha1 rfc6070", PBKDF2WithHmacSHA1, 160, "0c60c80f961f0e71f3a9b524af6012062fe037a6"},
		{"sha256", PBKDF2WithHmacSHA256, 256, "120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey([]byte("password"), []byte("salt"), 1, tt.keyBits, tt.alg)
			if err != nil {
				t.Fatalf("DeriveKey() error = %v", err)
			}
			if got := hex.EncodeToString(key); got != tt.want {
				t.Errorf("DeriveKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	for _, alg := range []KDFAlgorithm{PBKDF2WithHmacSHA1, PBKDF2WithHmacSHA256, PBKDF2WithHmacSHA384, PBKDF2WithHmacSHA512} {
		t.Run(string(alg), func(t *testing.T) {
			a, err := DeriveKey([]byte("hunter2"), []byte("12345678"), 100, 192, alg)
			if err != nil {
				t.Fatal(err)
			}
			b, err := DeriveKey([]byte("hunter2"), []byte("12345678"), 100, 192, alg)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(a, b) {
				t.Error("identical inputs produced different keys")
			}
			if len(a) != 24 {
				t.Errorf("key length = %d, want 24", len(a))
			}

			c, _ := DeriveKey([]byte("hunter2"), []byte("87654321"), 100, 192, alg)
			if bytes.Equal(a, c) {
				t.Error("different salts produced the same key")
			}
		})
	}
}

func TestDeriveKey_InvalidParams(t *testing.T) {
	tests := []struct {
		name       string
		salt       []byte
		iterations int
		keyBits    int
		alg        KDFAlgorithm
	}{
		{"zero key bits", []byte("salt"), 1, 0, PBKDF2WithHmacSHA256},
		{"negative key bits", []byte("salt"), 1, -8, PBKDF2WithHmacSHA256},
		{"key bits not multiple of 8", []byte("salt"), 1, 127, PBKDF2WithHmacSHA256},
		{"empty salt", []byte{}, 1, 128, PBKDF2WithHmacSHA256},
		{"nil salt", nil, 1, 128, PBKDF2WithHmacSHA256},
		{"zero iterations", []byte("salt"), 0, 128, PBKDF2WithHmacSHA256},
		{"unknown algorithm", []byte("salt"), 1, 128, KDFAlgorithm("scrypt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKey([]byte("pw"), tt.salt, tt.iterations, tt.keyBits, tt.alg)
			var cerr *CryptoError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *CryptoError, got %v", err)
			}
		})
	}
}

func TestParseKDFAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    KDFAlgorithm
		wantErr bool
	}{
		{"", DefaultKDFAlgorithm, false},
		{"PBKDF2WithHmacSHA256", PBKDF2WithHmacSHA256, false},
		{"pbkdf2withhmacsha512", PBKDF2WithHmacSHA512, false},
		{"PBKDF2WithHmacSHA1", PBKDF2WithHmacSHA1, false},
		{"argon2", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKDFAlgorithm(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKDFAlgorithm(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseKDFAlgorithm(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDerivationParams_Validate(t *testing.T) {
	if err := DefaultDerivationParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*DerivationParams)
	}{
		{"key bits 64", func(p *DerivationParams) { p.KeyBits = 64 }},
		{"key bits 512", func(p *DerivationParams) { p.KeyBits = 512 }},
		{"zero salt", func(p *DerivationParams) { p.SaltBytes = 0 }},
		{"zero iterations", func(p *DerivationParams) { p.Iterations = 0 }},
		{"unknown algorithm", func(p *DerivationParams) { p.Algorithm = "md5" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultDerivationParams()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrCrypto) {
				t.Errorf("Validate() = %v, want CryptoError", err)
			}
		})
	}
}

func TestGenerateSalt(t *testing.T) {
	a, err := GenerateSalt(16)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateSalt(16)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 16 || len(b) != 16 {
		t.Fatalf("lengths = %d, %d, want 16", len(a), len(b))
	}
	if bytes.Equal(a, b) {
		t.Error("two salts are identical")
	}

	if _, err := GenerateSalt(0); !errors.Is(err, ErrCrypto) {
		t.Errorf("GenerateSalt(0) = %v, want CryptoError", err)
	}
	if _, err := GenerateIV(-1); !errors.Is(err, ErrCrypto) {
		t.Errorf("GenerateIV(-1) = %v, want CryptoError", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGenerateIV_ReaderFailure(t *testing.T) {
	restore := SetRandReaderForTesting(failingReader{})
	defer restore()

	if _, err := GenerateIV(16); !errors.Is(err, ErrCrypto) {
		t.Errorf("expected CryptoError, got %v", err)
	}
}

func BenchmarkDeriveKey(b *testing.B) {
	salt := []byte("12345678")
	for i := 0; i < b.N; i++ {
		_, _ = DeriveKey([]byte("hunter2"), salt, DefaultIterations, 256, DefaultKDFAlgorithm)
	}
}
