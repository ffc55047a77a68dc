package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// KDFAlgorithm identifies a password based key derivation function.
type KDFAlgorithm string

// Supported key derivation functions.
const (
	PBKDF2WithHmacSHA1   KDFAlgorithm = "PBKDF2WithHmacSHA1"
	PBKDF2WithHmacSHA256 KDFAlgorithm = "PBKDF2WithHmacSHA256"
	PBKDF2WithHmacSHA384 KDFAlgorithm = "PBKDF2WithHmacSHA384"
	PBKDF2WithHmacSHA512 KDFAlgorithm = "PBKDF2WithHmacSHA512"

	DefaultKDFAlgorithm = PBKDF2WithHmacSHA256
)

var kdfHashes = map[KDFAlgorithm]func() hash.Hash{
	PBKDF2WithHmacSHA1:   sha1.New,
	PBKDF2WithHmacSHA256: sha256.New,
	PBKDF2WithHmacSHA384: sha512.New384,
	PBKDF2WithHmacSHA512: sha512.New,
}

// ParseKDFAlgorithm resolves a configured algorithm name, ignoring case.
// An empty name selects DefaultKDFAlgorithm.
func ParseKDFAlgorithm(name string) (KDFAlgorithm, error) {
	if name == "" {
		return DefaultKDFAlgorithm, nil
	}
	for alg := range kdfHashes {
		if strings.EqualFold(string(alg), name) {
			return alg, nil
		}
	}
	return "", newError("Unsupported key derivation algorithm "+name, ErrInvalidAlgorithm)
}

// DerivationParams configures password based key derivation.
type DerivationParams struct {
	Algorithm  KDFAlgorithm
	Iterations int
	KeyBits    int
	SaltBytes  int
}

// DefaultDerivationParams returns PBKDF2-HMAC-SHA256 with 10000 iterations,
// an 8 byte salt and a 256 bit key.
func DefaultDerivationParams() DerivationParams {
	return DerivationParams{
		Algorithm:  DefaultKDFAlgorithm,
		Iterations: DefaultIterations,
		KeyBits:    DefaultKeyBits,
		SaltBytes:  DefaultSaltBytes,
	}
}

// Validate reports whether the parameters can drive an AES envelope.
func (p DerivationParams) Validate() error {
	if _, ok := kdfHashes[p.Algorithm]; !ok {
		return newError(fmt.Sprintf("Unsupported key derivation algorithm %q", p.Algorithm), ErrInvalidAlgorithm)
	}
	if p.Iterations <= 0 {
		return newError("Iteration count must be positive", nil)
	}
	if p.SaltBytes <= 0 {
		return newError("Salt length must be positive", nil)
	}
	switch p.KeyBits {
	case 128, 192, 256:
	default:
		return newError(fmt.Sprintf("Unsupported key length %d", p.KeyBits), ErrInvalidKeySize)
	}
	return nil
}

// DeriveKey derives keyBits of key material from password and salt.
// The result is deterministic for identical inputs.
func DeriveKey(password, salt []byte, iterations, keyBits int, alg KDFAlgorithm) ([]byte, error) {
	if keyBits <= 0 || keyBits%8 != 0 {
		return nil, newError(fmt.Sprintf("Key length %d is not a positive multiple of 8", keyBits), ErrInvalidKeySize)
	}
	if len(salt) == 0 {
		return nil, newError("Salt must not be empty", nil)
	}
	if iterations <= 0 {
		return nil, newError("Iteration count must be positive", nil)
	}
	h, ok := kdfHashes[alg]
	if !ok {
		return nil, newError(fmt.Sprintf("Unsupported key derivation algorithm %q", alg), ErrInvalidAlgorithm)
	}
	return pbkdf2.Key(password, salt, iterations, keyBits/8, h), nil
}
