package crypto

import (
	"fmt"
	"strings"
)

// Facade drives one symmetric envelope variant chosen at setup time. The zero
// value is usable only after SetTransformation; until then Encrypt and Decrypt
// fail with ErrInvalidSequence.
type Facade struct {
	kdf    DerivationParams
	cipher *envelopeCipher
}

// NewFacade returns a facade that derives keys with params. Call
// SetTransformation before use.
func NewFacade(params DerivationParams) *Facade {
	return &Facade{kdf: params}
}

// SetTransformation selects algorithm, mode and padding, e.g.
// ("AES", "GCM", "NoPadding") or ("AES", "CBC", "PKCS7Padding").
// The authenticated mode accepts no padding other than NoPadding.
func (f *Facade) SetTransformation(algorithm, mode, padding string) error {
	if !strings.EqualFold(algorithm, "AES") {
		return newError("Unsupported algorithm "+algorithm, ErrInvalidAlgorithm)
	}

	m, err := ParseMode(mode)
	if err != nil {
		return err
	}

	p, err := ParsePadding(padding)
	if err != nil {
		return err
	}
	if m == ModeGCM && p != PaddingNone {
		return newError(fmt.Sprintf("Padding %s is not valid for %s", p, m), ErrInvalidAlgorithm)
	}

	if err := f.kdf.Validate(); err != nil {
		return err
	}

	f.cipher = &envelopeCipher{kdf: f.kdf, mode: m, padding: p}
	return nil
}

// Encrypt seals plaintext into an envelope keyed by password.
func (f *Facade) Encrypt(plaintext, password []byte) ([]byte, error) {
	if f == nil || f.cipher == nil {
		return nil, newError("Invalid calling sequence", ErrInvalidSequence)
	}
	return f.cipher.encrypt(plaintext, password)
}

// Decrypt opens an envelope produced by Encrypt with the same transformation.
func (f *Facade) Decrypt(envelope, password []byte) ([]byte, error) {
	if f == nil || f.cipher == nil {
		return nil, newError("Invalid calling sequence", ErrInvalidSequence)
	}
	return f.cipher.decrypt(envelope, password)
}

// Overhead returns the exact envelope length for a plaintext of n bytes, or
// -1 before SetTransformation.
func (f *Facade) Overhead(n int) int {
	if f == nil || f.cipher == nil {
		return -1
	}
	return f.cipher.overhead(n)
}

// Describe returns the transformation as "AES-<bits>/<mode>/<padding>".
func (f *Facade) Describe() string {
	if f == nil || f.cipher == nil {
		return "unset"
	}
	return fmt.Sprintf("AES-%d/%s/%s", f.cipher.kdf.KeyBits, f.cipher.mode, f.cipher.padding)
}

// Mode returns the selected mode, zero before SetTransformation.
func (f *Facade) Mode() Mode {
	if f == nil || f.cipher == nil {
		return 0
	}
	return f.cipher.mode
}
