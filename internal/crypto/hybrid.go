package crypto

import (
	"encoding/binary"
	"fmt"
)

// SecretHeader is the fixed four byte prefix of a secret envelope.
type SecretHeader struct {
	Version       uint16
	PubKeyType    byte
	SharedKeyType byte
}

// Bytes returns the wire form of h.
func (h SecretHeader) Bytes() []byte {
	b := make([]byte, SecretHeaderSize)
	binary.BigEndian.PutUint16(b, h.Version)
	b[2] = h.PubKeyType
	b[3] = h.SharedKeyType
	return b
}

// ParseSecretHeader decodes and validates a secret envelope header. Only
// version 0x0001 with a supported public key type and an AES-GCM shared key
// is accepted.
func ParseSecretHeader(b []byte) (SecretHeader, error) {
	if len(b) < SecretHeaderSize {
		return SecretHeader{}, newError("Invalid data length", ErrInvalidLength)
	}

	h := SecretHeader{
		Version:       binary.BigEndian.Uint16(b),
		PubKeyType:    b[2],
		SharedKeyType: b[3],
	}

	if h.Version != SecretVersion {
		return h, newError(fmt.Sprintf("Unsupported version 0x%04x", h.Version), ErrUnsupportedHeader)
	}
	if _, ok := supportedPubKeyTypes[h.PubKeyType]; !ok {
		return h, newError(fmt.Sprintf("Unsupported public key type 0x%02x", h.PubKeyType), ErrUnsupportedHeader)
	}
	if h.SharedKeyType != SharedKeyTypeAESGCM {
		return h, newError(fmt.Sprintf("Unsupported shared key type 0x%02x", h.SharedKeyType), ErrUnsupportedHeader)
	}
	return h, nil
}

// SecretEnvelope is a parsed hybrid envelope:
// header(4) || wrappedKey || iv(12) || opaque || tag(16).
// All slices alias the buffer passed to ParseSecretEnvelope.
type SecretEnvelope struct {
	Header     SecretHeader
	WrappedKey []byte
	IV         []byte
	// Sealed is opaque || tag.
	Sealed []byte

	aad []byte
}

// AAD returns header || wrappedKey || iv, the bytes authenticated alongside
// the ciphertext.
func (e *SecretEnvelope) AAD() []byte {
	return e.aad
}

// ParseSecretEnvelope splits data using wrappedKeySize, the modulus size in
// bytes of the key pair that wrapped the shared key. The header is validated
// before any other field is read.
func ParseSecretEnvelope(data []byte, wrappedKeySize int) (*SecretEnvelope, error) {
	h, err := ParseSecretHeader(data)
	if err != nil {
		return nil, err
	}
	if wrappedKeySize <= 0 {
		return nil, newError("Invalid wrapped key size", ErrInvalidKeySize)
	}

	ivStart := SecretHeaderSize + wrappedKeySize
	sealedStart := ivStart + SecretIVSize
	if len(data) < sealedStart+GCMTagSize {
		return nil, newError("Invalid data length", ErrInvalidLength)
	}

	return &SecretEnvelope{
		Header:     h,
		WrappedKey: data[SecretHeaderSize:ivStart],
		IV:         data[ivStart:sealedStart],
		Sealed:     data[sealedStart:],
		aad:        data[:sealedStart],
	}, nil
}

// Open decrypts the envelope payload with the unwrapped shared key.
func (e *SecretEnvelope) Open(key []byte) ([]byte, error) {
	params, err := BuildTagParams(GCMTagBits, e.IV)
	if err != nil {
		return nil, err
	}
	plaintext, err := openGCM(key, params, e.Sealed, e.aad)
	if err != nil {
		return nil, newError("Decryption failed", err)
	}
	return plaintext, nil
}

// OpenSecretEnvelope parses data, unwraps the shared key with unwrap and
// decrypts the payload. The unwrapped key is wiped before returning.
func OpenSecretEnvelope(data []byte, wrappedKeySize int, unwrap func(wrapped []byte) ([]byte, error)) ([]byte, error) {
	env, err := ParseSecretEnvelope(data, wrappedKeySize)
	if err != nil {
		return nil, err
	}

	key, err := unwrap(env.WrappedKey)
	if err != nil {
		return nil, newError("Failed to unwrap shared key", err)
	}
	defer Wipe(key)

	return env.Open(key)
}

// SealSecretEnvelope produces a secret envelope for plaintext. A fresh
// AES-256 key is generated, wrapped with wrap, and used once.
func SealSecretEnvelope(plaintext []byte, wrap func(key []byte) ([]byte, error)) ([]byte, error) {
	key, err := randomBytes(SecretKeySize, "key")
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	wrapped, err := wrap(key)
	if err != nil {
		return nil, newError("Failed to wrap shared key", err)
	}

	iv, err := GenerateIV(SecretIVSize)
	if err != nil {
		return nil, err
	}

	header := SecretHeader{
		Version:       SecretVersion,
		PubKeyType:    PubKeyTypeRSAOAEP,
		SharedKeyType: SharedKeyTypeAESGCM,
	}

	aad := make([]byte, 0, SecretHeaderSize+len(wrapped)+len(iv))
	aad = append(aad, header.Bytes()...)
	aad = append(aad, wrapped...)
	aad = append(aad, iv...)

	params, err := BuildTagParams(GCMTagBits, iv)
	if err != nil {
		return nil, err
	}
	sealed, err := sealGCM(key, params, plaintext, aad)
	if err != nil {
		return nil, newError("Encryption failed", err)
	}

	return append(aad, sealed...), nil
}
