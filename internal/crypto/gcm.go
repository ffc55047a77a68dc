package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// TagParams fixes the authentication tag length and IV of one AEAD call.
type TagParams struct {
	TagBits int
	IV      []byte
}

// TagSize returns the tag length in bytes.
func (p TagParams) TagSize() int {
	return p.TagBits / 8
}

// BuildTagParams validates tagBits and pairs it with iv.
func BuildTagParams(tagBits int, iv []byte) (TagParams, error) {
	if tagBits <= 0 || tagBits%8 != 0 {
		return TagParams{}, newError(fmt.Sprintf("Tag length %d is not a positive multiple of 8", tagBits), nil)
	}
	if len(iv) == 0 {
		return TagParams{}, newError("IV must not be empty", ErrInvalidNonceSize)
	}
	return TagParams{TagBits: tagBits, IV: iv}, nil
}

func validAESKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("%w: got %d, want 16, 24 or 32", ErrInvalidKeySize, len(key))
	}
}

func newGCM(key []byte, params TagParams) (cipher.AEAD, error) {
	if err := validAESKey(key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	tagSize := params.TagSize()
	switch {
	case tagSize == GCMTagSize:
		return cipher.NewGCMWithNonceSize(block, len(params.IV))
	case len(params.IV) == 12:
		return cipher.NewGCMWithTagSize(block, tagSize)
	default:
		return nil, fmt.Errorf("%w: tag of %d bytes requires a 12 byte IV", ErrInvalidNonceSize, tagSize)
	}
}

// sealGCM encrypts plaintext with AES-GCM and returns opaque || tag.
func sealGCM(key []byte, params TagParams, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key, params)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, params.IV, plaintext, aad), nil
}

// openGCM authenticates and decrypts opaque || tag.
func openGCM(key []byte, params TagParams, sealed, aad []byte) ([]byte, error) {
	aead, err := newGCM(key, params)
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.Overhead() {
		return nil, ErrInvalidLength
	}

	plaintext, err := aead.Open(nil, params.IV, sealed, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
