package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"strings"
)

// Mode selects the symmetric envelope variant. Each mode fixes its own IV
// and tag lengths.
type Mode uint8

// Supported envelope modes.
const (
	// ModeCBC is the block-chaining variant: salt || iv(16) || ciphertext.
	ModeCBC Mode = iota + 1
	// ModeGCM is the authenticated-counter variant:
	// salt || iv(16) || opaque || tag(16).
	ModeGCM
)

func (m Mode) String() string {
	switch m {
	case ModeCBC:
		return "CBC"
	case ModeGCM:
		return "GCM"
	default:
		return "unknown"
	}
}

// IVSize returns the IV length carried in the envelope.
func (m Mode) IVSize() int {
	switch m {
	case ModeCBC:
		return BlockSize
	case ModeGCM:
		return GCMIVSize
	default:
		return 0
	}
}

// TagSize returns the authentication tag length, zero for unauthenticated modes.
func (m Mode) TagSize() int {
	if m == ModeGCM {
		return GCMTagSize
	}
	return 0
}

// ParseMode resolves a configured mode name, ignoring case.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "cbc", "block-chaining":
		return ModeCBC, nil
	case "gcm", "authenticated-counter":
		return ModeGCM, nil
	default:
		return 0, newError("Unsupported mode "+name, ErrInvalidAlgorithm)
	}
}

// envelopeCipher encrypts payloads into self-describing envelopes. The key is
// re-derived from the password and a fresh salt for every call.
type envelopeCipher struct {
	kdf     DerivationParams
	mode    Mode
	padding Padding
}

func (c *envelopeCipher) deriveKey(password, salt []byte) ([]byte, error) {
	return DeriveKey(password, salt, c.kdf.Iterations, c.kdf.KeyBits, c.kdf.Algorithm)
}

func (c *envelopeCipher) encrypt(plaintext, password []byte) ([]byte, error) {
	salt, err := GenerateSalt(c.kdf.SaltBytes)
	if err != nil {
		return nil, err
	}

	key, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	iv, err := GenerateIV(c.mode.IVSize())
	if err != nil {
		return nil, err
	}

	var body []byte
	switch c.mode {
	case ModeCBC:
		padded, err := c.padding.pad(plaintext)
		if err != nil {
			return nil, newError("Encryption failed", err)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, newError("Encryption failed", err)
		}
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
		body = padded
	case ModeGCM:
		params, err := BuildTagParams(GCMTagBits, iv)
		if err != nil {
			return nil, err
		}
		body, err = sealGCM(key, params, plaintext, nil)
		if err != nil {
			return nil, newError("Encryption failed", err)
		}
	default:
		return nil, newError("Invalid calling sequence", ErrInvalidSequence)
	}

	out := make([]byte, 0, len(salt)+len(iv)+len(body))
	out = append(out, salt...)
	out = append(out, iv...)
	return append(out, body...), nil
}

func (c *envelopeCipher) decrypt(envelope, password []byte) ([]byte, error) {
	saltLen, ivLen := c.kdf.SaltBytes, c.mode.IVSize()
	if remain := len(envelope) - saltLen - ivLen; remain <= 0 || remain < c.mode.TagSize() {
		return nil, newError("Invalid data length", ErrInvalidLength)
	}

	salt := envelope[:saltLen]
	iv := envelope[saltLen : saltLen+ivLen]
	body := envelope[saltLen+ivLen:]

	key, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer Wipe(key)

	switch c.mode {
	case ModeCBC:
		if len(body)%BlockSize != 0 {
			return nil, newError("Decryption failed", ErrDecryptionFailed)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, newError("Decryption failed", err)
		}
		buf := make([]byte, len(body))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, body)
		plaintext, err := c.padding.unpad(buf)
		if err != nil {
			Wipe(buf)
			return nil, newError("Decryption failed", ErrDecryptionFailed)
		}
		return plaintext, nil
	case ModeGCM:
		params, err := BuildTagParams(GCMTagBits, iv)
		if err != nil {
			return nil, err
		}
		plaintext, err := openGCM(key, params, body, nil)
		if err != nil {
			return nil, newError("Decryption failed", ErrDecryptionFailed)
		}
		return plaintext, nil
	default:
		return nil, newError("Invalid calling sequence", ErrInvalidSequence)
	}
}

// overhead returns the envelope length for a plaintext of n bytes.
func (c *envelopeCipher) overhead(n int) int {
	head := c.kdf.SaltBytes + c.mode.IVSize()
	if c.mode == ModeCBC {
		return head + c.padding.paddedLen(n)
	}
	return head + n + c.mode.TagSize()
}
