package crypto

import (
	"crypto/subtle"
	"errors"
	"io"
	"strings"
)

// Padding is a block padding scheme for the block-chaining envelope.
type Padding uint8

// Supported padding schemes.
const (
	PaddingNone Padding = iota
	PaddingPKCS7
	PaddingISO10126
)

var errBadPadding = errors.New("bad padding")

func (p Padding) String() string {
	switch p {
	case PaddingNone:
		return "NoPadding"
	case PaddingPKCS7:
		return "PKCS7Padding"
	case PaddingISO10126:
		return "ISO10126Padding"
	default:
		return "unknown"
	}
}

// ParsePadding resolves a configured padding name. PKCS5 is treated as PKCS7.
func ParsePadding(name string) (Padding, error) {
	switch strings.ToLower(name) {
	case "", "none", "nopadding":
		return PaddingNone, nil
	case "pkcs7", "pkcs7padding", "pkcs5", "pkcs5padding":
		return PaddingPKCS7, nil
	case "iso10126", "iso10126padding":
		return PaddingISO10126, nil
	default:
		return 0, newError("Unsupported padding "+name, ErrInvalidAlgorithm)
	}
}

// paddedLen returns the length of n bytes after padding.
func (p Padding) paddedLen(n int) int {
	if p == PaddingNone {
		return n
	}
	return (n/BlockSize + 1) * BlockSize
}

func (p Padding) pad(data []byte) ([]byte, error) {
	if p == PaddingNone {
		if len(data)%BlockSize != 0 {
			return nil, errors.New("input length not a multiple of block size")
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}

	n := BlockSize - len(data)%BlockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	fill := out[len(data) : len(out)-1]

	switch p {
	case PaddingPKCS7:
		for i := range fill {
			fill[i] = byte(n)
		}
	case PaddingISO10126:
		if _, err := io.ReadFull(randReader, fill); err != nil {
			return nil, err
		}
	}
	out[len(out)-1] = byte(n)
	return out, nil
}

func (p Padding) unpad(data []byte) ([]byte, error) {
	if p == PaddingNone {
		return data, nil
	}
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, errBadPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize {
		return nil, errBadPadding
	}

	if p == PaddingPKCS7 {
		good := 1
		for _, b := range data[len(data)-n:] {
			good &= subtle.ConstantTimeByteEq(b, byte(n))
		}
		if good != 1 {
			return nil, errBadPadding
		}
	}

	return data[:len(data)-n], nil
}
