package crypto

import (
	"crypto/rand"
	"io"

	"github.com/awnumar/memguard"
)

// randReader is the random source for salts, IVs and generated keys.
// It can be overridden for testing.
var randReader io.Reader = rand.Reader

// GenerateSalt returns n cryptographically secure random bytes.
func GenerateSalt(n int) ([]byte, error) {
	return randomBytes(n, "salt")
}

// GenerateIV returns n cryptographically secure random bytes.
func GenerateIV(n int) ([]byte, error) {
	return randomBytes(n, "IV")
}

func randomBytes(n int, what string) ([]byte, error) {
	if n <= 0 {
		return nil, newError("Invalid "+what+" length", nil)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, newError("Failed to generate "+what, err)
	}
	return b, nil
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	if len(b) > 0 {
		memguard.WipeBytes(b)
	}
}
