package fingerprint

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireString appends a uint32 length prefix and b.
func wireString(b []byte) []byte {
	out := make([]byte, 4, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	return append(out, b...)
}

// mpint encodes a non-negative integer in two's-complement with a leading
// zero byte when the high bit is set.
func mpint(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	return wireString(b)
}

func manualFingerprint(pub *rsa.PublicKey) string {
	var blob []byte
	blob = append(blob, wireString([]byte("ssh-rsa"))...)
	blob = append(blob, mpint(big.NewInt(int64(pub.E)))...)
	blob = append(blob, mpint(pub.N)...)
	sum := sha256.Sum256(blob)
	return base64.RawStdEncoding.EncodeToString(sum[:])
}

func generateDER(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, der
}

func TestCompute_MatchesWireEncoding(t *testing.T) {
	key, der := generateDER(t)

	fp, err := Compute(der)
	require.NoError(t, err)

	assert.Equal(t, manualFingerprint(&key.PublicKey), fp)
	assert.Len(t, fp, 43)
	assert.False(t, strings.HasSuffix(fp, "="), "fingerprint must not be padded")
	assert.False(t, strings.HasPrefix(fp, Prefix))
}

func TestCompute_Stable(t *testing.T) {
	_, der := generateDER(t)
	_, other := generateDER(t)

	a, err := Compute(der)
	require.NoError(t, err)
	b, err := Compute(der)
	require.NoError(t, err)
	c, err := Compute(other)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCompute_Errors(t *testing.T) {
	_, err := Compute([]byte("not a key"))
	assert.True(t, errors.Is(err, ErrInvalidPublicKey))

	ec, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&ec.PublicKey)
	require.NoError(t, err)

	_, err = Compute(der)
	assert.True(t, errors.Is(err, ErrUnsupportedKeyType))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		want   bool
	}{
		{"identical", "abc123", "abc123", true},
		{"remote prefixed", "abc123", "SHA256:abc123", true},
		{"different", "abc123", "SHA256:abc124", false},
		{"lowercase prefix is not stripped", "abc123", "sha256:abc123", false},
		{"empty local", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.local, tt.remote))
		})
	}
}
