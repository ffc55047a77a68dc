// Package fingerprint computes the canonical fingerprint of a device public
// key. The fingerprint is the SHA-256 digest of the key's SSH wire encoding
// (string "ssh-rsa", mpint e, mpint n) in unpadded standard base64, which is
// what `ssh-keygen -l` prints after the "SHA256:" prefix. A remote party
// holding the same key in any representation computes the same value.
package fingerprint

import (
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Prefix is the literal a remote fingerprint may carry.
const Prefix = "SHA256:"

var (
	// ErrInvalidPublicKey is returned when the input is not a DER public key.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrUnsupportedKeyType is returned for public keys other than RSA.
	ErrUnsupportedKeyType = errors.New("unsupported public key type")
)

// Compute returns the fingerprint of a PKIX DER encoded RSA public key.
func Compute(publicKeyDER []byte) (string, error) {
	pub, err := x509.ParsePKIXPublicKey(publicKeyDER)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKeyType, pub)
	}

	return FromRSA(rsaPub)
}

// FromRSA returns the fingerprint of pub.
func FromRSA(pub *rsa.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return Strip(ssh.FingerprintSHA256(sshPub)), nil
}

// Strip removes a leading "SHA256:" from a remote fingerprint.
func Strip(remote string) string {
	return strings.TrimPrefix(remote, Prefix)
}

// Match reports whether a remote fingerprint, with or without prefix, names
// the same key as local.
func Match(local, remote string) bool {
	if local == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(Strip(local)), []byte(Strip(remote))) == 1
}
