package keystore

import "errors"

var (
	// ErrAliasNotFound is returned when no entry exists for an alias.
	ErrAliasNotFound = errors.New("alias not found")

	// ErrAliasExists is returned when importing over an existing entry.
	ErrAliasExists = errors.New("alias already exists")

	// ErrInvalidAlias is returned for empty aliases or aliases containing
	// characters outside [A-Za-z0-9._-].
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrNotKeyPair is returned when an operation needs a private key but the
	// alias holds a certificate-only entry.
	ErrNotKeyPair = errors.New("alias does not hold a private key")

	// ErrUnwrapFailed is returned when OAEP decryption fails, including when
	// the wrapping party used a different digest.
	ErrUnwrapFailed = errors.New("unwrap failed")

	// ErrInvalidCertificate is returned when a trusted certificate cannot be
	// parsed.
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrUnsupportedDigest is returned for OAEP digests other than SHA-1 and
	// SHA-256.
	ErrUnsupportedDigest = errors.New("unsupported OAEP digest")

	// ErrEphemeralKeeper is returned by Open when a keeper without a fixed
	// key is paired with a persistent bucket.
	ErrEphemeralKeeper = errors.New("keeper key does not survive a restart")
)
