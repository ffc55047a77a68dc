package keystore

import (
	"crypto"
	"fmt"
	"net/url"
	"strings"

	// Register hash implementations used by OAEP.
	_ "crypto/sha1"
	_ "crypto/sha256"
)

// Digest is an OAEP digest of a store, used either as the label hash or as
// the MGF1 hash.
type Digest string

// Supported OAEP digests.
const (
	DigestSHA1   Digest = "SHA-1"
	DigestSHA256 Digest = "SHA-256"
)

// ParseDigest resolves "SHA-1", "SHA1", "SHA-256" or "SHA256", ignoring case.
// An empty name selects SHA-256.
func ParseDigest(name string) (Digest, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "-", "")) {
	case "", "SHA256":
		return DigestSHA256, nil
	case "SHA1":
		return DigestSHA1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDigest, name)
	}
}

func (d Digest) hash() (crypto.Hash, error) {
	switch d {
	case DigestSHA1:
		return crypto.SHA1, nil
	case DigestSHA256:
		return crypto.SHA256, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDigest, string(d))
	}
}

// Config configures a Store.
type Config struct {
	// BucketURL locates entry records, e.g. "mem://" or "file:///var/lib/relaymq/keys".
	BucketURL string
	// KeeperURL locates the keeper sealing private keys, e.g.
	// "base64key://<key>" or "hashivault://<key-id>". A bare "base64key://"
	// draws a new key per process and is only accepted with a "mem://"
	// bucket.
	KeeperURL string
	// KeyBits is the RSA modulus size for new key pairs.
	KeyBits int
	// Digest is the OAEP digest shared with the wrapping party.
	Digest Digest
	// MGFDigest is the MGF1 digest. Empty means Digest. Java's
	// OAEPWithSHA-256AndMGF1Padding pairs SHA-256 with MGF1-SHA1.
	MGFDigest Digest
}

// DefaultKeyBits is the RSA modulus size used when Config.KeyBits is zero.
const DefaultKeyBits = 2048

func (c *Config) setDefaults() {
	if c.BucketURL == "" {
		c.BucketURL = "mem://"
	}
	if c.KeeperURL == "" {
		c.KeeperURL = "base64key://"
	}
	if c.KeyBits == 0 {
		c.KeyBits = DefaultKeyBits
	}
	if c.Digest == "" {
		c.Digest = DigestSHA256
	}
}

// validate rejects a per-process keeper key over a bucket that outlives the
// process: records written by one run could never be unsealed by the next.
func (c *Config) validate() error {
	if EphemeralKeeper(c.KeeperURL) && !MemoryBucket(c.BucketURL) {
		return fmt.Errorf("%w: %q with bucket %q", ErrEphemeralKeeper, c.KeeperURL, c.BucketURL)
	}
	return nil
}

// EphemeralKeeper reports whether keeperURL names a local keeper without a
// key, which gocloud.dev fills with a random key on every open.
func EphemeralKeeper(keeperURL string) bool {
	u, err := url.Parse(keeperURL)
	if err != nil {
		return false
	}
	return u.Scheme == "base64key" && u.Host == ""
}

// MemoryBucket reports whether bucketURL names an in-memory bucket.
func MemoryBucket(bucketURL string) bool {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return false
	}
	return u.Scheme == "mem"
}
