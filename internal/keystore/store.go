// Package keystore holds the device RSA key pairs used to receive
// provisioned secrets. Callers refer to a key pair only by alias: private
// keys are sealed by a gocloud.dev secrets keeper before they reach storage
// and are never returned. Entry records live in a gocloud.dev blob bucket.
package keystore

import (
	"context"
	stdcrypto "crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/secrets"

	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/fingerprint"

	// Register bucket drivers
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	// Register keeper drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

const entryPrefix = "entries/"

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// Keeper seals and unseals private key material. *secrets.Keeper
// implements it.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

var _ Keeper = (*secrets.Keeper)(nil)

// EntryKind distinguishes key pairs from certificate-only entries.
type EntryKind string

// Entry kinds.
const (
	KindKeyPair     EntryKind = "keypair"
	KindCertificate EntryKind = "certificate"
)

// record is the persisted form of an entry.
type record struct {
	Alias     string    `json:"alias"`
	Kind      EntryKind `json:"kind"`
	PublicKey []byte    `json:"publicKey"`
	SealedKey []byte    `json:"sealedKey,omitempty"`
	CertDER   []byte    `json:"certificate,omitempty"`
	KeyBits   int       `json:"keyBits"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store manages key pair and trusted certificate entries.
type Store struct {
	bucket     *blob.Bucket
	keeper     Keeper
	keyBits    int
	digest     Digest
	mgfDigest  Digest
	logger     *slog.Logger
	randReader io.Reader

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithKeyBits sets the RSA modulus size for new key pairs.
func WithKeyBits(bits int) Option {
	return func(s *Store) {
		s.keyBits = bits
	}
}

// WithDigest sets the OAEP digest.
func WithDigest(d Digest) Option {
	return func(s *Store) {
		s.digest = d
	}
}

// WithMGFDigest sets the MGF1 digest when it differs from the OAEP digest.
func WithMGFDigest(d Digest) Option {
	return func(s *Store) {
		s.mgfDigest = d
	}
}

// WithRandReader sets the entropy source for key generation and OAEP.
func WithRandReader(r io.Reader) Option {
	return func(s *Store) {
		s.randReader = r
	}
}

// New returns a Store over an already opened bucket and keeper. The store
// takes ownership of both and closes them in Close.
func New(bucket *blob.Bucket, keeper Keeper, opts ...Option) (*Store, error) {
	s := &Store{
		bucket:     bucket,
		keeper:     keeper,
		keyBits:    DefaultKeyBits,
		digest:     DigestSHA256,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		randReader: rand.Reader,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mgfDigest == "" {
		s.mgfDigest = s.digest
	}

	if _, err := s.digest.hash(); err != nil {
		return nil, err
	}
	if _, err := s.mgfDigest.hash(); err != nil {
		return nil, err
	}
	if s.keyBits < 1024 {
		return nil, fmt.Errorf("key size %d is below 1024 bits", s.keyBits)
	}
	return s, nil
}

// Open opens the bucket and keeper named by cfg and returns a Store.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open key bucket: %w", err)
	}

	keeper, err := secrets.OpenKeeper(ctx, cfg.KeeperURL)
	if err != nil {
		_ = bucket.Close()
		return nil, fmt.Errorf("failed to open key keeper: %w", err)
	}

	opts = append([]Option{WithKeyBits(cfg.KeyBits), WithDigest(cfg.Digest), WithMGFDigest(cfg.MGFDigest)}, opts...)
	s, err := New(bucket, keeper, opts...)
	if err != nil {
		_ = keeper.Close()
		_ = bucket.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the bucket and keeper.
func (s *Store) Close() error {
	return errors.Join(s.keeper.Close(), s.bucket.Close())
}

// Digest returns the OAEP digest of the store.
func (s *Store) Digest() Digest {
	return s.digest
}

// MGFDigest returns the MGF1 digest of the store.
func (s *Store) MGFDigest() Digest {
	return s.mgfDigest
}

func (s *Store) lock(alias string) func() {
	s.mu.Lock()
	l, ok := s.locks[alias]
	if !ok {
		l = &sync.Mutex{}
		s.locks[alias] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func validateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	return nil
}

func entryKey(alias string) string {
	return entryPrefix + alias + ".json"
}

func (s *Store) load(ctx context.Context, alias string) (*record, error) {
	if err := validateAlias(alias); err != nil {
		return nil, err
	}

	data, err := s.bucket.ReadAll(ctx, entryKey(alias))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
		}
		return nil, fmt.Errorf("failed to read entry %q: %w", alias, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode entry %q: %w", alias, err)
	}
	return &rec, nil
}

func (s *Store) save(ctx context.Context, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode entry %q: %w", rec.Alias, err)
	}
	opts := &blob.WriterOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"kind": string(rec.Kind)},
	}
	if err := s.bucket.WriteAll(ctx, entryKey(rec.Alias), data, opts); err != nil {
		return fmt.Errorf("failed to write entry %q: %w", rec.Alias, err)
	}
	return nil
}

// CreateOrReusePublicKey returns the DER public key of alias, generating and
// persisting a new RSA key pair first if alias has no entry. An existing key
// pair is returned unchanged.
func (s *Store) CreateOrReusePublicKey(ctx context.Context, alias string) ([]byte, error) {
	if err := validateAlias(alias); err != nil {
		return nil, err
	}
	unlock := s.lock(alias)
	defer unlock()

	rec, err := s.load(ctx, alias)
	switch {
	case err == nil:
		if rec.Kind != KindKeyPair {
			return nil, fmt.Errorf("%w: %q", ErrNotKeyPair, alias)
		}
		return rec.PublicKey, nil
	case !errors.Is(err, ErrAliasNotFound):
		return nil, err
	}

	priv, err := rsa.GenerateKey(s.randReader, s.keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	defer wipePrivateKey(priv)

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	defer crypto.Wipe(privDER)

	sealed, err := s.keeper.Encrypt(ctx, privDER)
	if err != nil {
		return nil, fmt.Errorf("failed to seal private key: %w", err)
	}

	rec = &record{
		Alias:     alias,
		Kind:      KindKeyPair,
		PublicKey: pubDER,
		SealedKey: sealed,
		KeyBits:   s.keyBits,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "key pair created", slog.String("alias", alias), slog.Int("key_bits", s.keyBits))
	return pubDER, nil
}

// ImportTrustedCertificate stores a certificate-only entry under alias.
// Such entries are excluded from ListAliases.
func (s *Store) ImportTrustedCertificate(ctx context.Context, alias string, certDER []byte) error {
	if err := validateAlias(alias); err != nil {
		return err
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	unlock := s.lock(alias)
	defer unlock()

	exists, err := s.bucket.Exists(ctx, entryKey(alias))
	if err != nil {
		return fmt.Errorf("failed to check entry %q: %w", alias, err)
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrAliasExists, alias)
	}

	keyBits := 0
	if rsaPub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
		keyBits = rsaPub.N.BitLen()
	}

	return s.save(ctx, &record{
		Alias:     alias,
		Kind:      KindCertificate,
		PublicKey: pubDER,
		CertDER:   certDER,
		KeyBits:   keyBits,
		CreatedAt: time.Now().UTC(),
	})
}

// DeleteKeyPair removes the entry stored under alias.
func (s *Store) DeleteKeyPair(ctx context.Context, alias string) error {
	if err := validateAlias(alias); err != nil {
		return err
	}
	unlock := s.lock(alias)
	defer unlock()

	if err := s.bucket.Delete(ctx, entryKey(alias)); err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return fmt.Errorf("%w: %q", ErrAliasNotFound, alias)
		}
		return fmt.Errorf("failed to delete entry %q: %w", alias, err)
	}

	s.logger.InfoContext(ctx, "entry deleted", slog.String("alias", alias))
	return nil
}

// ListAliases returns the sorted aliases that hold a private key.
func (s *Store) ListAliases(ctx context.Context) ([]string, error) {
	aliases := []string{}

	iter := s.bucket.List(&blob.ListOptions{Prefix: entryPrefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, ".json") {
			continue
		}

		alias := strings.TrimSuffix(strings.TrimPrefix(obj.Key, entryPrefix), ".json")
		rec, err := s.load(ctx, alias)
		if errors.Is(err, ErrAliasNotFound) || errors.Is(err, ErrInvalidAlias) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Kind == KindKeyPair {
			aliases = append(aliases, alias)
		}
	}

	slices.Sort(aliases)
	return aliases, nil
}

// PublicKey returns the PKIX DER public key stored under alias.
func (s *Store) PublicKey(ctx context.Context, alias string) ([]byte, error) {
	rec, err := s.load(ctx, alias)
	if err != nil {
		return nil, err
	}
	return rec.PublicKey, nil
}

// KeySize returns the RSA modulus size of alias in bytes, which is also the
// size of every value wrapped for it.
func (s *Store) KeySize(ctx context.Context, alias string) (int, error) {
	pub, err := s.rsaPublicKey(ctx, alias)
	if err != nil {
		return 0, err
	}
	return pub.Size(), nil
}

// CalcFingerprint returns the fingerprint of the key pair stored under alias.
func (s *Store) CalcFingerprint(ctx context.Context, alias string) (string, error) {
	rec, err := s.load(ctx, alias)
	if err != nil {
		return "", err
	}
	if rec.Kind != KindKeyPair {
		return "", fmt.Errorf("%w: %q", ErrNotKeyPair, alias)
	}
	return fingerprint.Compute(rec.PublicKey)
}

func (s *Store) rsaPublicKey(ctx context.Context, alias string) (*rsa.PublicKey, error) {
	rec, err := s.load(ctx, alias)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(rec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key of %q: %w", alias, err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q holds a %T", ErrNotKeyPair, alias, pub)
	}
	return rsaPub, nil
}

// EncryptBytes wraps data for alias with RSA-OAEP.
func (s *Store) EncryptBytes(ctx context.Context, alias string, data []byte) ([]byte, error) {
	pub, err := s.rsaPublicKey(ctx, alias)
	if err != nil {
		return nil, err
	}
	h, mgf, err := s.hashes()
	if err != nil {
		return nil, err
	}

	var out []byte
	if h == mgf {
		out, err = rsa.EncryptOAEP(h.New(), s.randReader, pub, data, nil)
	} else {
		out, err = encryptOAEP(h, mgf, s.randReader, pub, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to wrap for %q: %w", alias, err)
	}
	return out, nil
}

// DecryptBytes unwraps data with the private key of alias. The unsealed
// private key is wiped before returning.
func (s *Store) DecryptBytes(ctx context.Context, alias string, data []byte) ([]byte, error) {
	rec, err := s.load(ctx, alias)
	if err != nil {
		return nil, err
	}
	if rec.Kind != KindKeyPair || len(rec.SealedKey) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotKeyPair, alias)
	}

	h, mgf, err := s.hashes()
	if err != nil {
		return nil, err
	}

	privDER, err := s.keeper.Decrypt(ctx, rec.SealedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal private key of %q: %w", alias, err)
	}
	defer crypto.Wipe(privDER)

	key, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key of %q: %w", alias, err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotKeyPair, alias)
	}
	defer wipePrivateKey(priv)

	out, err := priv.Decrypt(nil, data, &rsa.OAEPOptions{Hash: h, MGFHash: mgf})
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnwrapFailed, alias)
	}
	return out, nil
}

// hashes returns the OAEP label hash and the MGF1 hash.
func (s *Store) hashes() (h, mgf stdcrypto.Hash, err error) {
	if h, err = s.digest.hash(); err != nil {
		return 0, 0, err
	}
	if mgf, err = s.mgfDigest.hash(); err != nil {
		return 0, 0, err
	}
	return h, mgf, nil
}

// wipePrivateKey zeroes every component the key could be rebuilt from,
// including the CRT values.
func wipePrivateKey(priv *rsa.PrivateKey) {
	for _, n := range []*big.Int{priv.D, priv.Precomputed.Dp, priv.Precomputed.Dq, priv.Precomputed.Qinv} {
		if n != nil {
			n.SetInt64(0)
		}
	}
	for _, p := range priv.Primes {
		p.SetInt64(0)
	}
}
