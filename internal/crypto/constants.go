package crypto

const (
	// BlockSize is the AES block size in bytes. The block-chaining envelope
	// uses an IV of exactly this length.
	BlockSize = 16

	// GCMIVSize is the size of the IV carried in an authenticated message
	// envelope.
	GCMIVSize = 16
	// GCMTagSize is the size of the authentication tag in bytes.
	GCMTagSize = 16
	// GCMTagBits is GCMTagSize expressed in bits.
	GCMTagBits = GCMTagSize * 8

	// SecretIVSize is the size of the IV carried in a hybrid secret envelope.
	// It is intentionally independent of GCMIVSize.
	SecretIVSize = 12
	// SecretKeySize is the size of the per-secret AES key wrapped inside a
	// hybrid secret envelope.
	SecretKeySize = 32

	// SecretHeaderSize is the size of the hybrid secret envelope header.
	SecretHeaderSize = 4
	// SecretVersion is the only supported hybrid envelope version.
	SecretVersion uint16 = 0x0001
	// PubKeyTypeRSAOAEP marks a shared key wrapped with RSA-OAEP.
	PubKeyTypeRSAOAEP byte = 0x00
	// SharedKeyTypeAESGCM marks an AES-GCM shared key.
	SharedKeyTypeAESGCM byte = 0x01

	// DefaultSaltBytes is the default salt length for key derivation.
	DefaultSaltBytes = 8
	// DefaultIterations is the default PBKDF2 iteration count.
	DefaultIterations = 10000
	// DefaultKeyBits is the default derived key length.
	DefaultKeyBits = 256
)

// supportedPubKeyTypes lists the public key types a secret envelope may name.
var supportedPubKeyTypes = map[byte]string{
	PubKeyTypeRSAOAEP: "RSA-OAEP",
}
