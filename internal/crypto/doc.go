// Package crypto provides the cryptographic primitives of the relaymq client:
// password based envelopes for message payloads and the hybrid envelope used
// to provision secrets to a device.
//
// # Message Envelopes
//
// A [Facade] is configured once with [Facade.SetTransformation] and then
// seals payloads keyed by a password. Every call draws a fresh salt and IV,
// derives a key with PBKDF2 and wipes it before returning. Two modes exist:
//
//   - CBC: salt || iv(16) || ciphertext, padded with NoPadding, PKCS7 or
//     ISO10126.
//
//   - GCM: salt || iv(16) || opaque || tag(16), no associated data.
//
// Decryption failures never reveal whether the password was wrong or the
// envelope was altered; both are reported as [ErrDecryptionFailed].
//
// # Secret Envelopes
//
// A secret envelope carries a payload encrypted under a one-time AES-256 key
// that is itself wrapped for a device key pair:
//
//	header(4) || wrappedKey || iv(12) || opaque || tag(16)
//
// The header is version 0x0001, a public key type and shared key type 0x01.
// Everything before opaque is authenticated as associated data. Headers are
// validated by [ParseSecretHeader] before any key material is touched.
//
// # Errors
//
// Every failure is a [*CryptoError], which matches [ErrCrypto] with errors.Is
// and unwraps to a more specific sentinel where one applies.
package crypto
