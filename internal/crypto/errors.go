package crypto

import "errors"

var (
	// ErrCrypto matches every *CryptoError via errors.Is.
	ErrCrypto = errors.New("crypto error")

	// ErrDecryptionFailed is returned when decryption fails. A wrong password
	// and a corrupted envelope are reported identically.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKeySize is returned when the AES key size is invalid.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when the nonce size is invalid.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrInvalidLength is returned when an envelope is too short to hold
	// its fixed-size fields.
	ErrInvalidLength = errors.New("invalid data length")

	// ErrInvalidSequence is returned when Encrypt or Decrypt is called on a
	// facade whose transformation was never set.
	ErrInvalidSequence = errors.New("invalid calling sequence")

	// ErrUnsupportedHeader is returned when a secret envelope header names an
	// unknown version or key type.
	ErrUnsupportedHeader = errors.New("unsupported envelope header")

	// ErrInvalidAlgorithm is returned when an unrecognized or unsupported
	// algorithm, mode or padding is requested.
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
)

// CryptoError is the single error kind reported by this package. Message is
// a short human readable description; Err, when set, is the cause.
type CryptoError struct {
	Message string
	Err     error
}

func (e *CryptoError) Error() string {
	if e.Err != nil {
		return "crypto: " + e.Message + ": " + e.Err.Error()
	}
	return "crypto: " + e.Message
}

// Unwrap returns the underlying error.
func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for ErrCrypto.
func (e *CryptoError) Is(target error) bool {
	return target == ErrCrypto
}

func newError(message string, err error) *CryptoError {
	return &CryptoError{Message: message, Err: err}
}
