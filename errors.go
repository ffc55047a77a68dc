package relaymq

import (
	"errors"
	"fmt"

	"github.com/relaymq/client-go/internal/api"
	"github.com/relaymq/client-go/internal/crypto"
	"github.com/relaymq/client-go/internal/keystore"
	"github.com/relaymq/client-go/internal/provision"
	"github.com/relaymq/client-go/internal/transport"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingAPIKey is returned when a config service URL is given without an API key.
	ErrMissingAPIKey = errors.New("API key is required")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrEncryptionDisabled is returned by Seal and Open when no envelope
	// transformation is configured.
	ErrEncryptionDisabled = errors.New("payload encryption is not configured")

	// ErrProvisioningDisabled is returned by Provision when no config service is configured.
	ErrProvisioningDisabled = errors.New("config service is not configured")

	// ErrUnauthorized is returned when the API key is invalid or expired.
	ErrUnauthorized = errors.New("invalid or expired API key")

	// ErrDeviceNotFound is returned when the config service knows no device
	// with the local fingerprint.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrSecretNotFound is returned when a listed secret cannot be fetched.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Errors raised by the cryptographic layer and the provisioning flow. They
// are the internal values, so errors.Is matches through any wrapping.
var (
	// ErrCrypto matches every cryptographic failure.
	ErrCrypto = crypto.ErrCrypto
	// ErrDecryptionFailed is returned when an envelope fails authentication
	// or padding checks, including a wrong password.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed
	// ErrInvalidLength is returned for an envelope too short to hold its header.
	ErrInvalidLength = crypto.ErrInvalidLength
	// ErrUnsupportedHeader is returned for a secret envelope with an unknown
	// version or key type.
	ErrUnsupportedHeader = crypto.ErrUnsupportedHeader

	// ErrAliasNotFound is returned for an unknown key alias.
	ErrAliasNotFound = keystore.ErrAliasNotFound
	// ErrUnwrapFailed is returned when a wrapped key cannot be opened with the
	// local private key.
	ErrUnwrapFailed = keystore.ErrUnwrapFailed
	// ErrEphemeralKeeper is returned by New when the key store keeper has no
	// fixed key but the bucket persists across restarts.
	ErrEphemeralKeeper = keystore.ErrEphemeralKeeper

	// ErrNoAliases is returned by Provision when the key store is empty.
	ErrNoAliases = provision.ErrNoAliases
	// ErrAliasSelection is returned by Provision when several key pairs
	// exist and none could be chosen.
	ErrAliasSelection = provision.ErrAliasSelection
	// ErrFingerprintMismatch is returned when a secret was issued for a
	// different key pair.
	ErrFingerprintMismatch = provision.ErrFingerprintMismatch
	// ErrMissingField is returned when the config service omits a mandatory field.
	ErrMissingField = provision.ErrMissingField

	// ErrMessageDropped wraps the reason an inbound message was discarded.
	ErrMessageDropped = transport.ErrOpenFailed
)

// RelayMQError is implemented by all SDK errors.
type RelayMQError interface {
	error
	RelayMQError() // marker method
}

// APIError represents an HTTP error from the config service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string // if returned by server
	// Resource is "device", "secret" or empty.
	Resource string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (request_id: %s)", e.StatusCode, e.Message, e.RequestID)
		}
		return fmt.Sprintf("API error %d (request_id: %s)", e.StatusCode, e.RequestID)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// RelayMQError implements the RelayMQError interface.
func (e *APIError) RelayMQError() {}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 404:
		switch e.Resource {
		case string(api.ResourceDevice):
			return target == ErrDeviceNotFound
		case string(api.ResourceSecret):
			return target == ErrSecretNotFound
		default:
			return target == ErrDeviceNotFound || target == ErrSecretNotFound
		}
	case 429:
		return target == ErrRateLimited
	}
	return false
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RelayMQError implements the RelayMQError interface.
func (e *NetworkError) RelayMQError() {}

// ProvisioningError reports where a provisioning flow failed.
type ProvisioningError struct {
	FlowID   string
	SecretID string // empty for flow-level failures
	State    string // e.g. "verifying_fingerprint"
	Err      error
}

func (e *ProvisioningError) Error() string {
	if e.SecretID != "" {
		return fmt.Sprintf("provisioning failed while %s secret %q: %v", e.State, e.SecretID, e.Err)
	}
	return fmt.Sprintf("provisioning failed while %s: %v", e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// RelayMQError implements the RelayMQError interface.
func (e *ProvisioningError) RelayMQError() {}

// wrapError converts internal errors to public errors.
// This ensures that errors.Is() checks work with public sentinel errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var flowErr *provision.FlowError
	if errors.As(err, &flowErr) {
		return &ProvisioningError{
			FlowID:   flowErr.FlowID,
			SecretID: flowErr.SecretID,
			State:    flowErr.State.String(),
			Err:      wrapError(flowErr.Err),
		}
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			RequestID:  apiErr.RequestID,
			Resource:   string(apiErr.ResourceType),
		}
	}

	var netErr *api.NetworkError
	if errors.As(err, &netErr) {
		return &NetworkError{
			Err: netErr.Err,
			URL: netErr.URL,
		}
	}

	return err
}
