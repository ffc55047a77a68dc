package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAliases is returned when the key store holds no key pair.
	ErrNoAliases = errors.New("no key pair aliases available")

	// ErrAliasSelection is returned when several aliases exist and none was
	// chosen, or the chosen alias is not one of them.
	ErrAliasSelection = errors.New("alias selection failed")

	// ErrMissingField is returned when a descriptor or fetched secret lacks a
	// mandatory field.
	ErrMissingField = errors.New("missing mandatory field")

	// ErrFingerprintMismatch is returned when a fetched secret was issued for
	// a different key pair.
	ErrFingerprintMismatch = errors.New("fingerprint unmatched")

	// ErrSecretMismatch is returned when the service answers with a secret
	// other than the one requested.
	ErrSecretMismatch = errors.New("secret id mismatch")

	// ErrInvalidSecretValue is returned when a secret value is not base64.
	ErrInvalidSecretValue = errors.New("invalid secret value")
)

// FlowError reports the state a flow was in when it failed.
type FlowError struct {
	FlowID   string
	SecretID string
	State    State
	Err      error
}

func (e *FlowError) Error() string {
	if e.SecretID != "" {
		return fmt.Sprintf("provisioning flow %s failed while %s secret %q: %v", e.FlowID, e.State, e.SecretID, e.Err)
	}
	return fmt.Sprintf("provisioning flow %s failed while %s: %v", e.FlowID, e.State, e.Err)
}

// Unwrap returns the underlying error.
func (e *FlowError) Unwrap() error {
	return e.Err
}

// secretError tags a per-secret failure with its stage.
type secretError struct {
	id    string
	state State
	err   error
}

func (e *secretError) Error() string { return e.err.Error() }
func (e *secretError) Unwrap() error { return e.err }
