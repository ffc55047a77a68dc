package api

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
)

// Sentinels for the configuration service. An *APIError matches them
// through errors.Is according to its status code.
var (
	ErrMissingAPIKey  = errors.New("API key is required")
	ErrMissingBaseURL = errors.New("base URL is required")

	// ErrUnauthorized covers 401 and 403: the service knows no device for
	// this API key, or the key was revoked.
	ErrUnauthorized = errors.New("invalid or expired API key")
	// ErrDeviceNotFound is a 404 on the secret listing, meaning no secrets
	// were ever issued for the fingerprint.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrSecretNotFound is a 404 on a single secret, usually one revoked
	// between listing and fetching.
	ErrSecretNotFound = errors.New("secret not found")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

// ResourceType names the endpoint family a 404 came from.
type ResourceType string

const (
	ResourceUnknown ResourceType = ""
	ResourceDevice  ResourceType = "device"
	ResourceSecret  ResourceType = "secret"
)

// APIError is a non-2xx reply from the configuration service. RequestID is
// taken from the request_id field of the body, or else the X-Request-Id
// header.
type APIError struct {
	StatusCode   int
	Message      string
	RequestID    string
	ResourceType ResourceType
}

func (e *APIError) Error() string {
	msg := "API error " + strconv.Itoa(e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request_id: " + e.RequestID + ")"
	}
	return msg
}

// Is reports whether target is one of the sentinels for the status code.
func (e *APIError) Is(target error) bool {
	return slices.Contains(e.sentinels(), target)
}

func (e *APIError) sentinels() []error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return []error{ErrUnauthorized}
	case http.StatusTooManyRequests:
		return []error{ErrRateLimited}
	case http.StatusNotFound:
		switch e.ResourceType {
		case ResourceDevice:
			return []error{ErrDeviceNotFound}
		case ResourceSecret:
			return []error{ErrSecretNotFound}
		}
		// Raised before the endpoint tagged it.
		return []error{ErrDeviceNotFound, ErrSecretNotFound}
	}
	return nil
}

// WithResourceType tags the *APIError inside err with rt so a 404 resolves
// to a single sentinel. The tagged error is a copy; other errors pass
// through.
func WithResourceType(err error, rt ResourceType) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	tagged := *apiErr
	tagged.ResourceType = rt
	return &tagged
}

// NetworkError is a request that never got an HTTP reply.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
