package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "with message",
			err:      &APIError{StatusCode: 401, Message: "invalid API key"},
			expected: "API error 401: invalid API key",
		},
		{
			name:     "without message",
			err:      &APIError{StatusCode: 500},
			expected: "API error 500",
		},
		{
			name:     "with request ID",
			err:      &APIError{StatusCode: 404, Message: "not found", RequestID: "req-123"},
			expected: "API error 404: not found (request_id: req-123)",
		},
		{
			name:     "with request ID only",
			err:      &APIError{StatusCode: 500, RequestID: "req-456"},
			expected: "API error 500 (request_id: req-456)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.err.Error(); result != tt.expected {
				t.Errorf("Error() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		resource   ResourceType
		target     error
		expected   bool
	}{
		{"401 matches ErrUnauthorized", 401, ResourceUnknown, ErrUnauthorized, true},
		{"403 matches ErrUnauthorized", 403, ResourceUnknown, ErrUnauthorized, true},
		{"404 device", 404, ResourceDevice, ErrDeviceNotFound, true},
		{"404 device not secret", 404, ResourceDevice, ErrSecretNotFound, false},
		{"404 secret", 404, ResourceSecret, ErrSecretNotFound, true},
		{"404 unknown matches both", 404, ResourceUnknown, ErrDeviceNotFound, true},
		{"404 unknown matches secret", 404, ResourceUnknown, ErrSecretNotFound, true},
		{"404 does not match ErrUnauthorized", 404, ResourceUnknown, ErrUnauthorized, false},
		{"403 does not match ErrRateLimited", 403, ResourceUnknown, ErrRateLimited, false},
		{"429 matches ErrRateLimited", 429, ResourceUnknown, ErrRateLimited, true},
		{"500 does not match ErrUnauthorized", 500, ResourceUnknown, ErrUnauthorized, false},
		{"200 does not match anything", 200, ResourceUnknown, ErrUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.statusCode, ResourceType: tt.resource}
			if result := errors.Is(err, tt.target); result != tt.expected {
				t.Errorf("errors.Is() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestWithResourceType(t *testing.T) {
	if WithResourceType(nil, ResourceSecret) != nil {
		t.Error("nil should stay nil")
	}

	plain := errors.New("plain")
	if WithResourceType(plain, ResourceSecret) != plain {
		t.Error("non-API errors should be returned unchanged")
	}

	orig := &APIError{StatusCode: 404, RequestID: "r"}
	wrapped := fmt.Errorf("wrapped: %w", orig)
	got := WithResourceType(wrapped, ResourceSecret)
	var apiErr *APIError
	if !errors.As(got, &apiErr) || apiErr.ResourceType != ResourceSecret || apiErr.RequestID != "r" {
		t.Errorf("WithResourceType() = %#v", got)
	}
	if orig.ResourceType != ResourceUnknown {
		t.Errorf("original error was tagged: %q", orig.ResourceType)
	}
	if errors.Is(got, ErrDeviceNotFound) {
		t.Error("tagged secret 404 should not match ErrDeviceNotFound")
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &NetworkError{Err: inner, URL: "/x"}

	if !errors.Is(err, inner) {
		t.Error("NetworkError should unwrap to its cause")
	}
	if err.Error() != "network error: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}
