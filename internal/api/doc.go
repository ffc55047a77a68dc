// Package api provides the HTTP client for the remote configuration service
// that provisions secrets to devices. It handles authentication and
// request/response serialization. Requests are never retried; a failed
// provisioning flow is restarted by the caller.
//
// # Endpoints
//
//   - [Client.ListSecrets]: GET /api/devices/{fingerprint}/secrets
//   - [Client.GetSecret]: GET /api/secrets/{id}
//
// The API key is sent via the X-API-Key header on every request.
//
// # Error Handling
//
// The package defines sentinel errors for common API error conditions:
//
//   - [ErrUnauthorized]: Invalid or expired API key (401, 403).
//   - [ErrDeviceNotFound]: No secrets registered for the fingerprint (404).
//   - [ErrSecretNotFound]: Secret does not exist (404).
//   - [ErrRateLimited]: Rate limit exceeded (429).
//
// Use errors.Is to check for specific error types:
//
//	if errors.Is(err, api.ErrSecretNotFound) {
//	    // Handle missing secret
//	}
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use. Multiple goroutines may call
// methods on a single Client simultaneously.
package api
