package api

import (
	"context"
	"fmt"
	"net/url"
)

// ListSecrets returns the secret descriptors registered for a device
// fingerprint. The fingerprint is sent without its "SHA256:" prefix.
func (c *Client) ListSecrets(ctx context.Context, fingerprint string) ([]SecretDescriptor, error) {
	var result SecretListResponse
	path := fmt.Sprintf("/api/devices/%s/secrets", url.PathEscape(fingerprint))
	if err := c.Do(ctx, "GET", path, nil, &result); err != nil {
		return nil, WithResourceType(err, ResourceDevice)
	}
	return result.Secrets, nil
}

// GetSecret fetches a single secret by id.
func (c *Client) GetSecret(ctx context.Context, id string) (*Secret, error) {
	var result Secret
	path := fmt.Sprintf("/api/secrets/%s", url.PathEscape(id))
	if err := c.Do(ctx, "GET", path, nil, &result); err != nil {
		return nil, WithResourceType(err, ResourceSecret)
	}
	return &result, nil
}
