package api

// SecretDescriptor is one entry of a device's secret list. An individual
// descriptor carries ID and Target; a batch descriptor carries SharedKey and
// IDs instead.
type SecretDescriptor struct {
	ID     string `json:"id,omitempty"`
	Target string `json:"target,omitempty"`

	SharedKey string   `json:"sharedKey,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// IsBatch reports whether d describes several secrets under a shared key.
func (d SecretDescriptor) IsBatch() bool {
	return d.SharedKey != "" || len(d.IDs) > 0
}

// SecretListResponse represents the GET /api/devices/{fingerprint}/secrets
// response.
type SecretListResponse struct {
	Secrets []SecretDescriptor `json:"secrets"`
}

// Secret represents the GET /api/secrets/{id} response. Value is a base64
// encoded secret envelope wrapped for the device named by Fingerprint.
type Secret struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Value       string `json:"value"`
	Target      string `json:"target,omitempty"`
}
