package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeviceIdentity is the device's self-report from the identity step. It is
// logged for the operator and never persisted.
type DeviceIdentity struct {
	DeviceID string `json:"deviceid"`
	APIKey   string `json:"apikey"`
	Accept   string `json:"accept"`
}

// ProvisioningRequest is the credential payload pushed to the device.
// ServerName must be a hostname rather than a literal IP: the device's
// embedded HTTP client needs it for its later TLS connection to the
// management endpoint.
type ProvisioningRequest struct {
	SSID       string `json:"ssid"`
	Password   string `json:"password"`
	ServerName string `json:"serverName"`
	Port       int    `json:"port"`
}

// HandshakeClient performs the two-step exchange with a device while its
// provisioning link is active. Retry policy belongs to the caller.
type HandshakeClient interface {
	FetchIdentity(ctx context.Context) (DeviceIdentity, error)
	// SendProvisioning returns the device's HTTP status code. Any status is
	// a successful send; the handshake has no acknowledgment protocol beyond
	// it, and the device may apply the configuration regardless.
	SendProvisioning(ctx context.Context, req ProvisioningRequest) (int, error)
}

// DeviceClientOptions customizes the HTTP handshake client.
type DeviceClientOptions struct {
	// BaseURL overrides the fixed link-local device address, for tests.
	BaseURL string
	// Timeout bounds each HTTP call. Defaults to DefaultHTTPTimeout.
	Timeout time.Duration
}

// DeviceClient talks to the device's link-local HTTP API.
type DeviceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDeviceClient constructs a handshake client.
func NewDeviceClient(opts DeviceClientOptions) *DeviceClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DeviceBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &DeviceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *DeviceClient) FetchIdentity(ctx context.Context) (DeviceIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+deviceIdentityPath, nil)
	if err != nil {
		return DeviceIdentity{}, errors.Wrapf(ErrIdentityFetch, "build request: %v", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DeviceIdentity{}, errors.Wrapf(ErrIdentityFetch, "%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DeviceIdentity{}, errors.Wrapf(ErrIdentityFetch, "device returned status %d", resp.StatusCode)
	}
	var identity DeviceIdentity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return DeviceIdentity{}, errors.Wrapf(ErrIdentityFetch, "decode identity: %v", err)
	}
	log.Info().Str("deviceid", identity.DeviceID).Str("accept", identity.Accept).
		Msg("device identity fetched")
	return identity, nil
}

func (c *DeviceClient) SendProvisioning(ctx context.Context, provReq ProvisioningRequest) (int, error) {
	body, err := json.Marshal(provReq)
	if err != nil {
		return 0, errors.Wrapf(ErrProvisioningSend, "encode payload: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+deviceProvisionPath, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrapf(ErrProvisioningSend, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(ErrProvisioningSend, "%v", err)
	}
	defer resp.Body.Close()
	// Response body is ignored by contract; drain it so the connection can
	// be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
