// Package gateway provides the client for the Kubernetes control API that
// sits behind an IAM-protected API Gateway (or, in direct mode, behind a VPC
// URL with no request signing).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultTimeout bounds every backend call.
const defaultTimeout = 30 * time.Second

// endpointMap maps action ids to backend endpoints. Unknown k8s actions fall
// through to defaultEndpoint rather than failing, matching the backend's
// catch-all route.
var endpointMap = map[string]string{
	"k8s_deploy":  "/api/v1/deploy",
	"k8s_scale":   "/api/v1/scale",
	"k8s_status":  "/api/v1/status",
	"k8s_logs":    "/api/v1/logs",
	"k8s_restart": "/api/v1/restart",
}

const defaultEndpoint = "/api/v1/default"

// EndpointFor returns the backend path for an action id.
func EndpointFor(actionID string) string {
	if endpoint, ok := endpointMap[actionID]; ok {
		return endpoint
	}
	return defaultEndpoint
}

// RequestSigner adds authentication headers to an outbound request.
// *sigv4.Signer satisfies this.
type RequestSigner interface {
	Sign(ctx context.Context, req *http.Request, body []byte) error
}

// Client calls the backend API. With a signer it targets the API Gateway URL
// and signs every request; with a nil signer it targets the direct URL
// unsigned.
type Client struct {
	httpClient *http.Client
	baseURL    string
	signer     RequestSigner
}

// NewClient creates a backend client. baseURL is the API Gateway base URL
// when signer is non-nil, the direct backend URL otherwise.
func NewClient(baseURL string, signer RequestSigner) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		signer:     signer,
	}, nil
}

// Signed reports whether outbound calls carry SigV4 headers.
func (c *Client) Signed() bool {
	return c.signer != nil
}

// Call POSTs a JSON body to the endpoint mapped from actionID and decodes the
// JSON response. Non-2xx responses are errors carrying the status code but
// never the signed headers.
func (c *Client) Call(ctx context.Context, actionID string, body any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + EndpointFor(actionID)
	log.Info().Str("url", url).Str("actionId", actionID).Bool("signed", c.Signed()).Msg("Calling backend API")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		if err := c.signer.Sign(ctx, req, payload); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("actionId", actionID).Msg("Backend API returned error status")
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	result := make(map[string]any)
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return result, nil
}
