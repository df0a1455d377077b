// Package sfcclient implements the handlers.SFCClient port against a real
// MES HTTP endpoint, so the SFC handler kind has a production backend
// instead of relying only on fakes in tests.
package sfcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	core "github.com/webpdtool/engine/internal/app/core/service"
)

// Client posts an SFC operation to baseURL+"/"+operation as a JSON body and
// returns the raw response body text, matching handlers.SFCClient's
// contract of an opaque response string the handler (and, optionally, its
// ResponsePath jsonpath expression) interprets.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hooks      core.ObservationHooks
}

// New builds a Client against baseURL with the given round-trip timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

// WithObservationHooks attaches Prometheus-backed hooks around Submit, so
// MES round-trip latency and failure rate are visible per operation.
func (c *Client) WithObservationHooks(hooks core.ObservationHooks) *Client {
	c.hooks = hooks
	return c
}

// Submit satisfies handlers.SFCClient.
func (c *Client) Submit(ctx context.Context, operation string, payload map[string]string) (response string, err error) {
	end := core.StartObservation(ctx, c.hooks, map[string]string{"resource": operation})
	defer func() { end(err) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sfcclient: encode payload: %w", err)
	}

	url := c.baseURL + "/" + operation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("sfcclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sfcclient: request %s: %w", operation, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sfcclient: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sfcclient: %s returned status %d: %s", operation, resp.StatusCode, string(out))
	}
	return string(out), nil
}
