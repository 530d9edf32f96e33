// Package mailerlite is a minimal client for the MailerLite Connect API,
// limited to the batch endpoint used for subscriber upserts.
package mailerlite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production MailerLite Connect API.
const DefaultBaseURL = "https://connect.mailerlite.com"

// ErrBatchTooLarge is returned before any network call when a batch exceeds
// MaxBatchSize.
var ErrBatchTooLarge = errors.New("mailerlite: batch exceeds 50 requests")

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the MailerLite API client. Each call is a single attempt.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a MailerLite client that authenticates with a bearer
// token.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey}),
				Base:   http.DefaultTransport,
			},
		},
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client HTTPDoer) {
	c.httpClient = client
}

// Batch submits up to MaxBatchSize sub-requests as one call. A non-2xx
// status is returned as *APIError; transport failures are wrapped.
func (c *Client) Batch(ctx context.Context, requests []BatchRequest) (*BatchResponse, error) {
	if len(requests) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	body, err := json.Marshal(batchPayload{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("marshaling batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing batch request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out BatchResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing batch response: %w", err)
	}
	return &out, nil
}
