package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
)

// RegistrationResponse is the collector's answer to a registration.
type RegistrationResponse struct {
	ServerID string `json:"server_id"`
	Status   string `json:"status"`
	Message  string `json:"message"`
}

// APIError is a non-2xx answer from the collector, body included.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned error status %d: %s", e.StatusCode, e.Body)
}

// TokenSource supplies bearer tokens for outgoing requests. Sources are
// expected to cache and refresh on their own.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client pushes agent payloads to a collector API endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	tokens     TokenSource
}

// New builds a client for the given endpoint. A non-empty apiKey is sent
// as a bearer token on every request.
func New(endpoint string, timeout time.Duration, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// SetTokenSource switches the client to minted bearer tokens. It takes
// precedence over a static api key.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Register announces the agent to the collector and returns the assigned
// server id. The payload is an interface{} so callers control the exact
// registration fields they send.
func (c *Client) Register(ctx context.Context, registration interface{}) (*RegistrationResponse, error) {
	respBody, err := c.postJSON(ctx, c.endpoint+"/api/v1/servers", registration)
	if err != nil {
		return nil, err
	}

	var regResponse RegistrationResponse
	if err := json.Unmarshal(respBody, &regResponse); err != nil {
		appLogger.Error("Error parsing registration response: %v", err)
		return nil, fmt.Errorf("error parsing registration response: %w", err)
	}

	return &regResponse, nil
}

// SendMetrics uploads one metric batch.
func (c *Client) SendMetrics(ctx context.Context, batch interface{}) error {
	_, err := c.postJSON(ctx, c.endpoint+"/api/v1/metrics", batch)
	return err
}

func (c *Client) postJSON(ctx context.Context, url string, data interface{}) ([]byte, error) {
	// 1. Marshal payload to JSON
	jsonData, err := json.Marshal(data)
	if err != nil {
		appLogger.Error("Error marshaling payload to JSON: %v", err)
		return nil, fmt.Errorf("error marshaling payload to JSON: %w", err)
	}

	appLogger.Debug("Sending %d bytes to %s", len(jsonData), url)

	// 2. Create HTTP request with context for timeout and cancellation
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		appLogger.Error("Error creating HTTP request: %v", err)
		return nil, fmt.Errorf("error creating HTTP request to %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			appLogger.Error("Error obtaining access token: %v", err)
			return nil, fmt.Errorf("error obtaining access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	// 3. Execute the HTTP request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		appLogger.Error("Error sending request to %s: %v", url, err)
		return nil, fmt.Errorf("error sending request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		respBody = []byte("Unable to read response body")
	}

	// 4. Non-2xx answers surface as APIError with the body preserved
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		appLogger.Warn("Server at %s responded with non-OK status: %s", url, resp.Status)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
