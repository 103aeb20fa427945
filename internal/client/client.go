// Package client provides a Go SDK for talking to a kvmesh node.
//
// Instead of writing raw HTTP requests everywhere, the operator CLI wraps
// them inside a small Go API:
//
//	client.Set(ctx, "key", []byte("value"))
//	client.Get(ctx, "key")
//
// A Client talks to exactly one node. That node is responsible for
// classifying the call, fanning out replication, and consulting the legacy
// fallback — the client has no knowledge of the ring or the cluster
// topology.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is a thin HTTP wrapper around one node's RPC surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client against baseURL, e.g. "http://localhost:50051". A
// zero timeout defaults to 10 seconds.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetResponse is returned after a successful Set call.
type SetResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GetResponse is returned after a Get call, successful or not.
type GetResponse struct {
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

// Set stores key=value via the node's coordinator path (no replication
// marker is sent, so the node fans out to its replica set).
func (c *Client) Set(ctx context.Context, key string, value []byte) (*SetResponse, error) {
	body, err := json.Marshal(map[string]any{"key": key, "value": value})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/rpc/set", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("set request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result SetResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// Get retrieves the value for key. A miss is reported via GetResponse.Found
// rather than an error — the legacy fallback path means "not found" is a
// normal, expected outcome, not a failure.
func (c *Client) Get(ctx context.Context, key string) (*GetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/rpc/get/%s", c.baseURL, url.PathEscape(key)), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result GetResponse
	return &result, json.NewDecoder(resp.Body).Decode(&result)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
