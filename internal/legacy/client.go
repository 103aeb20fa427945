// Package legacy implements the read-through fallback against the legacy
// key service: GET {base}/legacy/data/{key} with a bounded timeout.
//
// Every failure mode — timeout, transport error, non-200 status, or a
// malformed JSON body — is coerced to a miss and logged at warning level.
// This component never returns an error to its caller.
package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client consults the legacy key service on a local cache miss.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New returns a Client bound to baseURL (e.g. "http://legacy-api:8001") with
// the given total-request timeout. A zero timeout falls back to 1 second,
// the contract's LEGACY_TIMEOUT.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type legacyResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Get fetches key from the legacy service. It returns (value, true) on a
// 200 response with a well-formed body, and (nil, false) for every other
// outcome — the caller never needs to distinguish "not found" from
// "legacy service unreachable".
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	target := fmt.Sprintf("%s/legacy/data/%s", c.baseURL, url.PathEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		c.logger.Warn("legacy: build request failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("legacy: request failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("legacy: non-200 response",
			zap.String("key", key), zap.Int("status", resp.StatusCode))
		return nil, false
	}

	var body legacyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Warn("legacy: malformed response body", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return []byte(body.Value), true
}
