// Package peers implements the lazy, reusable outbound stub pool: a
// concurrency-safe map from peer address to RPC stub, populated on first
// use and never evicted.
package peers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReplicationHeader is the wire realization of the is-replication=true
// request metadata: presence (with this exact value) tells the receiving
// node to behave as a replica and suppress further fan-out.
const ReplicationHeader = "X-Kvmesh-Replication"

// Stub is an outbound handle to one peer node's RPC surface.
type Stub struct {
	addr       string
	httpClient *http.Client
}

type setRequest struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type setResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Set issues a replicated Set to the peer, carrying the replication
// marker so the peer does not fan out again.
func (s *Stub) Set(ctx context.Context, key string, value []byte) error {
	body, err := json.Marshal(setRequest{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("peers: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://%s/rpc/set", s.addr), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("peers: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ReplicationHeader, "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("peers: dial %s: %w", s.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peers: %s returned HTTP %d", s.addr, resp.StatusCode)
	}

	var out setResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("peers: decode response from %s: %w", s.addr, err)
	}
	if !out.Success {
		return fmt.Errorf("peers: %s reported failure: %s", s.addr, out.Error)
	}
	return nil
}

// Pool lazily opens and memoizes one Stub per peer address. StubFor is
// safe under concurrent contention: singleflight.Group ensures at most one
// Stub is created per address even when many goroutines race to contact
// the same peer for the first time. All stubs share the pool's HTTP client.
type Pool struct {
	httpClient *http.Client
	stubs      sync.Map // addr -> *Stub
	flight     singleflight.Group
}

// NewPool returns a Pool whose stubs share a single HTTP client.
func NewPool(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pool{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StubFor returns the memoized Stub for addr, opening it on first use.
func (p *Pool) StubFor(addr string) *Stub {
	if v, ok := p.stubs.Load(addr); ok {
		return v.(*Stub)
	}

	v, _, _ := p.flight.Do(addr, func() (any, error) {
		if existing, ok := p.stubs.Load(addr); ok {
			return existing, nil
		}
		stub := &Stub{addr: addr, httpClient: p.httpClient}
		p.stubs.Store(addr, stub)
		return stub, nil
	})
	return v.(*Stub)
}
