// Package coordinator implements the heart of the system: request
// classification, fan-out replication, parallel await, and the multi-tier
// read path.
//
// Set classifies an inbound request by the replication marker. A replica
// call (marker present) only writes to the local store and returns — this
// short-circuit is what breaks the otherwise-unbounded fan-out among
// peers. A coordinator call (marker absent) computes the replica set from
// the hash ring and fans out: one inline local write, one outbound peer
// Set per remaining replica, and one persistence upsert if enabled — all
// run concurrently and joined with a single barrier that fails the whole
// call on the first failure observed.
//
// Get only ever answers from the local replica slice: a hit returns
// immediately, a miss falls through to the legacy fallback client without
// populating the local store. A client that lands on a node that isn't a
// replica for the requested key will miss locally every time; this is the
// documented trade-off of a uniform node API over strong read routing.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyKey is returned for both Set and Get when the key is empty.
// spec.md leaves this edge case undefined; this implementation rejects
// empty keys uniformly rather than letting them silently alias on a valid
// ring position.
var ErrEmptyKey = errors.New("coordinator: key must not be empty")

// KeyRouter maps a key to its ordered replica set.
type KeyRouter interface {
	GetNodes(key string, replicas int) []string
}

// LocalStore is the per-node in-memory cache.
type LocalStore interface {
	Put(key string, value []byte)
	Get(key string) ([]byte, bool)
}

// LegacyClient is the read-through fallback on a local cache miss.
type LegacyClient interface {
	Get(ctx context.Context, key string) ([]byte, bool)
}

// PersistenceWriter is the optional write-through path.
type PersistenceWriter interface {
	Enabled() bool
	Upsert(ctx context.Context, key string, value []byte) error
}

// PeerStub is an outbound handle to one peer's Set RPC.
type PeerStub interface {
	Set(ctx context.Context, key string, value []byte) error
}

// PeerPool resolves peer addresses to outbound stubs.
type PeerPool interface {
	StubFor(addr string) PeerStub
}

// Engine wires the hash ring, peer pool, local store, legacy fallback, and
// persistence writer into the coordinator/replica protocol.
type Engine struct {
	selfAddr          string
	replicationFactor int

	ring        KeyRouter
	local       LocalStore
	peers       PeerPool
	legacy      LegacyClient
	persistence PersistenceWriter
	logger      *zap.Logger
}

// New builds an Engine. legacy and persistence may be nil — a nil legacy
// client disables read-through fallback; a nil (or disabled) persistence
// writer disables the write-through path.
func New(selfAddr string, replicationFactor int, ring KeyRouter, local LocalStore,
	peerPool PeerPool, legacy LegacyClient, persistence PersistenceWriter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		selfAddr:          selfAddr,
		replicationFactor: replicationFactor,
		ring:              ring,
		local:             local,
		peers:             peerPool,
		legacy:            legacy,
		persistence:       persistence,
		logger:            logger,
	}
}

// SetResult is the outcome of a coordinator or replica Set call.
type SetResult struct {
	Success bool
}

// Set implements spec.md §4.6's Set operation. isReplication corresponds
// to the presence of the is-replication=true request metadata.
func (e *Engine) Set(ctx context.Context, key string, value []byte, isReplication bool) (SetResult, error) {
	if key == "" {
		return SetResult{}, ErrEmptyKey
	}

	// Replica path: INIT -> COMPLETE, no fan-out, no persistence.
	if isReplication {
		e.local.Put(key, value)
		return SetResult{Success: true}, nil
	}

	// Coordinator path: INIT -> FANNED_OUT -> AWAIT_ALL -> {COMPLETE, FAILED}.
	targets := e.ring.GetNodes(key, e.replicationFactor)

	g, gctx := errgroup.WithContext(ctx)

	if e.persistence != nil && e.persistence.Enabled() {
		g.Go(func() error {
			if err := e.persistence.Upsert(gctx, key, value); err != nil {
				return fmt.Errorf("persistence upsert: %w", err)
			}
			return nil
		})
	}

	for _, target := range targets {
		target := target
		if target == e.selfAddr {
			g.Go(func() error {
				e.local.Put(key, value)
				return nil
			})
			continue
		}
		g.Go(func() error {
			stub := e.peers.StubFor(target)
			if err := stub.Set(gctx, key, value); err != nil {
				return fmt.Errorf("replicate to %s: %w", target, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Warn("coordinator: Set failed",
			zap.String("key", key), zap.Error(err))
		return SetResult{}, err
	}

	return SetResult{Success: true}, nil
}

// GetResult is the outcome of a Get call.
type GetResult struct {
	Value []byte
	Found bool
}

// Get implements spec.md §4.6's Get operation: local cache first, then the
// legacy fallback on a miss. A legacy hit is never written back into the
// local cache (no read-through population).
func (e *Engine) Get(ctx context.Context, key string) (GetResult, error) {
	if key == "" {
		return GetResult{}, ErrEmptyKey
	}

	if v, ok := e.local.Get(key); ok {
		return GetResult{Value: v, Found: true}, nil
	}

	if e.legacy != nil {
		if v, ok := e.legacy.Get(ctx, key); ok {
			return GetResult{Value: v, Found: true}, nil
		}
	}

	return GetResult{Found: false}, nil
}
