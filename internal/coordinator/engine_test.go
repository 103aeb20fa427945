package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kvstore "github.com/KaranSinghDev/kvmesh/internal/store"
)

// fakeRing returns a fixed node list regardless of key, for deterministic
// fan-out assertions.
type fakeRing struct {
	nodes []string
}

func (f *fakeRing) GetNodes(key string, replicas int) []string {
	if replicas > len(f.nodes) {
		replicas = len(f.nodes)
	}
	return f.nodes[:replicas]
}

// fakePeerStub records every Set call it receives.
type fakePeerStub struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *fakePeerStub) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fail {
		return errors.New("simulated peer failure")
	}
	return nil
}

// fakePeerPool hands out one fakePeerStub per address and records which
// addresses were ever contacted — used to assert "zero outbound RPCs"
// for replicated calls (P4 / S5).
type fakePeerPool struct {
	mu    sync.Mutex
	stubs map[string]*fakePeerStub
}

func newFakePeerPool() *fakePeerPool {
	return &fakePeerPool{stubs: map[string]*fakePeerStub{}}
}

func (p *fakePeerPool) StubFor(addr string) PeerStub {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stubs[addr]
	if !ok {
		s = &fakePeerStub{}
		p.stubs[addr] = s
	}
	return s
}

func (p *fakePeerPool) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, s := range p.stubs {
		s.mu.Lock()
		total += s.calls
		s.mu.Unlock()
	}
	return total
}

// fakePersistence records upserts.
type fakePersistence struct {
	mu      sync.Mutex
	enabled bool
	rows    map[string][]byte
	fail    bool
}

func newFakePersistence(enabled bool) *fakePersistence {
	return &fakePersistence{enabled: enabled, rows: map[string][]byte{}}
}

func (p *fakePersistence) Enabled() bool { return p.enabled }

func (p *fakePersistence) Upsert(ctx context.Context, key string, value []byte) error {
	if p.fail {
		return errors.New("simulated db failure")
	}
	p.mu.Lock()
	p.rows[key] = value
	p.mu.Unlock()
	return nil
}

func TestSet_Replica_NoFanOutNoPersistence(t *testing.T) {
	local := kvstore.New()
	pool := newFakePeerPool()
	db := newFakePersistence(true)
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051", "node2:50052", "node3:50053"}},
		local, pool, nil, db, nil)

	res, err := e.Set(context.Background(), "chaos_key", []byte("v"), true)
	require.NoError(t, err)
	assert.True(t, res.Success)

	v, ok := local.Get("chaos_key")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	assert.Equal(t, 0, pool.totalCalls(), "replica Set must not fan out")
	assert.Empty(t, db.rows, "replica Set must not persist")
}

func TestSet_Coordinator_FansOutToEveryTargetPlusPersistence(t *testing.T) {
	local := kvstore.New()
	pool := newFakePeerPool()
	db := newFakePersistence(true)
	nodes := []string{"node1:50051", "node2:50052", "node3:50053"}
	e := New("node1:50051", 3, &fakeRing{nodes: nodes}, local, pool, nil, db, nil)

	res, err := e.Set(context.Background(), "my_special_key", []byte("hello"), false)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Self write landed locally.
	v, ok := local.Get("my_special_key")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), v)

	// Exactly one outbound call per non-self target (P5).
	assert.Equal(t, 2, pool.totalCalls())

	// Persistence attempted exactly once.
	assert.Equal(t, []byte("hello"), db.rows["my_special_key"])
}

func TestSet_Coordinator_FailsOnPeerFailure(t *testing.T) {
	local := kvstore.New()
	pool := newFakePeerPool()
	// Pre-seed a failing stub for node2.
	pool.stubs["node2:50052"] = &fakePeerStub{fail: true}
	nodes := []string{"node1:50051", "node2:50052", "node3:50053"}
	e := New("node1:50051", 3, &fakeRing{nodes: nodes}, local, pool, nil, nil, nil)

	_, err := e.Set(context.Background(), "k", []byte("v"), false)
	assert.Error(t, err)
}

func TestSet_Coordinator_FailsOnPersistenceFailure(t *testing.T) {
	local := kvstore.New()
	pool := newFakePeerPool()
	db := newFakePersistence(true)
	db.fail = true
	nodes := []string{"node1:50051", "node2:50052", "node3:50053"}
	e := New("node1:50051", 3, &fakeRing{nodes: nodes}, local, pool, nil, db, nil)

	_, err := e.Set(context.Background(), "k", []byte("v"), false)
	assert.Error(t, err)
}

func TestSet_Coordinator_SkipsPersistenceWhenDisabled(t *testing.T) {
	local := kvstore.New()
	pool := newFakePeerPool()
	db := newFakePersistence(false)
	nodes := []string{"node1:50051"}
	e := New("node1:50051", 3, &fakeRing{nodes: nodes}, local, pool, nil, db, nil)

	_, err := e.Set(context.Background(), "k", []byte("v"), false)
	require.NoError(t, err)
	assert.Empty(t, db.rows)
}

func TestSet_EmptyKeyRejected(t *testing.T) {
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051"}}, kvstore.New(),
		newFakePeerPool(), nil, nil, nil)
	_, err := e.Set(context.Background(), "", []byte("v"), false)
	assert.ErrorIs(t, err, ErrEmptyKey)
}

// fakeLegacy simulates the legacy fallback client.
type fakeLegacy struct {
	values map[string][]byte
}

func (f *fakeLegacy) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := f.values[key]
	return v, ok
}

func TestGet_LocalHit(t *testing.T) {
	local := kvstore.New()
	local.Put("k", []byte("local-value"))
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051"}}, local,
		newFakePeerPool(), nil, nil, nil)

	res, err := e.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("local-value"), res.Value)
}

func TestGet_LegacyFallback_NotCachedAfterHit(t *testing.T) {
	local := kvstore.New()
	legacy := &fakeLegacy{values: map[string][]byte{"user:1001": []byte("Dr. Heisenberg")}}
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051"}}, local,
		newFakePeerPool(), legacy, nil, nil)

	res, err := e.Get(context.Background(), "user:1001")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("Dr. Heisenberg"), res.Value)

	// Per spec.md §4.6 this must NOT populate the local store.
	_, ok := local.Get("user:1001")
	assert.False(t, ok)
}

func TestGet_MissEverywhere(t *testing.T) {
	local := kvstore.New()
	legacy := &fakeLegacy{values: map[string][]byte{}}
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051"}}, local,
		newFakePeerPool(), legacy, nil, nil)

	res, err := e.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestGet_EmptyKeyRejected(t *testing.T) {
	e := New("node1:50051", 3, &fakeRing{nodes: []string{"node1:50051"}}, kvstore.New(),
		newFakePeerPool(), nil, nil, nil)
	_, err := e.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}
