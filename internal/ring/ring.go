// Package ring implements the consistent-hash ring that maps opaque string
// keys to an ordered list of owning nodes.
//
// Big idea:
//
// Plain hash(key) % N remaps almost every key whenever a node joins or
// leaves. Consistent hashing fixes this by placing both nodes and keys on
// a circular 32-bit space; a key belongs to the first node found walking
// clockwise from its position. Only keys between the old and new position
// of a changed node move.
//
// Virtual nodes: one ring position per physical node gives uneven load, so
// each physical node is hashed into many positions ("virtual nodes"),
// spreading its share of the keyspace evenly.
package ring

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
)

// entry is one virtual-node placement on the ring.
type entry struct {
	position uint32
	nodeID   string
}

// Ring is an immutable-after-construction consistent-hash ring. It is safe
// for concurrent reads without synchronization once built.
type Ring struct {
	vnodes  int
	entries []entry // sorted ascending by position
	nodes   map[string]bool
}

// New builds a ring over nodeIDs with vnodes virtual positions per physical
// node. vnodes <= 0 falls back to the 256-per-node default. Node IDs are
// added in the order given, which determines tie-break order for any
// colliding ring positions (construction is deterministic for a given
// insertion order, per the ring-state invariant).
func New(nodeIDs []string, vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = 256
	}
	r := &Ring{
		vnodes: vnodes,
		nodes:  make(map[string]bool, len(nodeIDs)),
	}
	for _, id := range nodeIDs {
		r.addNode(id)
	}
	r.sort()
	return r
}

// addNode inserts vnodes positions for id into the ring. Unexported: the
// ring is built once at startup and not mutated at runtime (spec.md's
// Non-goals exclude automatic rebalancing on membership change).
func (r *Ring) addNode(id string) {
	r.nodes[id] = true
	for i := 0; i < r.vnodes; i++ {
		pos := hashPosition(fmt.Sprintf("%s:%d", id, i))
		r.entries = append(r.entries, entry{position: pos, nodeID: id})
	}
}

func (r *Ring) sort() {
	sort.Slice(r.entries, func(i, j int) bool {
		return r.entries[i].position < r.entries[j].position
	})
}

// hashPosition computes MD5(s) read as a big-endian integer, reduced
// modulo 2^32 — the low 4 bytes of the digest.
func hashPosition(s string) uint32 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint32(sum[12:16])
}

// GetNodes returns up to min(r, |node_set|) distinct node IDs responsible
// for key, walking the ring clockwise from the first position >= H(key).
// Returns nil if the ring is empty or r == 0.
func (r *Ring) GetNodes(key string, replicas int) []string {
	if len(r.entries) == 0 || replicas == 0 {
		return nil
	}
	if replicas > len(r.nodes) {
		replicas = len(r.nodes)
	}

	h := hashPosition(key)
	idx := r.search(h)

	seen := make(map[string]bool, replicas)
	out := make([]string, 0, replicas)
	n := len(r.entries)
	for i := 0; i < n && len(out) < replicas; i++ {
		e := r.entries[(idx+i)%n]
		if seen[e.nodeID] {
			continue
		}
		seen[e.nodeID] = true
		out = append(out, e.nodeID)
	}
	return out
}

// search returns the index of the first entry whose position is >= h,
// wrapping to 0 when h exceeds every position.
func (r *Ring) search(h uint32) int {
	idx := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].position >= h
	})
	if idx == len(r.entries) {
		idx = 0
	}
	return idx
}

// NodeCount reports the number of distinct physical nodes on the ring.
func (r *Ring) NodeCount() int {
	return len(r.nodes)
}

// Nodes returns the set of node IDs the ring was built with, for
// diagnostics and tests. Order is unspecified.
func (r *Ring) Nodes() []string {
	out := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		out = append(out, id)
	}
	return out
}
