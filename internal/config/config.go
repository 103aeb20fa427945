// Package config carries the handful of tunables the core protocol depends
// on as explicit values instead of ambient globals.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults mirror the constants named in the service contract.
const (
	DefaultReplicationFactor = 3
	DefaultVirtualNodes      = 256
	DefaultLegacyTimeout     = 1 * time.Second
	DefaultDBPoolMin         = 1
	DefaultDBPoolMax         = 10
)

// Config is passed explicitly into ring construction and the coordinator
// rather than read from package-level globals.
type Config struct {
	// SelfAddress is this node's own identity, e.g. "node1:50051".
	SelfAddress string
	// Peers is the full cluster membership, including SelfAddress.
	Peers []string
	// ReplicationFactor is R, the number of replicas per key.
	ReplicationFactor int
	// VirtualNodes is R_v, virtual ring positions per physical node.
	VirtualNodes int
	// LegacyBaseURL is the base URL of the legacy key service consulted on
	// a local cache miss. Empty disables the legacy fallback path.
	LegacyBaseURL string
	// LegacyTimeout bounds the legacy HTTP call.
	LegacyTimeout time.Duration
	// PostgresDSN, when non-empty, enables the persistence writer.
	PostgresDSN string
	// HealthPort is the auxiliary health-check listener port.
	HealthPort int
}

// WithDefaults fills in zero-valued tunables with their spec defaults.
func WithDefaults(c Config) Config {
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = DefaultReplicationFactor
	}
	if c.VirtualNodes <= 0 {
		c.VirtualNodes = DefaultVirtualNodes
	}
	if c.LegacyTimeout <= 0 {
		c.LegacyTimeout = DefaultLegacyTimeout
	}
	if c.HealthPort <= 0 {
		c.HealthPort = 8080
	}
	return c
}

// BindPort extracts the listen port from a node identity string: the
// substring after the identity's last ':'.
func BindPort(selfAddress string) string {
	idx := strings.LastIndex(selfAddress, ":")
	if idx < 0 {
		return selfAddress
	}
	return selfAddress[idx+1:]
}

// DiscoverPeers implements the two peer-discovery modes of spec.md §6,
// selected by the presence of a '.' in selfAddress:
//
//   - No dot (Docker Compose style): a fixed three-element list
//     {node1:50051, node2:50052, node3:50053}.
//   - Dot present (Kubernetes StatefulSet style): peers are
//     {<hostname-base>-i.<service>:50051 : i in [0, replicationFactor)},
//     where hostname-base is selfAddress's pod hostname with its ordinal
//     suffix stripped.
//
// The list is built from these rules alone: selfAddress appears in it only
// when it is one of the generated addresses (node1..node3 with their fixed
// ports, or an ordinal below replicationFactor on port 50051); it is not
// added otherwise.
func DiscoverPeers(selfAddress string, replicationFactor int) []string {
	if !strings.Contains(selfAddress, ".") {
		return []string{"node1:50051", "node2:50052", "node3:50053"}
	}

	hostPart, rest, _ := strings.Cut(selfAddress, ".")
	serviceName, _, _ := strings.Cut(rest, ":")

	hostnameBase := hostPart
	if idx := strings.LastIndex(hostPart, "-"); idx >= 0 {
		hostnameBase = hostPart[:idx]
	}

	peers := make([]string, 0, replicationFactor)
	for i := 0; i < replicationFactor; i++ {
		peers = append(peers, fmt.Sprintf("%s-%d.%s:50051", hostnameBase, i, serviceName))
	}
	return peers
}
