package gossip

import "time"

const (
	// DefaultGroupAddr is the multicast group every node joins.
	DefaultGroupAddr = "230.0.0.0"
	// DefaultPort is the UDP port of the multicast group.
	DefaultPort = 4446
	// DefaultInterval is the period between two heartbeats of the same node.
	DefaultInterval = 5 * time.Second
	// DefaultTTL keeps heartbeats on the local segment.
	DefaultTTL = 1
	// MaxDatagramSize bounds an encoded heartbeat. Larger datagrams are dropped.
	MaxDatagramSize = 256
	// Delimiter separates the node id from its address on the wire.
	Delimiter = ':'
)
