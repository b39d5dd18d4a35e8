package common

import (
	"gossipcast/internal/gossip"
)

// MembershipProvider is the read side of a gossip node served to clients.
type MembershipProvider interface {
	// Membership returns a copy of the id -> address table
	Membership() map[string]string

	// Identity returns what the node advertises
	Identity() gossip.Identity

	// State returns the node's lifecycle state
	State() gossip.State

	// Err returns the error the node failed with, if any
	Err() error
}

var _ MembershipProvider = (*gossip.Node)(nil)
