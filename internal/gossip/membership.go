package gossip

import "sync"

// Membership is the local view of the cluster: node id -> last advertised
// address. Entries are never evicted.
type Membership struct {
	mu      sync.RWMutex
	members map[string]string
}

// NewMembership returns a table seeded with self.
func NewMembership(self Identity) *Membership {
	return &Membership{members: map[string]string{self.ID: self.Address}}
}

// Put upserts id with last-write-wins semantics and reports whether the stored
// value changed.
func (m *Membership) Put(id, address string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.members[id]
	m.members[id] = address
	return !ok || prev != address
}

// Get returns the address last advertised by id.
func (m *Membership) Get(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.members[id]
	return addr, ok
}

// Snapshot returns a point-in-time copy that callers may keep and iterate.
func (m *Membership) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := make(map[string]string, len(m.members))
	for id, addr := range m.members {
		snap[id] = addr
	}
	return snap
}

// Len returns the number of known nodes, self included.
func (m *Membership) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members)
}
