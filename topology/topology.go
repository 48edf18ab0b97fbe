// Package topology maintains the in-memory map of known peers and selects a
// relay path to a recipient when direct delivery is not available.
package topology

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// PeerStatus mirrors the liveness state a heartbeat tracker assigns a peer.
type PeerStatus uint8

const (
	StatusOnline PeerStatus = iota
	StatusStale
	StatusOffline
)

// Role is a peer's current relay-contribution tier (see package role).
type Role uint8

const (
	RoleMember Role = iota
	RoleRelay
)

// PeerInfo is everything the topology knows about one other node.
type PeerInfo struct {
	NodeId   crypto.NodeId
	Status   PeerStatus
	Role     Role
	LastSeen time.Time
}

// Topology is a concurrency-safe NodeId -> PeerInfo map plus the relay-role
// index the selector scans.
type Topology struct {
	mu    sync.RWMutex
	peers map[crypto.NodeId]*PeerInfo
	self  crypto.NodeId
}

// New creates an empty Topology for the given local node identity.
func New(self crypto.NodeId) *Topology {
	return &Topology{
		peers: make(map[crypto.NodeId]*PeerInfo),
		self:  self,
	}
}

// Upsert records or updates a peer's info.
func (t *Topology) Upsert(info PeerInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := info
	t.peers[info.NodeId] = &cp

	logger.WithFields(logrus.Fields{
		"function": "Topology.Upsert",
		"peer":     info.NodeId.ShortString(),
		"status":   info.Status,
		"role":     info.Role,
	}).Debug("Peer info updated")
}

// Remove drops a peer from the topology, e.g. on PeerOffline.
func (t *Topology) Remove(id crypto.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)

	logger.WithFields(logrus.Fields{
		"function": "Topology.Remove",
		"peer":     id.ShortString(),
	}).Debug("Peer removed from topology")
}

// Get returns a copy of a peer's info, if known.
func (t *Topology) Get(id crypto.NodeId) (PeerInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// SetRole updates a known peer's relay role. It is a no-op if the peer is
// not tracked.
func (t *Topology) SetRole(id crypto.NodeId, role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Role = role
	}
}

// SetStatus updates a known peer's liveness status, normally in response
// to a heartbeat transition. It is a no-op if the peer is not tracked.
func (t *Topology) SetStatus(id crypto.NodeId, status PeerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[id]; ok {
		p.Status = status
	}
}

// Len returns the number of tracked peers.
func (t *Topology) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.peers)
}

// snapshot returns a defensive copy of every tracked peer, used internally
// by the selector so it never holds the lock during its graph walk.
func (t *Topology) snapshot() map[crypto.NodeId]PeerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[crypto.NodeId]PeerInfo, len(t.peers))
	for id, p := range t.peers {
		out[id] = *p
	}
	return out
}

// Snapshot returns a defensive copy of every tracked peer, for callers
// outside this package that need to enumerate known peers (e.g. the
// runtime choosing backup-replica candidates).
func (t *Topology) Snapshot() map[crypto.NodeId]PeerInfo {
	return t.snapshot()
}

var logger = logrus.WithFields(logrus.Fields{"package": "topology"})
