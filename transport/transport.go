// Package transport defines the capability interfaces the runtime consumes
// for sending raw bytes and learning of peer liveness, plus a recording
// fake used by every runtime test. The actual UDP/QUIC transport, NAT
// traversal, and DHT-based address lookup are external collaborators this
// package is the seam for, not an implementation of.
package transport

import (
	"github.com/tom-network/tomcore/crypto"
)

// Transport is the capability a runtime.State needs to move bytes on the
// wire: send to a node identifier and enumerate currently connected peers.
// A concrete implementation (e.g. cmd/protocol-node's UDP transport) is
// responsible for resolving a NodeId to a reachable address, which it
// obtains from a Discovery implementation.
type Transport interface {
	// SendRaw transmits bytes to target. It returns an error if the send
	// could not be attempted (e.g. target is unreachable); a transport that
	// accepts the write but the peer never acknowledges is not an error —
	// there is no transport-level delivery confirmation.
	SendRaw(target crypto.NodeId, data []byte) error

	// ConnectedPeers returns the set of node identifiers the transport
	// currently considers reachable, used by heartbeat gossip-event
	// attribution.
	ConnectedPeers() map[crypto.NodeId]bool
}

// Discovery resolves a node identifier to a reachable network address,
// consumed as a black box; DHT-based lookup is explicitly out of scope for
// this repository.
type Discovery interface {
	// Lookup returns the address most recently known for id, or ok=false if
	// none is known.
	Lookup(id crypto.NodeId) (addr string, ok bool)
}

// InboundDatagram is one datagram delivered by the transport, tagged with
// the NodeId the transport attributes it to.
type InboundDatagram struct {
	From crypto.NodeId
	Data []byte
}

// GossipEventKind distinguishes a gossip neighbor-up from a neighbor-down
// notification.
type GossipEventKind uint8

const (
	GossipNeighborUp GossipEventKind = iota
	GossipNeighborDown
)

// GossipEvent is a neighbor up/down notification from the transport's
// gossip layer, consumed by heartbeat.Tracker.RecordActivity with
// heartbeat.SourceGossip.
type GossipEvent struct {
	Kind GossipEventKind
	Peer crypto.NodeId
}
