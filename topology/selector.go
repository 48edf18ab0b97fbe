package topology

import (
	"errors"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
)

// ErrNoPath is returned by SelectPath when no route to the recipient can be
// constructed.
var ErrNoPath = errors.New("topology: no path to recipient")

// Path is a relay selection result: nil/empty means direct delivery.
type Path []crypto.NodeId

// SelectPath picks a path to recipient following the priority order:
// direct if online, most-recently-seen single relay, BFS multi-hop up to
// envelope.MaxRelayDepth, direct-fallback, or ErrNoPath. excluded peers (for
// example ones that already rejected this message) are never chosen.
// The BFS step accepts a last hop only when the recipient itself is online
// (see canReach), a case the direct step has already returned for, so it
// never yields a multi-hop path.
func (t *Topology) SelectPath(recipient crypto.NodeId, excluded map[crypto.NodeId]bool) (Path, error) {
	l := logrus.WithFields(logrus.Fields{
		"function":  "Topology.SelectPath",
		"recipient": recipient.ShortString(),
	})

	snapshot := t.snapshot()

	if recipient == t.self {
		return nil, ErrNoPath
	}

	if p, ok := snapshot[recipient]; ok && p.Status == StatusOnline {
		l.Debug("Direct path: recipient is online")
		return nil, nil
	}

	relays := relayCandidates(snapshot, t.self, recipient, excluded)

	if best, ok := mostRecentRelay(relays); ok {
		l.WithField("relay", best.ShortString()).Debug("Single-relay path selected")
		return Path{best}, nil
	}

	if path, ok := bfsPath(snapshot, t.self, recipient, excluded); ok {
		l.WithField("hops", len(path)).Debug("Multi-hop relay path selected")
		return path, nil
	}

	if _, known := snapshot[recipient]; known {
		l.Debug("Direct-fallback path: no relay qualifies but recipient is reachable")
		return nil, nil
	}

	l.Debug("No path available to recipient")
	return nil, ErrNoPath
}

// relayCandidates returns every online Relay-role peer other than self and
// recipient, minus excluded.
func relayCandidates(peers map[crypto.NodeId]PeerInfo, self, recipient crypto.NodeId, excluded map[crypto.NodeId]bool) []PeerInfo {
	var out []PeerInfo
	for id, p := range peers {
		if id == self || id == recipient {
			continue
		}
		if excluded != nil && excluded[id] {
			continue
		}
		if p.Status != StatusOnline || p.Role != RoleRelay {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mostRecentRelay returns the candidate with the most recent LastSeen.
func mostRecentRelay(candidates []PeerInfo) (crypto.NodeId, bool) {
	if len(candidates) == 0 {
		return crypto.NodeId{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastSeen.After(candidates[j].LastSeen)
	})
	return candidates[0].NodeId, true
}

// bfsPath searches for a multi-hop path across online Relay-role peers,
// bounded to envelope.MaxRelayDepth hops, breadth-first so the shortest
// qualifying path is returned.
func bfsPath(peers map[crypto.NodeId]PeerInfo, self, recipient crypto.NodeId, excluded map[crypto.NodeId]bool) (Path, bool) {
	type frame struct {
		node crypto.NodeId
		path Path
	}

	visited := map[crypto.NodeId]bool{self: true}
	queue := []frame{{node: self, path: nil}}

	relayIds := make([]crypto.NodeId, 0, len(peers))
	for id, p := range peers {
		if id == self {
			continue
		}
		if excluded != nil && excluded[id] {
			continue
		}
		if p.Status == StatusOnline && p.Role == RoleRelay {
			relayIds = append(relayIds, id)
		}
	}
	sort.Slice(relayIds, func(i, j int) bool { return relayIds[i].String() < relayIds[j].String() })

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path) >= envelope.MaxRelayDepth {
			continue
		}

		for _, id := range relayIds {
			if visited[id] {
				continue
			}
			visited[id] = true

			next := append(append(Path{}, cur.path...), id)

			if canReach(peers, id, recipient) {
				return next, true
			}
			queue = append(queue, frame{node: id, path: next})
		}
	}

	return nil, false
}

// canReach reports whether peer is a plausible last hop to recipient: true
// exactly when recipient is listed as online, whatever peer is. The topology
// has no per-link connectivity graph, so any online relay is treated as able
// to reach an online recipient.
func canReach(peers map[crypto.NodeId]PeerInfo, _ crypto.NodeId, recipient crypto.NodeId) bool {
	p, ok := peers[recipient]
	return ok && p.Status == StatusOnline
}
