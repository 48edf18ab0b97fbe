package runtime

import (
	"time"

	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/protocol"
	"github.com/tom-network/tomcore/topology"
	"github.com/vmihailenco/msgpack/v5"
)

// SavedPeer is one remembered peer, persisted so a restarted node has a
// starting point for reconnection before any fresh PeerAnnounce arrives.
type SavedPeer struct {
	NodeId   crypto.NodeId `msgpack:"node_id"`
	LastSeen int64         `msgpack:"last_seen"`
}

// SavedGroupMembership remembers that this node belonged to a group, so the
// application can re-issue a GroupJoin after loading rather than silently
// losing membership. It intentionally does not carry the group's current
// Sender-Key state, which only the hub's live distribution can re-derive.
type SavedGroupMembership struct {
	GroupId string        `msgpack:"group_id"`
	HubId   crypto.NodeId `msgpack:"hub_id"`
}

// SaveData is the serializable snapshot of a State: the long-term identity,
// known peers, and remembered group memberships.
type SaveData struct {
	Seed     [32]byte               `msgpack:"seed"`
	Username string                 `msgpack:"username"`
	Peers    []SavedPeer            `msgpack:"peers"`
	Groups   []SavedGroupMembership `msgpack:"groups"`
	SavedAt  int64                  `msgpack:"saved_at"`
}

// Save serializes this node's long-term identity, known peers, and group
// memberships with MessagePack. Dedup caches, tracker entries, contribution
// scores and backup entries are not persisted; after Load they start empty.
func (s *State) Save(now time.Time) ([]byte, error) {
	snapshot := s.Topology.Snapshot()
	peers := make([]SavedPeer, 0, len(snapshot))
	for _, p := range snapshot {
		peers = append(peers, SavedPeer{NodeId: p.NodeId, LastSeen: p.LastSeen.UnixMilli()})
	}

	groups := s.Group.Groups()
	memberships := make([]SavedGroupMembership, 0, len(groups))
	for _, g := range groups {
		memberships = append(memberships, SavedGroupMembership{GroupId: g.GroupId, HubId: g.HubId})
	}

	data := SaveData{
		Seed:     s.Self.Private,
		Username: s.Username,
		Peers:    peers,
		Groups:   memberships,
		SavedAt:  now.UnixMilli(),
	}
	return msgpack.Marshal(&data)
}

// Load reconstructs a State from data produced by Save. Every restored peer
// is marked offline until its own traffic or heartbeat gossip re-establishes
// liveness. Remembered group memberships are returned separately rather
// than silently re-joined, since re-joining requires a round trip to each
// group's hub that only the caller can drive.
func Load(data []byte, cfg protocol.Config) (*State, []SavedGroupMembership, error) {
	var sd SaveData
	if err := msgpack.Unmarshal(data, &sd); err != nil {
		return nil, nil, err
	}

	self, err := crypto.FromSeed(sd.Seed)
	if err != nil {
		return nil, nil, err
	}

	st := New(self, sd.Username, cfg)
	for _, p := range sd.Peers {
		st.Topology.Upsert(topology.PeerInfo{
			NodeId:   p.NodeId,
			Status:   topology.StatusOffline,
			LastSeen: time.UnixMilli(p.LastSeen),
		})
	}

	return st, sd.Groups, nil
}
