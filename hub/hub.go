// Package hub implements the group hub, primary side: the designated
// relay for one group that fans out member messages, admits and evicts
// members, and maintains the shadow/candidate replication chain. The hub
// is pass-through for encrypted group payloads — it never holds a
// Sender-Key and never decrypts.
package hub

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
)

var (
	// ErrUnknownGroup is returned when an operation names a group this hub
	// does not host.
	ErrUnknownGroup = errors.New("hub: unknown group id")
	// ErrNotMember is returned when a message or distribution's sender is
	// not a member of the named group.
	ErrNotMember = errors.New("hub: sender is not a group member")
	// ErrRateLimited is returned when a member sends faster than the
	// per-sender rate limit allows.
	ErrRateLimited = errors.New("hub: sender exceeded per-sender rate limit")
)

// DefaultRecentTailCapacity bounds how many recent fan-out envelopes the
// hub retains per group for replay to late joiners: a small, fixed-size
// tail rather than the full message history.
const DefaultRecentTailCapacity = 32

// DefaultMinSendInterval is the minimum interval between two messages from
// the same sender the hub accepts before dropping with ErrRateLimited.
// Chosen generously so ordinary chat traffic is never throttled while a
// flooding sender is capped at 20 messages/second.
const DefaultMinSendInterval = 50 * time.Millisecond

// Member is one group participant as the hub sees it: identity and
// username only, no role or key material (the hub never holds Sender-Keys).
type Member struct {
	NodeId   crypto.NodeId
	Username string
	JoinedAt time.Time
}

// tailEntry is one fan-out envelope retained for GroupSync replay to a late
// joiner.
type tailEntry struct {
	sender     crypto.NodeId
	messageId  uuid.UUID
	ciphertext []byte
	nonce      []byte
	keyEpoch   uint32
	sentAt     int64
	signature  crypto.Signature
}

// Group is one group this node hosts as hub.
type Group struct {
	GroupId       string
	Members       map[crypto.NodeId]*Member
	ShadowId      crypto.NodeId
	CandidateId   crypto.NodeId
	ConfigVersion int64

	lastMessageAt map[crypto.NodeId]time.Time
	recentTail    []tailEntry
}

// Hub holds every group this node currently serves as primary hub.
type Hub struct {
	self            crypto.NodeId
	groups          map[string]*Group
	minSendInterval time.Duration
	tailCapacity    int
}

// New creates a Hub for the local node identity.
func New(self crypto.NodeId) *Hub {
	return &Hub{
		self:            self,
		groups:          make(map[string]*Group),
		minSendInterval: DefaultMinSendInterval,
		tailCapacity:    DefaultRecentTailCapacity,
	}
}

// CreateGroup handles a GroupCreate: this node becomes hub for a brand-new
// group containing only its creator.
func (h *Hub) CreateGroup(groupId string, creator crypto.NodeId, creatorUsername string, now time.Time) *Group {
	g := &Group{
		GroupId:       groupId,
		Members:       map[crypto.NodeId]*Member{creator: {NodeId: creator, Username: creatorUsername, JoinedAt: now}},
		ConfigVersion: now.UnixMilli(),
		lastMessageAt: make(map[crypto.NodeId]time.Time),
	}
	h.groups[groupId] = g

	logrus.WithFields(logrus.Fields{
		"function": "Hub.CreateGroup",
		"group":    groupId,
		"creator":  creator.ShortString(),
	}).Info("Hub created new group")

	return g
}

// JoinResult is everything the runtime needs to execute a Join: the
// existing member list to Sync to the joiner (plus the retained tail for
// replay), and the set of existing members to notify with MemberJoined.
type JoinResult struct {
	Group          *Group
	SyncMembers    []Member
	ReplayTail     []envelope.GroupMessagePayload
	NotifyExisting []crypto.NodeId
}

// Join admits joiner into groupId, returning the Sync payload for the
// joiner and the list of existing members to notify.
func (h *Hub) Join(groupId string, joiner crypto.NodeId, username string, now time.Time) (*JoinResult, error) {
	g, ok := h.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}

	existing := make([]crypto.NodeId, 0, len(g.Members))
	syncMembers := make([]Member, 0, len(g.Members))
	for id, m := range g.Members {
		existing = append(existing, id)
		syncMembers = append(syncMembers, *m)
	}

	g.Members[joiner] = &Member{NodeId: joiner, Username: username, JoinedAt: now}
	g.ConfigVersion = now.UnixMilli()

	replay := make([]envelope.GroupMessagePayload, 0, len(g.recentTail))
	for _, e := range g.recentTail {
		replay = append(replay, envelope.GroupMessagePayload{
			GroupId:    groupId,
			Sender:     e.sender,
			MessageId:  e.messageId,
			Ciphertext: e.ciphertext,
			Nonce:      e.nonce,
			KeyEpoch:   e.keyEpoch,
			SentAt:     e.sentAt,
			Signature:  e.signature,
		})
	}

	logrus.WithFields(logrus.Fields{
		"function": "Hub.Join",
		"group":    groupId,
		"joiner":   joiner.ShortString(),
		"members":  len(g.Members),
	}).Info("Member admitted to group")

	return &JoinResult{Group: g, SyncMembers: syncMembers, ReplayTail: replay, NotifyExisting: existing}, nil
}

// Leave removes member from groupId, returning the remaining members to
// notify with MemberLeft.
func (h *Hub) Leave(groupId string, member crypto.NodeId, now time.Time) ([]crypto.NodeId, error) {
	g, ok := h.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	delete(g.Members, member)
	delete(g.lastMessageAt, member)
	g.ConfigVersion = now.UnixMilli()

	remaining := make([]crypto.NodeId, 0, len(g.Members))
	for id := range g.Members {
		remaining = append(remaining, id)
	}
	return remaining, nil
}

// IsMember reports whether node belongs to groupId.
func (h *Hub) IsMember(groupId string, node crypto.NodeId) bool {
	g, ok := h.groups[groupId]
	if !ok {
		return false
	}
	_, ok = g.Members[node]
	return ok
}

// FanOut verifies sender is a member and not rate-limited, records the
// envelope in the group's recent tail, and returns every other member to
// forward the unchanged ciphertext/nonce to.
func (h *Hub) FanOut(groupId string, sender crypto.NodeId, payload *envelope.GroupMessagePayload, now time.Time) ([]crypto.NodeId, error) {
	g, ok := h.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	if _, ok := g.Members[sender]; !ok {
		return nil, ErrNotMember
	}
	if last, ok := g.lastMessageAt[sender]; ok && now.Sub(last) < h.minSendInterval {
		return nil, ErrRateLimited
	}
	g.lastMessageAt[sender] = now

	g.recentTail = append(g.recentTail, tailEntry{
		sender:     sender,
		messageId:  payload.MessageId,
		ciphertext: payload.Ciphertext,
		nonce:      payload.Nonce,
		keyEpoch:   payload.KeyEpoch,
		sentAt:     payload.SentAt,
		signature:  payload.Signature,
	})
	if len(g.recentTail) > h.tailCapacity {
		g.recentTail = g.recentTail[len(g.recentTail)-h.tailCapacity:]
	}

	targets := make([]crypto.NodeId, 0, len(g.Members)-1)
	for id := range g.Members {
		if id != sender {
			targets = append(targets, id)
		}
	}
	return targets, nil
}

// DistributeSenderKey verifies sender is a member, then returns, for each
// entry in dist whose recipient is also a member, a single-entry
// distribution addressed to that recipient. The hub never combines,
// reorders, or inspects the encrypted key material.
func (h *Hub) DistributeSenderKey(groupId string, sender crypto.NodeId, dist *envelope.SenderKeyDistribution) (map[crypto.NodeId]*envelope.SenderKeyDistribution, error) {
	g, ok := h.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	if _, ok := g.Members[sender]; !ok {
		return nil, ErrNotMember
	}

	out := make(map[crypto.NodeId]*envelope.SenderKeyDistribution)
	for _, entry := range dist.Entries {
		if _, ok := g.Members[entry.Recipient]; !ok {
			continue
		}
		out[entry.Recipient] = &envelope.SenderKeyDistribution{
			GroupId: dist.GroupId,
			Sender:  dist.Sender,
			Epoch:   dist.Epoch,
			Entries: []envelope.EncryptedSenderKey{entry},
		}
	}
	return out, nil
}

// ReassignResult is the shadow/candidate selection the hub recomputes after
// every membership change.
type ReassignResult struct {
	ShadowId      crypto.NodeId
	CandidateId   crypto.NodeId
	ConfigVersion int64
	HasShadow     bool
	HasCandidate  bool
}

// Reassign deterministically re-selects shadow and candidate for groupId:
// sort members excluding self lexicographically by NodeId; the lowest
// becomes shadow, the next candidate.
func (h *Hub) Reassign(groupId string) (*ReassignResult, error) {
	g, ok := h.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}

	others := make([]crypto.NodeId, 0, len(g.Members))
	for id := range g.Members {
		if id != h.self {
			others = append(others, id)
		}
	}
	sort.Slice(others, func(i, j int) bool { return others[i].String() < others[j].String() })

	res := &ReassignResult{ConfigVersion: g.ConfigVersion}
	if len(others) > 0 {
		res.ShadowId = others[0]
		res.HasShadow = true
		g.ShadowId = others[0]
	} else {
		g.ShadowId = crypto.NodeId{}
	}
	if len(others) > 1 {
		res.CandidateId = others[1]
		res.HasCandidate = true
		g.CandidateId = others[1]
	} else {
		g.CandidateId = crypto.NodeId{}
	}

	logrus.WithFields(logrus.Fields{
		"function": "Hub.Reassign",
		"group":    groupId,
		"shadow":   res.ShadowId.ShortString(),
	}).Debug("Shadow/candidate reassigned")

	return res, nil
}

// HandlePing reports whether from is this group's current shadow; only a
// ping from the shadow is answered with HubPong. Pings from any other
// source are ignored.
func (h *Hub) HandlePing(groupId string, from crypto.NodeId) bool {
	g, ok := h.groups[groupId]
	if !ok {
		return false
	}
	return g.ShadowId == from
}

// Group returns the hub's record for groupId, if hosted here.
func (h *Hub) Group(groupId string) (*Group, bool) {
	g, ok := h.groups[groupId]
	return g, ok
}

// MigrateAway drops this node's hub bookkeeping for groupId after an
// explicit HubMigration hands the role to a shadow.
func (h *Hub) MigrateAway(groupId string) {
	delete(h.groups, groupId)
}
