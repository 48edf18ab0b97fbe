package runtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/group"
	"github.com/tom-network/tomcore/heartbeat"
	"github.com/tom-network/tomcore/role"
)

// EventKind is the exclusive application-visible occurrence one Event
// reports.
type EventKind uint8

const (
	EventError EventKind = iota
	EventMessageRejected
	EventForwarded
	EventPeerDiscovered
	EventPeerStale
	EventPeerOffline
	EventPeerOnline
	EventRolePromoted
	EventRoleDemoted
	EventLocalRoleChanged
	EventSubnetFormed
	EventSubnetDissolved
	EventGroupCreated
	EventGroupInviteReceived
	EventGroupJoined
	EventGroupMemberJoined
	EventGroupMemberLeft
	EventGroupMemberKicked
	EventGroupRoleChanged
	EventGroupMessageReceived
	EventGroupHubMigrated
	EventGroupSecurityViolation
	EventGroupShadowPromoted
	EventGroupCandidateAssigned
	EventBackupStored
	EventBackupDelivered
	EventBackupExpired
)

// Event is one occurrence the runtime surfaces to its caller, independent
// of how the caller chooses to display or log it.
type Event struct {
	Kind EventKind
	At   time.Time

	Err error

	Peer         crypto.NodeId
	PeerSource   heartbeat.Source
	MessageId    uuid.UUID
	RejectReason string

	Score   float64
	OldTier role.Tier
	NewTier role.Tier

	GroupId   string
	GroupName string
	Inviter   crypto.NodeId
	Member    crypto.NodeId
	Username  string
	Text      string
	OldHubId  crypto.NodeId
	NewHubId  crypto.NodeId
	OldRole   group.MemberRole
	NewRole   group.MemberRole

	SubnetPeers []crypto.NodeId
}
