package runtime

import (
	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/group"
	"github.com/tom-network/tomcore/role"
	"github.com/tom-network/tomcore/topology"
)

// CommandKind is the exclusive local operation a Command asks the runtime
// to perform. Commands are the only way the application ever mutates
// State; like incoming bytes, they are handled purely and produce Effects
// rather than doing I/O themselves.
type CommandKind uint8

const (
	CommandSendMessage CommandKind = iota
	CommandSendGroupMessage
	CommandSendReadReceipt
	CommandAddPeer
	CommandUpsertPeer
	CommandRemovePeer
	CommandCreateGroup
	CommandAcceptInvite
	CommandDeclineInvite
	CommandLeaveGroup
	CommandGroupKick
	CommandGroupSetRole
	CommandGetGroups
	CommandGetPendingInvites
	CommandGetConnectedPeers
	CommandGetRoleMetrics
	CommandGetAllRoleScores
	CommandShutdown
)

// Command is the tagged union of every local operation the runtime accepts.
type Command struct {
	Kind CommandKind

	Peer     crypto.NodeId
	Text     string
	GroupId  string
	Username string

	// ReadReceiptFor names the original message id CommandSendReadReceipt
	// acknowledges.
	ReadReceiptFor uuid.UUID

	// Role is the new role CommandGroupSetRole assigns to Peer.
	Role group.MemberRole
}

// RoleScore pairs a node with its current contribution score, returned by
// CommandGetAllRoleScores.
type RoleScore struct {
	NodeId crypto.NodeId
	Tier   role.Tier
	Score  float64
}

// CommandResult carries the synchronous return value of a query Command
// (every Command that is not a fire-and-forget mutation also returns one of
// these alongside its Effects).
type CommandResult struct {
	Groups         []*group.GroupInfo
	PendingInvites []pendingInvite
	ConnectedPeers []topology.PeerInfo
	RoleMetrics    *RoleScore
	AllRoleScores  []RoleScore
}
