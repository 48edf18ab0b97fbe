package group

import (
	"time"

	"github.com/tom-network/tomcore/crypto"
)

// MemberRole is a group member's permission tier. It gates which member
// may issue GroupKick/GroupSetRole-style commands and has no bearing on
// hub fan-out, which treats every member identically.
type MemberRole uint8

const (
	RoleUser MemberRole = iota
	RoleModerator
	RoleAdmin
	RoleFounder
)

// Member is one participant in a group.
type Member struct {
	NodeId   crypto.NodeId
	Username string
	Role     MemberRole
	JoinedAt time.Time
}

// GroupInfo is the local record of a joined or created group.
type GroupInfo struct {
	GroupId   string
	HubId     crypto.NodeId
	Members   map[crypto.NodeId]*Member
	CreatedAt time.Time
}

// SenderKeyEntry is a decrypted sender key attributed to one group member at
// one epoch.
type SenderKeyEntry struct {
	OwnerId crypto.NodeId
	Key     crypto.SenderKey
	Epoch   uint32
}
