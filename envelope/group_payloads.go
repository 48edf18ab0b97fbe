package envelope

import (
	"github.com/tom-network/tomcore/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// GroupMemberWire is one member entry as carried on the wire by GroupSync
// and GroupMemberJoined.
type GroupMemberWire struct {
	NodeId   crypto.NodeId `msgpack:"node_id"`
	Username string        `msgpack:"username"`
	JoinedAt int64         `msgpack:"joined_at"`
}

// GroupCreatePayload is the msgpack body of a GroupCreate envelope sent by
// a would-be creator to the node it has chosen as hub.
type GroupCreatePayload struct {
	GroupId  string `msgpack:"group_id"`
	Username string `msgpack:"username"`
}

// GroupCreatedPayload is the hub's response to GroupCreate.
type GroupCreatedPayload struct {
	GroupId string        `msgpack:"group_id"`
	HubId   crypto.NodeId `msgpack:"hub_id"`
}

// GroupInvitePayload carries an invitation to join an existing group.
type GroupInvitePayload struct {
	GroupId   string        `msgpack:"group_id"`
	GroupName string        `msgpack:"group_name"`
	HubId     crypto.NodeId `msgpack:"hub_id"`
	Inviter   crypto.NodeId `msgpack:"inviter"`
}

// GroupJoinPayload is sent to the hub to accept an invitation or otherwise
// request membership.
type GroupJoinPayload struct {
	GroupId  string `msgpack:"group_id"`
	Username string `msgpack:"username"`
}

// GroupSyncPayload is the hub's response to GroupJoin: the current member
// list plus a bounded tail of recent messages for replay.
type GroupSyncPayload struct {
	GroupId       string                `msgpack:"group_id"`
	HubId         crypto.NodeId         `msgpack:"hub_id"`
	Members       []GroupMemberWire     `msgpack:"members"`
	RecentTail    []GroupMessagePayload `msgpack:"recent_tail"`
	ConfigVersion int64                 `msgpack:"config_version"`
}

// GroupLeavePayload is sent to the hub to leave a group.
type GroupLeavePayload struct {
	GroupId string `msgpack:"group_id"`
}

// GroupMemberJoinedPayload is the hub's fan-out notification of a new
// member.
type GroupMemberJoinedPayload struct {
	GroupId string          `msgpack:"group_id"`
	Member  GroupMemberWire `msgpack:"member"`
}

// GroupMemberLeftPayload is the hub's fan-out notification of a departure.
type GroupMemberLeftPayload struct {
	GroupId string        `msgpack:"group_id"`
	NodeId  crypto.NodeId `msgpack:"node_id"`
}

// GroupHubShadowSyncPayload is what the hub sends its newly (re)designated
// shadow after any membership change.
type GroupHubShadowSyncPayload struct {
	GroupId       string          `msgpack:"group_id"`
	Members       []crypto.NodeId `msgpack:"members"`
	CandidateId   crypto.NodeId   `msgpack:"candidate_id"`
	ConfigVersion int64           `msgpack:"config_version"`
}

// GroupCandidateAssignedPayload is what the hub sends its newly designated
// candidate.
type GroupCandidateAssignedPayload struct {
	GroupId string `msgpack:"group_id"`
}

// GroupHubPingPayload/GroupHubPongPayload carry only the group id; the
// sender and signature on the enclosing Envelope identify the shadow/hub.
type GroupHubPingPayload struct {
	GroupId string `msgpack:"group_id"`
}

type GroupHubPongPayload struct {
	GroupId string `msgpack:"group_id"`
}

// GroupHubUnreachablePayload is a member's report to the shadow that it
// could not reach the hub.
type GroupHubUnreachablePayload struct {
	GroupId string `msgpack:"group_id"`
}

// GroupHubMigrationPayload is the shadow's broadcast announcing its
// promotion to hub.
type GroupHubMigrationPayload struct {
	GroupId  string        `msgpack:"group_id"`
	NewHubId crypto.NodeId `msgpack:"new_hub_id"`
	OldHubId crypto.NodeId `msgpack:"old_hub_id"`
}

// GroupKickPayload requests (sender -> hub) or reports (hub -> kicked
// member) the removal of Target from GroupId. The hub re-sends the same
// payload shape to the kicked member itself, since unlike a voluntary
// GroupLeave the target has no other way of learning it happened.
type GroupKickPayload struct {
	GroupId string        `msgpack:"group_id"`
	Target  crypto.NodeId `msgpack:"target"`
}

// GroupRoleChangePayload requests (sender -> hub) or announces (hub ->
// every member) that Target's role in GroupId is now Role.
type GroupRoleChangePayload struct {
	GroupId string        `msgpack:"group_id"`
	Target  crypto.NodeId `msgpack:"target"`
	Role    uint8         `msgpack:"role"`
}

// PeerAnnouncePayload is an explicit liveness/identity announcement a node
// sends when adding or re-introducing itself to a peer. No separate
// key material travels here: the envelope's `from` NodeId already doubles
// as the sender's encryption key.
type PeerAnnouncePayload struct {
	Username string `msgpack:"username"`
}

// marshalGroup is a small helper shared by every group payload encoder.
func marshalGroup(v interface{}) ([]byte, error) { return msgpack.Marshal(v) }

func unmarshalGroup(data []byte, v interface{}) error { return msgpack.Unmarshal(data, v) }

// EncodeGroupCreatePayload / DecodeGroupCreatePayload and the matching pairs
// below give every group/backup payload struct the same Encode/Decode
// convention as AckPayload and ReadReceiptPayload in payloads.go.

func EncodeGroupCreatePayload(p *GroupCreatePayload) ([]byte, error)   { return marshalGroup(p) }
func DecodeGroupCreatePayload(d []byte) (*GroupCreatePayload, error) {
	var p GroupCreatePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupCreatedPayload(p *GroupCreatedPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupCreatedPayload(d []byte) (*GroupCreatedPayload, error) {
	var p GroupCreatedPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupInvitePayload(p *GroupInvitePayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupInvitePayload(d []byte) (*GroupInvitePayload, error) {
	var p GroupInvitePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupJoinPayload(p *GroupJoinPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupJoinPayload(d []byte) (*GroupJoinPayload, error) {
	var p GroupJoinPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupSyncPayload(p *GroupSyncPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupSyncPayload(d []byte) (*GroupSyncPayload, error) {
	var p GroupSyncPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupLeavePayload(p *GroupLeavePayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupLeavePayload(d []byte) (*GroupLeavePayload, error) {
	var p GroupLeavePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupMemberJoinedPayload(p *GroupMemberJoinedPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupMemberJoinedPayload(d []byte) (*GroupMemberJoinedPayload, error) {
	var p GroupMemberJoinedPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupMemberLeftPayload(p *GroupMemberLeftPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupMemberLeftPayload(d []byte) (*GroupMemberLeftPayload, error) {
	var p GroupMemberLeftPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupMessagePayload(p *GroupMessagePayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupMessagePayload(d []byte) (*GroupMessagePayload, error) {
	var p GroupMessagePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeSenderKeyDistribution(p *SenderKeyDistribution) ([]byte, error) { return marshalGroup(p) }
func DecodeSenderKeyDistribution(d []byte) (*SenderKeyDistribution, error) {
	var p SenderKeyDistribution
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupHubShadowSyncPayload(p *GroupHubShadowSyncPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupHubShadowSyncPayload(d []byte) (*GroupHubShadowSyncPayload, error) {
	var p GroupHubShadowSyncPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupCandidateAssignedPayload(p *GroupCandidateAssignedPayload) ([]byte, error) {
	return marshalGroup(p)
}
func DecodeGroupCandidateAssignedPayload(d []byte) (*GroupCandidateAssignedPayload, error) {
	var p GroupCandidateAssignedPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupHubPingPayload(p *GroupHubPingPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupHubPingPayload(d []byte) (*GroupHubPingPayload, error) {
	var p GroupHubPingPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupHubPongPayload(p *GroupHubPongPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupHubPongPayload(d []byte) (*GroupHubPongPayload, error) {
	var p GroupHubPongPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupHubUnreachablePayload(p *GroupHubUnreachablePayload) ([]byte, error) {
	return marshalGroup(p)
}
func DecodeGroupHubUnreachablePayload(d []byte) (*GroupHubUnreachablePayload, error) {
	var p GroupHubUnreachablePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupHubMigrationPayload(p *GroupHubMigrationPayload) ([]byte, error) {
	return marshalGroup(p)
}
func DecodeGroupHubMigrationPayload(d []byte) (*GroupHubMigrationPayload, error) {
	var p GroupHubMigrationPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupKickPayload(p *GroupKickPayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupKickPayload(d []byte) (*GroupKickPayload, error) {
	var p GroupKickPayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeGroupRoleChangePayload(p *GroupRoleChangePayload) ([]byte, error) { return marshalGroup(p) }
func DecodeGroupRoleChangePayload(d []byte) (*GroupRoleChangePayload, error) {
	var p GroupRoleChangePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodePeerAnnouncePayload(p *PeerAnnouncePayload) ([]byte, error) { return marshalGroup(p) }
func DecodePeerAnnouncePayload(d []byte) (*PeerAnnouncePayload, error) {
	var p PeerAnnouncePayload
	if err := unmarshalGroup(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
