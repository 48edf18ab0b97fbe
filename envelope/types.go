// Package envelope defines the single wire record and the message-type
// vocabulary carried in its payload.
package envelope

import (
	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
)

// MaxRelayDepth bounds the number of intermediate relays an envelope may
// carry in Via. A Router rejects any envelope other than an Ack or a
// ReadReceipt whose Via exceeds this; those two are handled before the
// check.
const MaxRelayDepth = 4

// MsgType tags the semantics of an Envelope's Payload.
type MsgType uint8

const (
	Chat MsgType = iota
	Ack
	ReadReceipt
	Heartbeat
	PeerAnnounce
	RoleAnnounce
	GroupCreate
	GroupCreated
	GroupInvite
	GroupJoin
	GroupSync
	GroupMessage
	GroupLeave
	GroupMemberJoined
	GroupMemberLeft
	GroupDeliveryAck
	GroupHubMigration
	GroupHubHeartbeat
	GroupSenderKeyDistribution
	GroupHubPing
	GroupHubPong
	GroupHubShadowSync
	GroupCandidateAssigned
	GroupHubUnreachable
	GroupKick
	GroupRoleChange
	BackupStore
	BackupDeliver
	BackupReplicate
	BackupReplicateAck
	BackupQuery
	BackupQueryResponse
	BackupConfirmDelivery
)

// AckType is the fixed set of meanings an Ack envelope can carry.
type AckType string

const (
	AckRelayForwarded   AckType = "relay-forwarded"
	AckRecipientReceived AckType = "recipient-received"
	AckRecipientRead    AckType = "recipient-read"
)

// Envelope is the single wire record every message type is carried in.
// Every field except
// Signature is covered by the signing bytes (see SigningBytes); Signature is
// an Ed25519 signature by From over that deterministic byte sequence.
type Envelope struct {
	Id            uuid.UUID       `msgpack:"id"`
	From          crypto.NodeId   `msgpack:"from"`
	To            crypto.NodeId   `msgpack:"to"`
	Via           []crypto.NodeId `msgpack:"via"`
	MsgType       MsgType         `msgpack:"msg_type"`
	Payload       []byte          `msgpack:"payload"`
	Encrypted     bool            `msgpack:"encrypted"`
	Timestamp     int64           `msgpack:"timestamp"`
	HopTimestamps []int64         `msgpack:"hop_timestamps"`
	Signature     crypto.Signature `msgpack:"signature"`
}

// NewId generates a fresh 128-bit random message identifier.
func NewId() uuid.UUID {
	return uuid.New()
}
