package runtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
)

// EffectKind is the exclusive action one Effect asks the Executor to carry
// out. Handlers never perform I/O directly; every observable side effect of
// handling an incoming datagram or a Command is expressed as a value here.
type EffectKind uint8

const (
	// EffectSend asks the Executor to transmit Envelope to NextHop, falling
	// back to backup store-and-forward if the transport reports the peer
	// unreachable and FallbackMessageId/FallbackPayload are set.
	EffectSend EffectKind = iota
	// EffectDeliver hands a decoded application message to whatever local
	// consumer is listening (the cmd/protocol-node binary's message
	// channel, in the reference executor).
	EffectDeliver
	// EffectEmit asks the Executor to surface an Event to the application.
	EffectEmit
	// EffectBackupStore asks the Executor to persist a replica of a message
	// bound for an offline recipient.
	EffectBackupStore
)

// Effect is one unit of work the Executor performs after a pure handler
// call returns. A single handler call typically returns several Effects in
// the order they should be carried out.
type Effect struct {
	Kind EffectKind

	// EffectSend
	NextHop           crypto.NodeId
	Envelope          *envelope.Envelope
	FallbackMessageId uuid.UUID
	FallbackPayload   []byte
	FallbackRecipient crypto.NodeId

	// EffectDeliver
	DeliverFrom    crypto.NodeId
	DeliverPayload []byte
	DeliverMsgType envelope.MsgType

	// EffectEmit
	Event Event

	// EffectBackupStore
	BackupMessageId  uuid.UUID
	BackupRecipient  crypto.NodeId
	BackupPayload    []byte
	BackupCandidates []crypto.NodeId
	BackupTime       time.Time
}

func sendEffect(to crypto.NodeId, env *envelope.Envelope) Effect {
	return Effect{Kind: EffectSend, NextHop: to, Envelope: env}
}

func emitEffect(ev Event) Effect {
	return Effect{Kind: EffectEmit, Event: ev}
}
