// Package router implements the inbound envelope routing decision:
// deduplicate, reject policy violations, deliver, forward, or apply an
// ACK/read-receipt to the message tracker.
package router

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/tracker"
)

// Default cache tunables.
const (
	DedupTTL        = 10 * time.Minute
	DedupCapacity   = 10_000
	ReplayTTL       = 5 * time.Minute
	ReplayCapacity  = 5_000
	ReadAtClampBack = 7 * 24 * time.Hour
)

// RejectReason explains why an envelope was rejected.
type RejectReason string

const (
	RelayChainTooDeep RejectReason = "relay_chain_too_deep"
	InvalidSignature  RejectReason = "invalid_signature"
	SelfSend          RejectReason = "self_send"
	UnknownAckType    RejectReason = "unknown_ack_type"
)

// ActionKind is the exclusive routing action the Router produced for one
// inbound envelope.
type ActionKind uint8

const (
	ActionDrop ActionKind = iota
	ActionReject
	ActionDeliver
	ActionForward
	ActionAck
	ActionReadReceipt
)

// RelayActivity records one relay hop for contribution scoring (see
// package role).
type RelayActivity struct {
	Peer  crypto.NodeId
	Bytes int
}

// ForwardResult carries everything the runtime needs to execute a Forward
// decision: the re-addressed envelope, the relay-forwarded ACK owed back to
// the sender, the next transport hop, and a relay-activity record.
type ForwardResult struct {
	NextHop   crypto.NodeId
	Envelope  *envelope.Envelope
	RelayAck  *envelope.Envelope
	Activity  RelayActivity
}

// DeliverResult carries the decrypted-or-plaintext payload delivered to the
// application plus the synthesized recipient-received ACK.
type DeliverResult struct {
	Envelope *envelope.Envelope
	Ack      *envelope.Envelope
}

// AckResult reports which tracker transition an inbound Ack applied, if any.
type AckResult struct {
	OriginalId string
	AckType    envelope.AckType
	Applied    bool
}

// ReadReceiptResult reports the clamped read timestamp an inbound
// ReadReceipt applied.
type ReadReceiptResult struct {
	OriginalId string
	ReadAt     time.Time
	Applied    bool
}

// Decision is the Router's exclusive verdict for one inbound envelope.
type Decision struct {
	Kind         ActionKind
	RejectReason RejectReason
	Forward      *ForwardResult
	Deliver      *DeliverResult
	Ack          *AckResult
	ReadReceipt  *ReadReceiptResult
}

// Router holds the dedup and replay caches plus the message tracker that
// inbound ACKs and read receipts update. One Router instance serves one
// node identity.
type Router struct {
	self     *crypto.KeyPair
	selfId   crypto.NodeId
	tracker  *tracker.Tracker
	dedup    *ttlCache
	ackSeen  *ttlCache
	readSeen *ttlCache

	AckFailed int // count of outbound ACK sends the transport reported as failed; a failed ACK is dropped
}

// New creates a Router for the given node identity.
func New(self *crypto.KeyPair, tr *tracker.Tracker) *Router {
	return &Router{
		self:     self,
		selfId:   crypto.NodeId(self.Public),
		tracker:  tr,
		dedup:    newTTLCache(DedupTTL, DedupCapacity),
		ackSeen:  newTTLCache(ReplayTTL, ReplayCapacity),
		readSeen: newTTLCache(ReplayTTL, ReplayCapacity),
	}
}

// SweepCaches evicts expired entries from the dedup and ACK/read-receipt
// replay caches, bounding their memory independent of traffic volume.
func (r *Router) SweepCaches(now time.Time) {
	r.dedup.sweepExpired(now)
	r.ackSeen.sweepExpired(now)
	r.readSeen.sweepExpired(now)
}

// Route decides the routing action for an inbound envelope.
func (r *Router) Route(env *envelope.Envelope, now time.Time) Decision {
	logger := logrus.WithFields(logrus.Fields{
		"function": "Router.Route",
		"msg_type": env.MsgType,
	})

	if env.MsgType == envelope.Ack {
		return r.routeAck(env, now)
	}
	if env.MsgType == envelope.ReadReceipt {
		return r.routeReadReceipt(env, now)
	}

	if err := env.Validate(); err != nil {
		logger.WithError(err).Debug("Rejecting envelope: policy violation")
		return Decision{Kind: ActionReject, RejectReason: RelayChainTooDeep}
	}

	valid, err := env.Verify()
	if err != nil || !valid {
		logger.Debug("Rejecting envelope: invalid signature")
		return Decision{Kind: ActionReject, RejectReason: InvalidSignature}
	}

	if env.From == env.To {
		return Decision{Kind: ActionReject, RejectReason: SelfSend}
	}

	dedupKey := dedupKey(env.Id.String(), env.From)
	if r.dedup.Seen(dedupKey, now) {
		return Decision{Kind: ActionDrop}
	}

	if env.To == r.selfId {
		return r.deliver(env, now)
	}
	return r.forward(env, now)
}

func dedupKey(id string, from crypto.NodeId) string {
	return id + "|" + from.String()
}

func (r *Router) deliver(env *envelope.Envelope, now time.Time) Decision {
	ack := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      r.selfId,
		To:        env.From,
		Via:       reversed(env.Via),
		MsgType:   envelope.Ack,
		Timestamp: now.UnixMilli(),
	}
	ackPayload, _ := envelope.EncodeAckPayload(&envelope.AckPayload{OriginalId: env.Id, AckType: envelope.AckRecipientReceived})
	ack.Payload = ackPayload
	_ = ack.Sign(r.self)

	return Decision{
		Kind: ActionDeliver,
		Deliver: &DeliverResult{
			Envelope: env,
			Ack:      ack,
		},
	}
}

func (r *Router) forward(env *envelope.Envelope, now time.Time) Decision {
	nextHop, newVia := nextHopFor(r.selfId, env)

	forwarded := *env
	forwarded.Via = newVia
	forwarded.HopTimestamps = append(append([]int64{}, env.HopTimestamps...), now.UnixMilli())

	relayAck := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      r.selfId,
		To:        env.From,
		Via:       reversedUpTo(env.Via, r.selfId),
		MsgType:   envelope.Ack,
		Timestamp: now.UnixMilli(),
	}
	ackPayload, _ := envelope.EncodeAckPayload(&envelope.AckPayload{OriginalId: env.Id, AckType: envelope.AckRelayForwarded})
	relayAck.Payload = ackPayload
	_ = relayAck.Sign(r.self)

	return Decision{
		Kind: ActionForward,
		Forward: &ForwardResult{
			NextHop:  nextHop,
			Envelope: &forwarded,
			RelayAck: relayAck,
			Activity: RelayActivity{Peer: env.From, Bytes: len(env.Payload)},
		},
	}
}

// nextHopFor computes the next relay hop and the Via list the forwarded
// envelope should carry: either the entry after self in Via, or the final
// destination if self is the last listed relay.
func nextHopFor(self crypto.NodeId, env *envelope.Envelope) (crypto.NodeId, []crypto.NodeId) {
	for i, hop := range env.Via {
		if hop == self {
			if i == len(env.Via)-1 {
				return env.To, env.Via
			}
			return env.Via[i+1], env.Via
		}
	}
	// Self is not listed in Via (e.g. a direct relay chosen out-of-band):
	// forward straight to the final destination.
	return env.To, env.Via
}

// reversed returns a new slice with via's elements in reverse order.
func reversed(via []crypto.NodeId) []crypto.NodeId {
	out := make([]crypto.NodeId, len(via))
	for i, hop := range via {
		out[len(via)-1-i] = hop
	}
	return out
}

// reversedUpTo reverses the portion of via up to (excluding) self, giving
// the path an ACK takes back toward the original sender from self's
// position in the relay chain.
func reversedUpTo(via []crypto.NodeId, self crypto.NodeId) []crypto.NodeId {
	idx := len(via)
	for i, hop := range via {
		if hop == self {
			idx = i
			break
		}
	}
	prefix := via[:idx]
	return reversed(prefix)
}

func (r *Router) routeAck(env *envelope.Envelope, now time.Time) Decision {
	payload, err := envelope.DecodeAckPayload(env.Payload)
	if err != nil {
		return Decision{Kind: ActionReject, RejectReason: InvalidSignature}
	}

	switch payload.AckType {
	case envelope.AckRelayForwarded, envelope.AckRecipientReceived, envelope.AckRecipientRead:
	default:
		return Decision{Kind: ActionReject, RejectReason: UnknownAckType}
	}

	key := ackKey(payload.OriginalId, env.From, payload.AckType)
	if r.ackSeen.Seen(key, now) {
		return Decision{Kind: ActionAck, Ack: &AckResult{Applied: false}}
	}

	originalId := uuid.UUID(payload.OriginalId)
	applied := false
	switch payload.AckType {
	case envelope.AckRelayForwarded:
		applied = r.tracker.MarkRelayed(originalId)
	case envelope.AckRecipientReceived:
		applied = r.tracker.MarkDelivered(originalId)
	case envelope.AckRecipientRead:
		applied = r.tracker.MarkRead(originalId, now)
	}

	return Decision{
		Kind: ActionAck,
		Ack: &AckResult{
			OriginalId: originalId.String(),
			AckType:    payload.AckType,
			Applied:    applied,
		},
	}
}

func (r *Router) routeReadReceipt(env *envelope.Envelope, now time.Time) Decision {
	payload, err := envelope.DecodeReadReceiptPayload(env.Payload)
	if err != nil {
		return Decision{Kind: ActionReject, RejectReason: InvalidSignature}
	}

	key := readReceiptKey(payload.OriginalId, env.From)
	if r.readSeen.Seen(key, now) {
		return Decision{Kind: ActionReadReceipt, ReadReceipt: &ReadReceiptResult{Applied: false}}
	}

	originalId := uuid.UUID(payload.OriginalId)
	readAt := clampReadAt(time.UnixMilli(payload.ReadAt), now)
	applied := r.tracker.MarkRead(originalId, readAt)

	return Decision{
		Kind: ActionReadReceipt,
		ReadReceipt: &ReadReceiptResult{
			OriginalId: originalId.String(),
			ReadAt:     readAt,
			Applied:    applied,
		},
	}
}

// clampReadAt bounds a client-provided read timestamp to [now-7d, now] so a
// malicious or clock-skewed peer cannot claim an implausible read time.
func clampReadAt(readAt, now time.Time) time.Time {
	earliest := now.Add(-ReadAtClampBack)
	if readAt.Before(earliest) {
		return earliest
	}
	if readAt.After(now) {
		return now
	}
	return readAt
}

func ackKey(originalId [16]byte, sender crypto.NodeId, ackType envelope.AckType) string {
	return string(originalId[:]) + "|" + sender.String() + "|" + string(ackType)
}

func readReceiptKey(originalId [16]byte, sender crypto.NodeId) string {
	return string(originalId[:]) + "|" + sender.String()
}
