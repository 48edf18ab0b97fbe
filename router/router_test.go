package router

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/tracker"
)

func newTestRouter(t *testing.T) (*Router, *crypto.KeyPair) {
	t.Helper()
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	return New(self, tracker.New()), self
}

func signedChat(t *testing.T, sender *crypto.KeyPair, to crypto.NodeId, via []crypto.NodeId) *envelope.Envelope {
	t.Helper()
	env := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      crypto.NodeId(sender.Public),
		To:        to,
		Via:       via,
		MsgType:   envelope.Chat,
		Payload:   []byte("hello"),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := env.Sign(sender); err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	return env
}

// S1 — a direct message addressed straight to the router's own node is
// delivered, and the router synthesizes a recipient-received ACK back to
// the original sender.
func TestRoute_DirectDeliverProducesAck(t *testing.T) {
	r, self := newTestRouter(t)
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := signedChat(t, sender, crypto.NodeId(self.Public), nil)

	decision := r.Route(env, time.Now())
	if decision.Kind != ActionDeliver {
		t.Fatalf("Kind = %v, want ActionDeliver", decision.Kind)
	}
	if decision.Deliver.Envelope != env {
		t.Error("delivered envelope should be the original")
	}

	ack := decision.Deliver.Ack
	if ack.To != crypto.NodeId(sender.Public) {
		t.Error("ack should be addressed back to the original sender")
	}
	if ack.MsgType != envelope.Ack {
		t.Error("ack envelope should carry MsgType Ack")
	}
	valid, err := ack.Verify()
	if err != nil || !valid {
		t.Errorf("ack signature should verify, err=%v valid=%v", err, valid)
	}

	payload, err := envelope.DecodeAckPayload(ack.Payload)
	if err != nil {
		t.Fatalf("DecodeAckPayload() failed: %v", err)
	}
	if payload.AckType != envelope.AckRecipientReceived {
		t.Errorf("ack type = %v, want AckRecipientReceived", payload.AckType)
	}
	if uuid.UUID(payload.OriginalId) != env.Id {
		t.Error("ack should reference the original envelope id")
	}
}

// S2 — a message addressed to a third party but routed via this node is
// forwarded to the next hop, with a relay-forwarded ACK owed back to the
// immediate sender along the reversed prefix of Via.
func TestRoute_ForwardThroughRelay(t *testing.T) {
	r, self := newTestRouter(t)
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	var finalDest crypto.NodeId
	finalDest[0] = 0xAA

	via := []crypto.NodeId{crypto.NodeId(self.Public)}
	env := signedChat(t, sender, finalDest, via)

	decision := r.Route(env, time.Now())
	if decision.Kind != ActionForward {
		t.Fatalf("Kind = %v, want ActionForward", decision.Kind)
	}
	if decision.Forward.NextHop != finalDest {
		t.Error("next hop should be the final destination when self is last in Via")
	}
	if decision.Forward.Envelope.Id != env.Id {
		t.Error("forwarded envelope should keep the original id")
	}
	if len(decision.Forward.Envelope.HopTimestamps) != 1 {
		t.Errorf("forwarded envelope should gain one hop timestamp, got %d", len(decision.Forward.Envelope.HopTimestamps))
	}
	if decision.Forward.Activity.Peer != crypto.NodeId(sender.Public) {
		t.Error("relay activity should credit the immediate sender")
	}

	relayAck := decision.Forward.RelayAck
	if relayAck.To != crypto.NodeId(sender.Public) {
		t.Error("relay ack should be addressed back to the immediate sender")
	}
	payload, err := envelope.DecodeAckPayload(relayAck.Payload)
	if err != nil {
		t.Fatalf("DecodeAckPayload() failed: %v", err)
	}
	if payload.AckType != envelope.AckRelayForwarded {
		t.Errorf("ack type = %v, want AckRelayForwarded", payload.AckType)
	}
}

// S3 — a retransmitted duplicate (same id, same sender) is dropped silently.
func TestRoute_DuplicateIsDropped(t *testing.T) {
	r, self := newTestRouter(t)
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	env := signedChat(t, sender, crypto.NodeId(self.Public), nil)

	now := time.Now()
	first := r.Route(env, now)
	if first.Kind != ActionDeliver {
		t.Fatalf("first Route() Kind = %v, want ActionDeliver", first.Kind)
	}

	second := r.Route(env, now)
	if second.Kind != ActionDrop {
		t.Fatalf("second Route() Kind = %v, want ActionDrop", second.Kind)
	}
}

func TestRoute_RejectsDeepViaChain(t *testing.T) {
	r, self := newTestRouter(t)
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	via := make([]crypto.NodeId, envelope.MaxRelayDepth+1)
	env := signedChat(t, sender, crypto.NodeId(self.Public), via)

	decision := r.Route(env, time.Now())
	if decision.Kind != ActionReject || decision.RejectReason != RelayChainTooDeep {
		t.Fatalf("decision = %+v, want Reject/RelayChainTooDeep", decision)
	}
}

func TestRoute_RejectsInvalidSignature(t *testing.T) {
	r, self := newTestRouter(t)
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	env := signedChat(t, sender, crypto.NodeId(self.Public), nil)
	env.Payload = []byte("tampered")

	decision := r.Route(env, time.Now())
	if decision.Kind != ActionReject || decision.RejectReason != InvalidSignature {
		t.Fatalf("decision = %+v, want Reject/InvalidSignature", decision)
	}
}

func TestRoute_RejectsSelfSend(t *testing.T) {
	r, self := newTestRouter(t)
	env := signedChat(t, self, crypto.NodeId(self.Public), nil)

	decision := r.Route(env, time.Now())
	if decision.Kind != ActionReject || decision.RejectReason != SelfSend {
		t.Fatalf("decision = %+v, want Reject/SelfSend", decision)
	}
}

func buildAckEnvelope(t *testing.T, r *Router, originalId uuid.UUID, ackType envelope.AckType, from crypto.NodeId) *envelope.Envelope {
	t.Helper()
	payload, err := envelope.EncodeAckPayload(&envelope.AckPayload{OriginalId: originalId, AckType: ackType})
	if err != nil {
		t.Fatalf("EncodeAckPayload() failed: %v", err)
	}
	env := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      from,
		To:        r.selfId,
		MsgType:   envelope.Ack,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
	return env
}

func TestRoute_AckAdvancesTracker(t *testing.T) {
	r, _ := newTestRouter(t)
	var to crypto.NodeId
	id := uuid.New()
	r.tracker.Track(id, to)
	r.tracker.MarkSent(id)

	var peer crypto.NodeId
	peer[0] = 0x01

	ackEnv := buildAckEnvelope(t, r, id, envelope.AckRelayForwarded, peer)
	decision := r.Route(ackEnv, time.Now())
	if decision.Kind != ActionAck || !decision.Ack.Applied {
		t.Fatalf("decision = %+v, want applied Ack", decision)
	}

	entry, ok := r.tracker.Get(id)
	if !ok || entry.Status != tracker.Relayed {
		t.Fatalf("entry = %+v ok=%v, want Relayed", entry, ok)
	}
}

func TestRoute_AckReplayIsSuppressed(t *testing.T) {
	r, _ := newTestRouter(t)
	var to crypto.NodeId
	id := uuid.New()
	r.tracker.Track(id, to)

	var peer crypto.NodeId
	peer[0] = 0x02

	now := time.Now()
	ackEnv := buildAckEnvelope(t, r, id, envelope.AckRecipientReceived, peer)

	first := r.Route(ackEnv, now)
	if !first.Ack.Applied {
		t.Fatal("first ack should apply")
	}

	second := r.Route(ackEnv, now)
	if second.Ack.Applied {
		t.Error("replayed ack should not re-apply")
	}
}

func TestRoute_UnknownAckTypeRejected(t *testing.T) {
	r, _ := newTestRouter(t)
	var peer crypto.NodeId
	ackEnv := buildAckEnvelope(t, r, uuid.New(), envelope.AckType("bogus"), peer)

	decision := r.Route(ackEnv, time.Now())
	if decision.Kind != ActionReject || decision.RejectReason != UnknownAckType {
		t.Fatalf("decision = %+v, want Reject/UnknownAckType", decision)
	}
}

func buildReadReceiptEnvelope(t *testing.T, r *Router, originalId uuid.UUID, readAt time.Time, from crypto.NodeId) *envelope.Envelope {
	t.Helper()
	payload, err := envelope.EncodeReadReceiptPayload(&envelope.ReadReceiptPayload{OriginalId: originalId, ReadAt: readAt.UnixMilli()})
	if err != nil {
		t.Fatalf("EncodeReadReceiptPayload() failed: %v", err)
	}
	return &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      from,
		To:        r.selfId,
		MsgType:   envelope.ReadReceipt,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestRoute_ReadReceiptClampsFutureTimestamp(t *testing.T) {
	r, _ := newTestRouter(t)
	var to crypto.NodeId
	id := uuid.New()
	r.tracker.Track(id, to)
	r.tracker.MarkDelivered(id)

	var peer crypto.NodeId
	peer[0] = 0x03

	now := time.Now()
	future := now.Add(48 * time.Hour)
	readEnv := buildReadReceiptEnvelope(t, r, id, future, peer)

	decision := r.Route(readEnv, now)
	if decision.Kind != ActionReadReceipt || !decision.ReadReceipt.Applied {
		t.Fatalf("decision = %+v, want applied ReadReceipt", decision)
	}
	if decision.ReadReceipt.ReadAt.After(now) {
		t.Error("read_at should be clamped to now")
	}
}

func TestRoute_ReadReceiptClampsStaleTimestamp(t *testing.T) {
	r, _ := newTestRouter(t)
	var to crypto.NodeId
	id := uuid.New()
	r.tracker.Track(id, to)
	r.tracker.MarkDelivered(id)

	var peer crypto.NodeId
	peer[0] = 0x04

	now := time.Now()
	ancient := now.Add(-30 * 24 * time.Hour)
	readEnv := buildReadReceiptEnvelope(t, r, id, ancient, peer)

	decision := r.Route(readEnv, now)
	if decision.Kind != ActionReadReceipt || !decision.ReadReceipt.Applied {
		t.Fatalf("decision = %+v, want applied ReadReceipt", decision)
	}
	earliest := now.Add(-ReadAtClampBack)
	if decision.ReadReceipt.ReadAt.Before(earliest) {
		t.Error("read_at should be clamped to now-7d")
	}
}

func TestRoute_ReadReceiptReplayIsSuppressed(t *testing.T) {
	r, _ := newTestRouter(t)
	var to crypto.NodeId
	id := uuid.New()
	r.tracker.Track(id, to)
	r.tracker.MarkDelivered(id)

	var peer crypto.NodeId
	peer[0] = 0x05

	now := time.Now()
	readEnv := buildReadReceiptEnvelope(t, r, id, now, peer)

	first := r.Route(readEnv, now)
	if !first.ReadReceipt.Applied {
		t.Fatal("first read receipt should apply")
	}
	second := r.Route(readEnv, now)
	if second.ReadReceipt.Applied {
		t.Error("replayed read receipt should not re-apply")
	}
}

func TestNextHopFor_SelfAbsentFromVia(t *testing.T) {
	var self, dest crypto.NodeId
	self[0] = 0x10
	dest[0] = 0x20
	env := &envelope.Envelope{To: dest}

	nextHop, via := nextHopFor(self, env)
	if nextHop != dest {
		t.Error("next hop should fall back to the final destination")
	}
	if len(via) != 0 {
		t.Error("via should stay empty")
	}
}

func TestNextHopFor_IntermediateHop(t *testing.T) {
	var self, next, dest crypto.NodeId
	self[0] = 0x10
	next[0] = 0x11
	dest[0] = 0x20
	env := &envelope.Envelope{To: dest, Via: []crypto.NodeId{self, next}}

	nextHop, _ := nextHopFor(self, env)
	if nextHop != next {
		t.Error("next hop should be the entry immediately after self in Via")
	}
}

func TestReversedUpTo(t *testing.T) {
	var a, b, c crypto.NodeId
	a[0], b[0], c[0] = 1, 2, 3
	via := []crypto.NodeId{a, b, c}

	got := reversedUpTo(via, c)
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Errorf("reversedUpTo = %v, want [b a]", got)
	}
}

func TestTTLCache_SeenAndExpire(t *testing.T) {
	c := newTTLCache(time.Minute, 10)
	now := time.Now()

	if c.Seen("k", now) {
		t.Error("first Seen() should be false")
	}
	if !c.Seen("k", now) {
		t.Error("second Seen() should be true before expiry")
	}
	if c.Seen("k", now.Add(2*time.Minute)) {
		t.Error("Seen() should be false after expiry")
	}
}

func TestTTLCache_EvictsOnOverflow(t *testing.T) {
	c := newTTLCache(time.Hour, 2)
	now := time.Now()

	c.Seen("a", now)
	c.Seen("b", now.Add(time.Second))
	c.Seen("c", now.Add(2*time.Second))

	if c.Len() > 2 {
		t.Errorf("cache length = %d, want <= 2", c.Len())
	}
}
