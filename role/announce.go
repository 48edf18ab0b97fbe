package role

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// ErrInvalidAnnounceSignature is returned when a RoleChangeAnnounce's
// signature does not verify against its claimed NodeId.
var ErrInvalidAnnounceSignature = errors.New("role: invalid announce signature")

// implausibleScoreCeiling is a sanity bound past which an accepted score is
// logged as suspicious (still accepted — the receiver has no ground truth
// for a remote peer's metrics).
const implausibleScoreCeiling = 1000.0

// RoleChangeAnnounce is the signed gossip message a node broadcasts on its
// own role transition.
type RoleChangeAnnounce struct {
	NodeId    crypto.NodeId    `msgpack:"node_id"`
	NewTier   Tier             `msgpack:"new_tier"`
	Score     float64          `msgpack:"score"`
	Timestamp int64            `msgpack:"timestamp"`
	Signature crypto.Signature `msgpack:"signature"`
}

// signingBytes is the deterministic payload the announce's signature
// covers: every field except Signature.
func (a *RoleChangeAnnounce) signingBytes() []byte {
	var buf bytes.Buffer
	buf.Write(a.NodeId[:])
	buf.WriteByte(byte(a.NewTier))
	binary.Write(&buf, binary.BigEndian, math.Float64bits(a.Score))
	binary.Write(&buf, binary.BigEndian, a.Timestamp)
	return buf.Bytes()
}

// Sign computes and stores a.Signature using sender's Ed25519 seed.
// a.NodeId must already equal the NodeId derived from sender's public key.
func (a *RoleChangeAnnounce) Sign(sender *crypto.KeyPair) error {
	sig, err := crypto.Sign(a.signingBytes(), sender.Private)
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

// Verify checks a.Signature against a.NodeId treated as an Ed25519 public
// key.
func (a *RoleChangeAnnounce) Verify() (bool, error) {
	return crypto.Verify(a.signingBytes(), a.Signature, [32]byte(a.NodeId))
}

// NewAnnounce builds the signed announce a node broadcasts for its own
// tier transition.
func NewAnnounce(self *crypto.KeyPair, newTier Tier, score float64, now time.Time) (*RoleChangeAnnounce, error) {
	a := &RoleChangeAnnounce{
		NodeId:    crypto.NodeId(self.Public),
		NewTier:   newTier,
		Score:     score,
		Timestamp: now.UnixMilli(),
	}
	if err := a.Sign(self); err != nil {
		return nil, err
	}
	return a, nil
}

// ReceiveAnnounceResult reports how an inbound RoleChangeAnnounce was
// handled.
type ReceiveAnnounceResult struct {
	Applied    bool
	Throttled  bool
	Implausible bool
}

// ReceiveAnnounce verifies and applies an inbound RoleChangeAnnounce:
// rejects an invalid signature, throttles duplicates from the same sender
// within the configured window, flags (but still applies) an implausibly
// high score, and on success records the sender's new tier for topology to
// read back via Tier.
func (m *Manager) ReceiveAnnounce(a *RoleChangeAnnounce, now time.Time) (ReceiveAnnounceResult, error) {
	valid, err := a.Verify()
	if err != nil || !valid {
		return ReceiveAnnounceResult{}, ErrInvalidAnnounceSignature
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastAnnounceFrom[a.NodeId]; ok && now.Sub(last) < m.announceThrottle {
		return ReceiveAnnounceResult{Throttled: true}, nil
	}
	m.lastAnnounceFrom[a.NodeId] = now

	implausible := a.Score > implausibleScoreCeiling
	if implausible {
		logrus.WithFields(logrus.Fields{
			"function": "Manager.ReceiveAnnounce",
			"node":     a.NodeId.ShortString(),
			"score":    a.Score,
		}).Warn("Implausibly high role score accepted from announce")
	}

	r := m.recordLocked(a.NodeId, now)
	r.tier = a.NewTier

	return ReceiveAnnounceResult{Applied: true, Implausible: implausible}, nil
}
