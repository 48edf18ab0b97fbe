// Package role implements per-peer contribution scoring, the resulting
// promotion/demotion to relay status, and the signed gossip announce of a
// node's own role change.
package role

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// Tier is the relay-contribution tier a node occupies.
type Tier uint8

const (
	Member Tier = iota
	Relay
)

func (t Tier) String() string {
	if t == Relay {
		return "relay"
	}
	return "member"
}

// Metrics is the raw contribution data tracked per other node.
type Metrics struct {
	MessagesRelayed int64
	RelayFailures   int64
	BytesRelayed    int64
	BytesReceived   int64
	FirstSeen       time.Time
	LastActivity    time.Time
	TotalUptimeMs   int64
}

type peerRecord struct {
	metrics Metrics
	tier    Tier
}

// Manager tracks contribution metrics and tier for every other known node
// and evaluates promotion/demotion on request.
type Manager struct {
	mu      sync.Mutex
	peers   map[crypto.NodeId]*peerRecord
	decayPerMs float64
	promoteAt  float64
	demoteAt   float64

	announceThrottle time.Duration
	lastAnnounceFrom map[crypto.NodeId]time.Time
}

// New creates a Manager. decayPerHour is the fractional per-hour score
// decay (e.g. 0.05 for 5%/hour); promoteAt/demoteAt are the promotion and
// demotion score thresholds.
func New(decayPerHour, promoteAt, demoteAt float64, announceThrottle time.Duration) *Manager {
	return &Manager{
		peers:            make(map[crypto.NodeId]*peerRecord),
		decayPerMs:       decayPerHour / float64(time.Hour/time.Millisecond),
		promoteAt:        promoteAt,
		demoteAt:         demoteAt,
		announceThrottle: announceThrottle,
		lastAnnounceFrom: make(map[crypto.NodeId]time.Time),
	}
}

// RecordRelaySuccess credits node with one relayed message of n bytes.
func (m *Manager) RecordRelaySuccess(node crypto.NodeId, bytes int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordLocked(node, now)
	r.metrics.MessagesRelayed++
	r.metrics.BytesRelayed += int64(bytes)
	r.metrics.LastActivity = now
}

// RecordRelayFailure debits node with one failed relay attempt.
func (m *Manager) RecordRelayFailure(node crypto.NodeId, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordLocked(node, now)
	r.metrics.RelayFailures++
	r.metrics.LastActivity = now
}

// RecordBytesReceived credits node with n bytes received from it directly
// (used as the denominator of bandwidth_ratio).
func (m *Manager) RecordBytesReceived(node crypto.NodeId, bytes int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recordLocked(node, now)
	r.metrics.BytesReceived += int64(bytes)
	r.metrics.LastActivity = now
}

func (m *Manager) recordLocked(node crypto.NodeId, now time.Time) *peerRecord {
	r, ok := m.peers[node]
	if !ok {
		r = &peerRecord{metrics: Metrics{FirstSeen: now, LastActivity: now}, tier: Member}
		m.peers[node] = r
	}
	return r
}

// Score computes node's current contribution score.
func (m *Manager) Score(node crypto.NodeId, now time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.peers[node]
	if !ok {
		return 0
	}
	return scoreFor(r.metrics, m.decayPerMs, now)
}

func scoreFor(metrics Metrics, decayPerMs float64, now time.Time) float64 {
	successRate := float64(metrics.MessagesRelayed) / math.Max(1, float64(metrics.MessagesRelayed+metrics.RelayFailures))

	bandwidthRatio := 1.0
	if metrics.BytesReceived > 0 {
		bandwidthRatio = float64(metrics.BytesRelayed) / float64(metrics.BytesReceived)
	}

	uptimeHours := float64(metrics.TotalUptimeMs) / float64(time.Hour/time.Millisecond)
	bytesRelayedMB := float64(metrics.BytesRelayed) / (1024 * 1024)

	score := 1.0*float64(metrics.MessagesRelayed) +
		5.0*successRate +
		0.5*uptimeHours +
		0.2*bytesRelayedMB +
		1.5*bandwidthRatio

	elapsedMs := now.Sub(metrics.LastActivity).Milliseconds()
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	decay := math.Exp(-decayPerMs * float64(elapsedMs))

	return score * decay
}

// EvaluationResult is one node's tier re-evaluation outcome.
type EvaluationResult struct {
	NodeId   crypto.NodeId
	Score    float64
	OldTier  Tier
	NewTier  Tier
	Changed  bool
}

// EvaluateAll recomputes every known node's score and applies
// promotion/demotion, returning the nodes whose tier changed.
func (m *Manager) EvaluateAll(now time.Time) []EvaluationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []EvaluationResult
	for id, r := range m.peers {
		score := scoreFor(r.metrics, m.decayPerMs, now)
		newTier := r.tier
		if r.tier == Member && score >= m.promoteAt {
			newTier = Relay
		} else if r.tier == Relay && score < m.demoteAt {
			newTier = Member
		}
		if newTier != r.tier {
			old := r.tier
			r.tier = newTier
			changed = append(changed, EvaluationResult{
				NodeId:  id,
				Score:   score,
				OldTier: old,
				NewTier: newTier,
				Changed: true,
			})
			logrus.WithFields(logrus.Fields{
				"function": "Manager.EvaluateAll",
				"node":     id.ShortString(),
				"old_tier": old.String(),
				"new_tier": newTier.String(),
				"score":    score,
			}).Info("Peer contribution tier changed")
		}
	}
	return changed
}

// Tier returns node's current tier, defaulting to Member if unknown.
func (m *Manager) Tier(node crypto.NodeId) Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.peers[node]
	if !ok {
		return Member
	}
	return r.tier
}

// Forget discards node's contribution record entirely, e.g. once the
// topology has evicted it as offline; a future reappearance starts scoring
// from a clean Member-tier record rather than resuming a stale one.
func (m *Manager) Forget(node crypto.NodeId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, node)
}

// PeerScore pairs a tracked node's current tier and live (decayed) score.
type PeerScore struct {
	Tier  Tier
	Score float64
}

// Snapshot returns every tracked node's current tier and score, for
// callers outside this package that need to enumerate them (e.g. the
// runtime's get-all-role-scores query).
func (m *Manager) Snapshot(now time.Time) map[crypto.NodeId]PeerScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[crypto.NodeId]PeerScore, len(m.peers))
	for id, r := range m.peers {
		out[id] = PeerScore{Tier: r.tier, Score: scoreFor(r.metrics, m.decayPerMs, now)}
	}
	return out
}
