// Package backup implements store-and-forward delivery for offline
// recipients. When a local send targets an offline peer, the coordinator
// holds the encrypted payload and replicates it to a bounded set of online
// peers; whichever replica first observes the recipient come back online
// attempts delivery and confirms it to the entries it purges locally.
package backup

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// DefaultReplicationFactor is how many online peers a stored message is
// replicated to; see protocol.Config.BackupReplicationFactor.
const DefaultReplicationFactor = 3

// DefaultTTL bounds how long an entry is held before it is aged out.
// protocol.DefaultConfig picks 24h to match the tracker's stuck-message
// reap window.
const DefaultTTL = 24 * time.Hour

// DefaultCapacity bounds the number of entries a single node holds across
// every recipient, regardless of role.
const DefaultCapacity = 10_000

// Entry is one stored-for-later-delivery message.
type Entry struct {
	MessageId uuid.UUID
	Recipient crypto.NodeId
	Sender    crypto.NodeId
	Payload   []byte
	StoredAt  time.Time
	TTL       time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// Coordinator holds every backup entry this node is replicating, keyed by
// message id. Safe for use only from the single-threaded runtime that owns
// it, like every other component package: the runtime's single-writer
// discipline makes an internal mutex unnecessary here.
type Coordinator struct {
	replicationFactor int
	ttl               time.Duration
	capacity          int

	entries map[uuid.UUID]*Entry
}

// New creates a Coordinator with the given replication factor, entry TTL,
// and capacity.
func New(replicationFactor int, ttl time.Duration, capacity int) *Coordinator {
	return &Coordinator{
		replicationFactor: replicationFactor,
		ttl:               ttl,
		capacity:          capacity,
		entries:           make(map[uuid.UUID]*Entry),
	}
}

// StoreResult is the outcome of Store: the entry recorded locally plus the
// set of peers a BackupReplicate should be sent to.
type StoreResult struct {
	Entry     Entry
	Replicate []crypto.NodeId
}

// Store records a new backup entry for an offline recipient and selects up
// to the configured replication factor from candidates (normally every
// currently-online peer) to replicate it to. candidates is sorted so
// selection is deterministic given the same input set.
func (c *Coordinator) Store(messageId uuid.UUID, recipient, sender crypto.NodeId, payload []byte, candidates []crypto.NodeId, now time.Time) StoreResult {
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	e := Entry{MessageId: messageId, Recipient: recipient, Sender: sender, Payload: payload, StoredAt: now, TTL: c.ttl}
	c.entries[messageId] = &e

	targets := selectReplicas(candidates, c.replicationFactor)

	logrus.WithFields(logrus.Fields{
		"function":  "Coordinator.Store",
		"message":   messageId.String(),
		"recipient": recipient.ShortString(),
		"replicas":  len(targets),
	}).Info("Stored backup entry for offline recipient")

	return StoreResult{Entry: e, Replicate: targets}
}

// selectReplicas deterministically picks up to n peers from candidates.
func selectReplicas(candidates []crypto.NodeId, n int) []crypto.NodeId {
	sorted := append([]crypto.NodeId{}, candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// OnReplicate records an entry this node is holding as a replica on behalf
// of another node's Store call (the BackupReplicate envelope's sender).
func (c *Coordinator) OnReplicate(messageId uuid.UUID, recipient, sender crypto.NodeId, payload []byte, ttl time.Duration, now time.Time) {
	if _, exists := c.entries[messageId]; exists {
		return
	}
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[messageId] = &Entry{MessageId: messageId, Recipient: recipient, Sender: sender, Payload: payload, StoredAt: now, TTL: ttl}
}

// PendingFor returns every non-expired entry held for recipient, used when
// the heartbeat tracker reports the recipient just came online.
func (c *Coordinator) PendingFor(recipient crypto.NodeId, now time.Time) []Entry {
	var out []Entry
	for _, e := range c.entries {
		if e.Recipient == recipient && !e.expired(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StoredAt.Before(out[j].StoredAt) })
	return out
}

// ConfirmDelivered purges every entry in messageIds, e.g. after this node
// has delivered them itself, or on receipt of a BackupConfirmDelivery that
// the recipient sends to the replica that answered its BackupQuery.
func (c *Coordinator) ConfirmDelivered(messageIds []uuid.UUID) {
	for _, id := range messageIds {
		delete(c.entries, id)
	}
}

// Expire removes every entry past its TTL as of now and returns their
// message ids, for the caller to emit one BackupExpired event each.
func (c *Coordinator) Expire(now time.Time) []uuid.UUID {
	var expired []uuid.UUID
	for id, e := range c.entries {
		if e.expired(now) {
			expired = append(expired, id)
			delete(c.entries, id)
		}
	}
	return expired
}

// evictOldestLocked drops the single oldest entry to make room under
// capacity pressure.
func (c *Coordinator) evictOldestLocked() {
	var oldestId uuid.UUID
	var oldestAt time.Time
	have := false
	for id, e := range c.entries {
		if !have || e.StoredAt.Before(oldestAt) {
			oldestId, oldestAt, have = id, e.StoredAt, true
		}
	}
	if have {
		delete(c.entries, oldestId)
	}
}

// Len returns the number of entries currently held.
func (c *Coordinator) Len() int {
	return len(c.entries)
}
