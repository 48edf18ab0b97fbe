// Package tracker implements the per-message delivery status lifecycle:
// pending → sent → relayed → delivered → read.
package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// Status is a message's delivery state. Statuses are totally ordered and
// transitions are monotonic: a later call that would move a message
// backwards is ignored.
type Status uint8

const (
	Pending Status = iota
	Sent
	Relayed
	Delivered
	Read
)

// String renders a Status for logging.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Relayed:
		return "relayed"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	default:
		return "unknown"
	}
}

// DefaultCapacity bounds the number of tracked entries; see Cleanup.
const DefaultCapacity = 10_000

// DefaultRetention is how long a read-terminal entry is kept before Cleanup
// reaps it.
const DefaultRetention = 24 * time.Hour

// DefaultMaxAge is how long a non-terminal (never read) entry is kept
// before Cleanup reaps it to bound memory.
const DefaultMaxAge = 24 * time.Hour

// Entry is one message's tracked delivery state.
type Entry struct {
	To         crypto.NodeId
	Status     Status
	CreatedAt  time.Time
	SentAt     time.Time
	RelayedAt  time.Time
	DeliveredAt time.Time
	ReadAt     time.Time
}

// Tracker holds every in-flight or recently-resolved message's Entry.
// Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]*Entry
	capacity  int
	retention time.Duration
	maxAge    time.Duration
	time      crypto.TimeProvider
}

// New creates a Tracker with the default capacity and retention.
func New() *Tracker {
	return NewWithTimeProvider(crypto.DefaultTimeProvider{})
}

// NewWithTimeProvider creates a Tracker using the given TimeProvider, for
// deterministic tests.
func NewWithTimeProvider(tp crypto.TimeProvider) *Tracker {
	return &Tracker{
		entries:   make(map[uuid.UUID]*Entry),
		capacity:  DefaultCapacity,
		retention: DefaultRetention,
		maxAge:    DefaultMaxAge,
		time:      tp,
	}
}

// Track creates a pending entry for id. It reports true if id was already
// tracked (a duplicate track request never overwrites the existing entry).
func (t *Tracker) Track(id uuid.UUID, to crypto.NodeId) (duplicate bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return true
	}

	if len(t.entries) >= t.capacity {
		t.evictLocked()
	}

	now := t.time.Now()
	t.entries[id] = &Entry{To: to, Status: Pending, CreatedAt: now}
	return false
}

// Get returns a copy of the entry for id, if tracked.
func (t *Tracker) Get(id uuid.UUID) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// MarkSent advances id to Sent. Returns true if the transition was applied.
func (t *Tracker) MarkSent(id uuid.UUID) bool {
	return t.advance(id, Sent, func(e *Entry, now time.Time) { e.SentAt = now })
}

// MarkRelayed advances id to Relayed. Returns true if the transition was
// applied. The direct delivery path may skip this state entirely.
func (t *Tracker) MarkRelayed(id uuid.UUID) bool {
	return t.advance(id, Relayed, func(e *Entry, now time.Time) { e.RelayedAt = now })
}

// MarkDelivered advances id to Delivered. Returns true if the transition was
// applied.
func (t *Tracker) MarkDelivered(id uuid.UUID) bool {
	return t.advance(id, Delivered, func(e *Entry, now time.Time) { e.DeliveredAt = now })
}

// MarkRead advances id to Read at the given (already-clamped) readAt.
// Returns true if the transition was applied.
func (t *Tracker) MarkRead(id uuid.UUID, readAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok || e.Status >= Read {
		return false
	}
	e.Status = Read
	e.ReadAt = readAt
	return true
}

// advance moves id to target if target is strictly ahead of its current
// status, stamping the transition with the tracker's time provider.
func (t *Tracker) advance(id uuid.UUID, target Status, stamp func(*Entry, time.Time)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	if e.Status >= target {
		logrus.WithFields(logrus.Fields{
			"function":       "Tracker.advance",
			"message_id":     id.String(),
			"current_status": e.Status.String(),
			"target_status":  target.String(),
		}).Debug("Ignoring out-of-order or regressive status transition")
		return false
	}

	e.Status = target
	stamp(e, t.time.Now())
	return true
}

// Cleanup reaps read-terminal entries older than the retention window and
// non-terminal entries older than maxAge, then hard-caps memory by evicting
// read entries first and the oldest pending entries next if still over
// capacity. Returns the number of entries removed.
func (t *Tracker) Cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.time.Now()
	removed := 0

	for id, e := range t.entries {
		if e.Status == Read && now.Sub(e.ReadAt) > t.retention {
			delete(t.entries, id)
			removed++
			continue
		}
		if e.Status != Read && now.Sub(e.CreatedAt) > t.maxAge {
			delete(t.entries, id)
			removed++
		}
	}

	for len(t.entries) > t.capacity {
		t.evictLocked()
		removed++
	}

	return removed
}

// evictLocked removes one entry to make room: the oldest Read entry by
// ReadAt if any Read entries exist, else the oldest entry overall by
// CreatedAt. Caller must hold t.mu.
func (t *Tracker) evictLocked() {
	var oldestReadId, oldestAnyId uuid.UUID
	var oldestReadAt, oldestCreatedAt time.Time
	haveRead, haveAny := false, false

	for id, e := range t.entries {
		if e.Status == Read {
			if !haveRead || e.ReadAt.Before(oldestReadAt) {
				oldestReadId, oldestReadAt, haveRead = id, e.ReadAt, true
			}
		}
		if !haveAny || e.CreatedAt.Before(oldestCreatedAt) {
			oldestAnyId, oldestCreatedAt, haveAny = id, e.CreatedAt, true
		}
	}

	if haveRead {
		delete(t.entries, oldestReadId)
		return
	}
	if haveAny {
		delete(t.entries, oldestAnyId)
	}
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
