// Package heartbeat implements per-node liveness tracking: the Alive,
// Stale, and Departed state machine driven by activity and periodic
// checks.
package heartbeat

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// State is a node's liveness state.
type State uint8

const (
	Departed State = iota
	Stale
	Alive
)

func (s State) String() string {
	switch s {
	case Alive:
		return "alive"
	case Stale:
		return "stale"
	case Departed:
		return "departed"
	default:
		return "unknown"
	}
}

// Source is where an activity record came from; the most recent pending
// source is consumed at the next transition into Alive to annotate the
// emitted PeerDiscovered event.
type Source string

const (
	SourceDirect   Source = "direct"
	SourceGossip   Source = "gossip"
	SourceAnnounce Source = "announce"
)

// TransitionKind is the exclusive liveness transition Check produced for
// one node, if any.
type TransitionKind uint8

const (
	NoTransition TransitionKind = iota
	Discovered
	BecameStale
	BecameOffline
	BecameOnline
)

// Transition is one liveness state change for one node.
type Transition struct {
	NodeId crypto.NodeId
	Kind   TransitionKind
	Source Source // only meaningful for Discovered
}

type nodeState struct {
	state         State
	lastSeen      time.Time
	pendingSource Source
	everAlive     bool
}

// Tracker holds every known node's liveness state. Safe for concurrent use.
// Every method that depends on the current time takes it as an explicit
// parameter rather than reading a clock, so the runtime can drive it with a
// single authoritative `now` per tick (see protocol.Config's timer
// intervals and runtime's handler contract).
type Tracker struct {
	mu               sync.Mutex
	nodes            map[crypto.NodeId]*nodeState
	staleThreshold   time.Duration
	offlineThreshold time.Duration

	// debounceWindow suppresses a BecameOnline transition that would
	// immediately follow a BecameOffline for the same node within this
	// window, avoiding oscillation noise from flapping links.
	debounceWindow time.Duration
	lastOfflineAt  map[crypto.NodeId]time.Time
}

// New creates a Tracker with the given thresholds.
func New(staleThreshold, offlineThreshold time.Duration) *Tracker {
	return &Tracker{
		nodes:            make(map[crypto.NodeId]*nodeState),
		staleThreshold:   staleThreshold,
		offlineThreshold: offlineThreshold,
		debounceWindow:   staleThreshold,
		lastOfflineAt:    make(map[crypto.NodeId]time.Time),
	}
}

// RecordActivity records that a node is alive as of now, optionally
// attributing the observation to source (defaulting to Direct). The
// attribution is stored until the next transition into Alive.
func (t *Tracker) RecordActivity(node crypto.NodeId, now time.Time, source Source) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if source == "" {
		source = SourceDirect
	}

	n, ok := t.nodes[node]
	if !ok {
		n = &nodeState{state: Departed}
		t.nodes[node] = n
	}
	n.lastSeen = now
	n.pendingSource = source
}

// CheckAll evaluates every tracked node against now and returns the
// transitions that occurred, in no defined order; the order may differ
// between calls.
func (t *Tracker) CheckAll(now time.Time) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	for id, n := range t.nodes {
		if tr, ok := t.checkOneLocked(id, n, now); ok {
			out = append(out, tr)
		}
	}
	return out
}

func (t *Tracker) checkOneLocked(id crypto.NodeId, n *nodeState, now time.Time) (Transition, bool) {
	sinceActive := now.Sub(n.lastSeen)

	switch n.state {
	case Alive:
		if sinceActive > t.offlineThreshold {
			n.state = Departed
			t.lastOfflineAt[id] = now
			logrus.WithFields(logrus.Fields{
				"function": "Tracker.checkOneLocked",
				"node":     id.ShortString(),
			}).Info("Peer transitioned to offline")
			return Transition{NodeId: id, Kind: BecameOffline}, true
		}
		if sinceActive > t.staleThreshold {
			n.state = Stale
			logrus.WithFields(logrus.Fields{
				"function": "Tracker.checkOneLocked",
				"node":     id.ShortString(),
			}).Debug("Peer transitioned to stale")
			return Transition{NodeId: id, Kind: BecameStale}, true
		}
		return Transition{}, false

	case Stale:
		if sinceActive > t.offlineThreshold {
			n.state = Departed
			t.lastOfflineAt[id] = now
			return Transition{NodeId: id, Kind: BecameOffline}, true
		}
		if sinceActive <= t.staleThreshold {
			return t.transitionToAliveLocked(id, n, now)
		}
		return Transition{}, false

	case Departed:
		if sinceActive <= t.staleThreshold {
			return t.transitionToAliveLocked(id, n, now)
		}
		return Transition{}, false
	}

	return Transition{}, false
}

// transitionToAliveLocked moves n to Alive, debouncing a rapid
// offline-then-online flap and distinguishing a first-ever Alive
// (Discovered) from a recovery (BecameOnline).
func (t *Tracker) transitionToAliveLocked(id crypto.NodeId, n *nodeState, now time.Time) (Transition, bool) {
	if offlineAt, ok := t.lastOfflineAt[id]; ok && now.Sub(offlineAt) < t.debounceWindow {
		// Debounced: record the state as Alive internally but suppress the
		// emitted event so a transient flap is invisible to the application.
		n.state = Alive
		n.everAlive = true
		delete(t.lastOfflineAt, id)
		return Transition{}, false
	}

	n.state = Alive
	source := n.pendingSource
	n.pendingSource = ""

	if !n.everAlive {
		n.everAlive = true
		return Transition{NodeId: id, Kind: Discovered, Source: sourceOrDefault(source)}, true
	}
	return Transition{NodeId: id, Kind: BecameOnline, Source: sourceOrDefault(source)}, true
}

func sourceOrDefault(s Source) Source {
	if s == "" {
		return SourceDirect
	}
	return s
}

// State returns the current state of a tracked node, or Departed if unknown.
func (t *Tracker) State(node crypto.NodeId) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[node]
	if !ok {
		return Departed
	}
	return n.state
}

// Remove forgets a node entirely, e.g. after role-manager cleanup on
// BecameOffline.
func (t *Tracker) Remove(node crypto.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, node)
	delete(t.lastOfflineAt, node)
}

// Len returns the number of tracked nodes.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
