package heartbeat

import (
	"testing"
	"time"

	"github.com/tom-network/tomcore/crypto"
)

const (
	testStale   = 30 * time.Second
	testOffline = 2 * time.Minute
)

func peerId(b byte) crypto.NodeId {
	var n crypto.NodeId
	n[0] = b
	return n
}

func TestHeartbeat_DiscoveredOnFirstActivity(t *testing.T) {
	tr := New(testStale, testOffline)
	now := time.Now()
	node := peerId(0x01)

	tr.RecordActivity(node, now, SourceAnnounce)
	transitions := tr.CheckAll(now)

	if len(transitions) != 1 || transitions[0].Kind != Discovered {
		t.Fatalf("transitions = %+v, want one Discovered", transitions)
	}
	if transitions[0].Source != SourceAnnounce {
		t.Errorf("source = %v, want SourceAnnounce", transitions[0].Source)
	}
	if tr.State(node) != Alive {
		t.Errorf("state = %v, want Alive", tr.State(node))
	}
}

func TestHeartbeat_DefaultsToDirectSource(t *testing.T) {
	tr := New(testStale, testOffline)
	now := time.Now()
	node := peerId(0x02)

	tr.RecordActivity(node, now, "")
	transitions := tr.CheckAll(now)

	if len(transitions) != 1 || transitions[0].Source != SourceDirect {
		t.Fatalf("transitions = %+v, want Discovered/SourceDirect", transitions)
	}
}

func TestHeartbeat_BecomesStaleThenOffline(t *testing.T) {
	tr := New(testStale, testOffline)
	node := peerId(0x03)
	t0 := time.Now()

	tr.RecordActivity(node, t0, SourceDirect)
	tr.CheckAll(t0)

	staleCheck := t0.Add(testStale + time.Second)
	transitions := tr.CheckAll(staleCheck)
	if len(transitions) != 1 || transitions[0].Kind != BecameStale {
		t.Fatalf("transitions = %+v, want one BecameStale", transitions)
	}

	offlineCheck := t0.Add(testOffline + time.Second)
	transitions = tr.CheckAll(offlineCheck)
	if len(transitions) != 1 || transitions[0].Kind != BecameOffline {
		t.Fatalf("transitions = %+v, want one BecameOffline", transitions)
	}
	if tr.State(node) != Departed {
		t.Errorf("state = %v, want Departed", tr.State(node))
	}
}

func TestHeartbeat_RecoveryFromStaleEmitsOnline(t *testing.T) {
	tr := New(testStale, testOffline)
	node := peerId(0x04)
	t0 := time.Now()

	tr.RecordActivity(node, t0, SourceDirect)
	tr.CheckAll(t0)
	tr.CheckAll(t0.Add(testStale + time.Second)) // -> Stale

	recoverAt := t0.Add(testStale + 2*time.Second)
	tr.RecordActivity(node, recoverAt, SourceDirect)
	transitions := tr.CheckAll(recoverAt)

	if len(transitions) != 1 || transitions[0].Kind != BecameOnline {
		t.Fatalf("transitions = %+v, want one BecameOnline", transitions)
	}
}

func TestHeartbeat_RapidFlapIsDebounced(t *testing.T) {
	tr := New(testStale, testOffline)
	node := peerId(0x05)
	t0 := time.Now()

	tr.RecordActivity(node, t0, SourceDirect)
	tr.CheckAll(t0) // Discovered

	offlineAt := t0.Add(testOffline + time.Second)
	transitions := tr.CheckAll(offlineAt)
	if len(transitions) != 1 || transitions[0].Kind != BecameOffline {
		t.Fatalf("setup: transitions = %+v, want one BecameOffline", transitions)
	}

	// Reconnect almost immediately: within the debounce window, the online
	// event should be suppressed even though the node is internally Alive.
	recoverAt := offlineAt.Add(time.Second)
	tr.RecordActivity(node, recoverAt, SourceDirect)
	transitions = tr.CheckAll(recoverAt)
	if len(transitions) != 0 {
		t.Errorf("transitions = %+v, want none (debounced)", transitions)
	}
	if tr.State(node) != Alive {
		t.Error("node should still be internally Alive despite the suppressed event")
	}
}

func TestHeartbeat_RemoveForgetsNode(t *testing.T) {
	tr := New(testStale, testOffline)
	node := peerId(0x06)
	now := time.Now()
	tr.RecordActivity(node, now, SourceDirect)
	tr.CheckAll(now)

	tr.Remove(node)
	if tr.State(node) != Departed {
		t.Errorf("state after Remove = %v, want Departed (unknown)", tr.State(node))
	}
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
}
