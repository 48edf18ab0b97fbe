package topology

import (
	"testing"
	"time"

	"github.com/tom-network/tomcore/crypto"
)

func id(b byte) crypto.NodeId {
	var n crypto.NodeId
	n[0] = b
	return n
}

func TestTopology_UpsertAndGet(t *testing.T) {
	topo := New(id(0x00))
	peer := PeerInfo{NodeId: id(0x01), Status: StatusOnline, Role: RoleMember, LastSeen: time.Now()}
	topo.Upsert(peer)

	got, ok := topo.Get(id(0x01))
	if !ok {
		t.Fatal("expected peer to be present")
	}
	if got.Status != StatusOnline {
		t.Errorf("status = %v, want StatusOnline", got.Status)
	}
}

func TestTopology_Remove(t *testing.T) {
	topo := New(id(0x00))
	topo.Upsert(PeerInfo{NodeId: id(0x01), Status: StatusOnline})
	topo.Remove(id(0x01))

	if _, ok := topo.Get(id(0x01)); ok {
		t.Error("expected peer to be removed")
	}
}

func TestSelectPath_DirectWhenOnline(t *testing.T) {
	topo := New(id(0x00))
	topo.Upsert(PeerInfo{NodeId: id(0x01), Status: StatusOnline})

	path, err := topo.SelectPath(id(0x01), nil)
	if err != nil {
		t.Fatalf("SelectPath() failed: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty (direct)", path)
	}
}

func TestSelectPath_SingleRelayMostRecent(t *testing.T) {
	topo := New(id(0x00))
	now := time.Now()
	// recipient offline but known so direct-fallback would also be a
	// candidate; the relay must still win since it is tried first.
	topo.Upsert(PeerInfo{NodeId: id(0x02), Status: StatusOffline})
	topo.Upsert(PeerInfo{NodeId: id(0x10), Status: StatusOnline, Role: RoleRelay, LastSeen: now.Add(-time.Minute)})
	topo.Upsert(PeerInfo{NodeId: id(0x11), Status: StatusOnline, Role: RoleRelay, LastSeen: now})

	path, err := topo.SelectPath(id(0x02), nil)
	if err != nil {
		t.Fatalf("SelectPath() failed: %v", err)
	}
	if len(path) != 1 || path[0] != id(0x11) {
		t.Errorf("path = %v, want [0x11] (most recently seen relay)", path)
	}
}

func TestSelectPath_OnlineRecipientPreemptsRelaySearch(t *testing.T) {
	topo := New(id(0x00))
	// The recipient is online and 0x10 is an online relay; the direct step
	// answers before any relay or BFS search is tried.
	recipient := id(0x99)
	topo.Upsert(PeerInfo{NodeId: recipient, Status: StatusOnline})
	topo.Upsert(PeerInfo{NodeId: id(0x10), Status: StatusOnline, Role: RoleRelay, LastSeen: time.Now()})

	// No peers are excluded.
	path, err := topo.SelectPath(recipient, nil)
	if err != nil {
		t.Fatalf("SelectPath() failed: %v", err)
	}
	// With recipient online, direct delivery always wins first (priority i).
	if len(path) != 0 {
		t.Errorf("path = %v, want empty (direct delivery pre-empts relay search)", path)
	}
}

func TestSelectPath_DirectFallbackWhenNoRelayQualifies(t *testing.T) {
	topo := New(id(0x00))
	topo.Upsert(PeerInfo{NodeId: id(0x02), Status: StatusOffline})

	path, err := topo.SelectPath(id(0x02), nil)
	if err != nil {
		t.Fatalf("SelectPath() failed: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty (direct-fallback)", path)
	}
}

func TestSelectPath_NoPath(t *testing.T) {
	topo := New(id(0x00))
	_, err := topo.SelectPath(id(0xFF), nil)
	if err != ErrNoPath {
		t.Errorf("err = %v, want ErrNoPath", err)
	}
}

func TestSelectPath_ExcludedRelaySkipped(t *testing.T) {
	topo := New(id(0x00))
	topo.Upsert(PeerInfo{NodeId: id(0x02), Status: StatusOffline})
	topo.Upsert(PeerInfo{NodeId: id(0x10), Status: StatusOnline, Role: RoleRelay, LastSeen: time.Now()})

	excluded := map[crypto.NodeId]bool{id(0x10): true}
	path, err := topo.SelectPath(id(0x02), excluded)
	if err != nil {
		t.Fatalf("SelectPath() failed: %v", err)
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty (fallback after excluding only relay)", path)
	}
}
