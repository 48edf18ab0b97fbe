package role

import (
	"testing"
	"time"

	"github.com/tom-network/tomcore/crypto"
)

func peerId(b byte) crypto.NodeId {
	var n crypto.NodeId
	n[0] = b
	return n
}

func TestManager_PromotionOnHighScore(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	node := peerId(0x01)
	now := time.Now()

	for i := 0; i < 20; i++ {
		m.RecordRelaySuccess(node, 1024, now)
	}
	m.RecordBytesReceived(node, 1024, now)

	results := m.EvaluateAll(now)
	if len(results) != 1 || results[0].NewTier != Relay {
		t.Fatalf("results = %+v, want one promotion to Relay", results)
	}
	if m.Tier(node) != Relay {
		t.Errorf("Tier() = %v, want Relay", m.Tier(node))
	}
}

func TestManager_DemotionOnLowScore(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	node := peerId(0x02)
	now := time.Now()

	for i := 0; i < 20; i++ {
		m.RecordRelaySuccess(node, 1024, now)
	}
	m.EvaluateAll(now)
	if m.Tier(node) != Relay {
		t.Fatal("setup: expected promotion to Relay before testing decay-driven demotion")
	}

	// Score decays toward zero the longer a peer goes quiet.
	muchLater := now.Add(90 * 24 * time.Hour)
	results := m.EvaluateAll(muchLater)
	if len(results) != 1 || results[0].NewTier != Member {
		t.Fatalf("results = %+v, want one demotion to Member", results)
	}
}

func TestManager_NoFlapBetweenThresholds(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	node := peerId(0x03)
	now := time.Now()

	m.RecordRelaySuccess(node, 10, now)
	results := m.EvaluateAll(now)
	if len(results) != 0 {
		t.Fatalf("results = %+v, want no tier change for a middling score", results)
	}
	if m.Tier(node) != Member {
		t.Errorf("Tier() = %v, want Member", m.Tier(node))
	}
}

func TestAnnounce_SignVerifyRoundTrip(t *testing.T) {
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	a, err := NewAnnounce(self, Relay, 12.5, time.Now())
	if err != nil {
		t.Fatalf("NewAnnounce() failed: %v", err)
	}

	valid, err := a.Verify()
	if err != nil || !valid {
		t.Fatalf("Verify() = %v, %v, want true, nil", valid, err)
	}
}

func TestAnnounce_TamperedScoreFailsVerification(t *testing.T) {
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	a, err := NewAnnounce(self, Relay, 12.5, time.Now())
	if err != nil {
		t.Fatalf("NewAnnounce() failed: %v", err)
	}
	a.Score = 999.0

	valid, _ := a.Verify()
	if valid {
		t.Error("Verify() should fail after the score is tampered with")
	}
}

func TestManager_ReceiveAnnounce_RejectsInvalidSignature(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	a, err := NewAnnounce(self, Relay, 12.5, time.Now())
	if err != nil {
		t.Fatalf("NewAnnounce() failed: %v", err)
	}
	a.NewTier = Member // mutate after signing

	_, err = m.ReceiveAnnounce(a, time.Now())
	if err != ErrInvalidAnnounceSignature {
		t.Fatalf("err = %v, want ErrInvalidAnnounceSignature", err)
	}
}

func TestManager_ReceiveAnnounce_ThrottlesDuplicates(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	now := time.Now()
	a, err := NewAnnounce(self, Relay, 12.5, now)
	if err != nil {
		t.Fatalf("NewAnnounce() failed: %v", err)
	}

	first, err := m.ReceiveAnnounce(a, now)
	if err != nil || !first.Applied {
		t.Fatalf("first ReceiveAnnounce() = %+v, %v, want applied", first, err)
	}

	second, err := m.ReceiveAnnounce(a, now.Add(time.Second))
	if err != nil || !second.Throttled {
		t.Fatalf("second ReceiveAnnounce() = %+v, %v, want throttled", second, err)
	}

	third, err := m.ReceiveAnnounce(a, now.Add(31*time.Second))
	if err != nil || !third.Applied {
		t.Fatalf("third ReceiveAnnounce() = %+v, %v, want applied after throttle window", third, err)
	}
}

func TestManager_ReceiveAnnounce_ImplausibleScoreStillApplied(t *testing.T) {
	m := New(0.05, 10.0, 2.0, 30*time.Second)
	self, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	now := time.Now()
	a, err := NewAnnounce(self, Relay, 5000.0, now)
	if err != nil {
		t.Fatalf("NewAnnounce() failed: %v", err)
	}

	result, err := m.ReceiveAnnounce(a, now)
	if err != nil {
		t.Fatalf("ReceiveAnnounce() failed: %v", err)
	}
	if !result.Applied || !result.Implausible {
		t.Errorf("result = %+v, want Applied=true Implausible=true", result)
	}
	if m.Tier(crypto.NodeId(self.Public)) != Relay {
		t.Error("tier should still be applied despite the implausible score")
	}
}
