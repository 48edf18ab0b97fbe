package envelope

import (
	"testing"
	"time"

	"github.com/tom-network/tomcore/crypto"
)

func newTestEnvelope(t *testing.T, from *crypto.KeyPair, to crypto.NodeId) *Envelope {
	t.Helper()
	return &Envelope{
		Id:        NewId(),
		From:      crypto.NodeId(from.Public),
		To:        to,
		MsgType:   Chat,
		Payload:   []byte("hello"),
		Encrypted: false,
		Timestamp: time.Now().UnixMilli(),
	}
}

func TestEnvelope_SignVerifyRoundTrip(t *testing.T) {
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	recipient, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := newTestEnvelope(t, sender, crypto.NodeId(recipient.Public))
	if err := env.Sign(sender); err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	ok, err := env.Verify()
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if !ok {
		t.Error("Verify() = false for a correctly signed envelope")
	}
}

func TestEnvelope_VerifyFailsOnTamperedField(t *testing.T) {
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	recipient, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := newTestEnvelope(t, sender, crypto.NodeId(recipient.Public))
	if err := env.Sign(sender); err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	env.Payload = []byte("tampered")

	ok, err := env.Verify()
	if err != nil {
		t.Fatalf("Verify() failed: %v", err)
	}
	if ok {
		t.Error("Verify() = true for a tampered envelope")
	}
}

func TestEnvelope_EncodeDecodeRoundTrip(t *testing.T) {
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	recipient, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := newTestEnvelope(t, sender, crypto.NodeId(recipient.Public))
	env.Via = []crypto.NodeId{crypto.NodeId(sender.Public)}
	env.HopTimestamps = []int64{123, 456}
	if err := env.Sign(sender); err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	if decoded.Id != env.Id {
		t.Errorf("Id mismatch after round-trip: got %v, want %v", decoded.Id, env.Id)
	}
	if decoded.From != env.From || decoded.To != env.To {
		t.Error("From/To mismatch after round-trip")
	}
	if len(decoded.Via) != 1 || decoded.Via[0] != env.Via[0] {
		t.Error("Via mismatch after round-trip")
	}
	if string(decoded.Payload) != string(env.Payload) {
		t.Error("Payload mismatch after round-trip")
	}

	ok, err := decoded.Verify()
	if err != nil {
		t.Fatalf("Verify() on decoded envelope failed: %v", err)
	}
	if !ok {
		t.Error("decoded envelope failed signature verification")
	}
}

func TestEnvelope_ValidateRejectsDeepVia(t *testing.T) {
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	recipient, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := newTestEnvelope(t, sender, crypto.NodeId(recipient.Public))
	for i := 0; i <= MaxRelayDepth; i++ {
		hop, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair() failed: %v", err)
		}
		env.Via = append(env.Via, crypto.NodeId(hop.Public))
	}

	if err := env.Validate(); err != ErrViaTooDeep {
		t.Errorf("Validate() = %v, want %v", err, ErrViaTooDeep)
	}
}

func TestEnvelope_ValidateAcceptsMaxDepth(t *testing.T) {
	sender, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}
	recipient, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	env := newTestEnvelope(t, sender, crypto.NodeId(recipient.Public))
	for i := 0; i < MaxRelayDepth; i++ {
		hop, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair() failed: %v", err)
		}
		env.Via = append(env.Via, crypto.NodeId(hop.Public))
	}

	if err := env.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil at exactly MaxRelayDepth", err)
	}
}
