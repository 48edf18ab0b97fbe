package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptGroupMessage_RoundTrip(t *testing.T) {
	key, err := GenerateSenderKey()
	if err != nil {
		t.Fatalf("GenerateSenderKey() failed: %v", err)
	}

	plaintext := []byte("group chat message")

	ciphertext, nonce, err := EncryptGroupMessage(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptGroupMessage() failed: %v", err)
	}
	if len(nonce) != 24 {
		t.Errorf("nonce length = %d, want 24", len(nonce))
	}

	got, err := DecryptGroupMessage(key, ciphertext, nonce)
	if err != nil {
		t.Fatalf("DecryptGroupMessage() failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("DecryptGroupMessage() = %q, want %q", got, plaintext)
	}
}

func TestDecryptGroupMessage_WrongKeyFails(t *testing.T) {
	key, err := GenerateSenderKey()
	if err != nil {
		t.Fatalf("GenerateSenderKey() failed: %v", err)
	}
	otherKey, err := GenerateSenderKey()
	if err != nil {
		t.Fatalf("GenerateSenderKey() failed: %v", err)
	}

	ciphertext, nonce, err := EncryptGroupMessage(key, []byte("payload"))
	if err != nil {
		t.Fatalf("EncryptGroupMessage() failed: %v", err)
	}

	if _, err := DecryptGroupMessage(otherKey, ciphertext, nonce); err != ErrDecryptionFailed {
		t.Errorf("DecryptGroupMessage() with wrong key = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestSenderKeyDistribution_RoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	key, err := GenerateSenderKey()
	if err != nil {
		t.Fatalf("GenerateSenderKey() failed: %v", err)
	}

	bundle, err := EncryptSenderKeyFor(key, NodeId(recipient.Public))
	if err != nil {
		t.Fatalf("EncryptSenderKeyFor() failed: %v", err)
	}

	got, err := DecryptSenderKeyFrom(bundle, recipient)
	if err != nil {
		t.Fatalf("DecryptSenderKeyFrom() failed: %v", err)
	}

	if got != key {
		t.Error("recovered sender key does not match original")
	}
}

func TestDecryptSenderKeyFrom_RejectsWrongLength(t *testing.T) {
	recipient, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() failed: %v", err)
	}

	bundle, err := EncryptPairwise([]byte("not a 32 byte key"), NodeId(recipient.Public))
	if err != nil {
		t.Fatalf("EncryptPairwise() failed: %v", err)
	}

	if _, err := DecryptSenderKeyFrom(bundle, recipient); err != ErrInvalidSenderKeyLength {
		t.Errorf("DecryptSenderKeyFrom() = %v, want %v", err, ErrInvalidSenderKeyLength)
	}
}
