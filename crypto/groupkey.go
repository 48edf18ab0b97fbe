package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidSenderKeyLength is returned when a decrypted Sender-Key bundle
// does not carry exactly 32 bytes of key material.
var ErrInvalidSenderKeyLength = errors.New("crypto: sender key must be 32 bytes")

// SenderKey is a per-member symmetric key used to encrypt that member's
// outbound messages within a single group (see crypto/groupkey.go callers
// in package group). It is distributed to other members via pairwise
// encryption, never sent in the clear.
type SenderKey [32]byte

// GenerateSenderKey creates a new random group Sender-Key.
func GenerateSenderKey() (SenderKey, error) {
	var key SenderKey
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// EncryptGroupMessage seals plaintext under the given Sender-Key using
// XChaCha20-Poly1305 with a fresh random 24-byte nonce. The ciphertext and
// nonce are both carried on the wire; the AEAD tag protects against
// tampering but the group hub, which only relays, never holds the key.
func EncryptGroupMessage(key SenderKey, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// DecryptGroupMessage opens a ciphertext produced by EncryptGroupMessage.
func DecryptGroupMessage(key SenderKey, ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptSenderKeyFor pairwise-encrypts a Sender-Key for distribution to a
// single recipient, matching the bundle format GroupSenderKeyDistribution
// carries on the wire.
func EncryptSenderKeyFor(key SenderKey, recipient NodeId) (*PairwiseCiphertext, error) {
	return EncryptPairwise(key[:], recipient)
}

// DecryptSenderKeyFrom reverses EncryptSenderKeyFor and validates the
// recovered key is exactly 32 bytes.
func DecryptSenderKeyFrom(ct *PairwiseCiphertext, self *KeyPair) (SenderKey, error) {
	var key SenderKey
	plaintext, err := DecryptPairwise(ct, self)
	if err != nil {
		return key, err
	}
	if len(plaintext) != 32 {
		return key, ErrInvalidSenderKeyLength
	}
	copy(key[:], plaintext)
	return key, nil
}
