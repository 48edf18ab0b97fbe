package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailed is returned when an authenticated decryption fails,
// either due to tampering or a wrong key.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

// PairwiseCiphertext is the wire payload for an envelope whose `encrypted`
// flag is set: an ephemeral sender public key, a random nonce, and the
// XChaCha20-Poly1305 sealed ciphertext.
type PairwiseCiphertext struct {
	EphemeralPublicKey [32]byte
	Nonce              [chacha20poly1305.NonceSizeX]byte
	Ciphertext         []byte
}

// deriveAEADKey turns a raw X25519 shared secret into a 32-byte AEAD key via
// HKDF-SHA256, keeping the raw ECDH output out of direct cipher use.
func deriveAEADKey(shared []byte, info string) ([32]byte, error) {
	var key [32]byte
	kdf := hkdf.New(sha256.New, shared, nil, []byte(info))
	if _, err := io.ReadFull(kdf, key[:]); err != nil {
		return key, err
	}
	return key, nil
}

// EncryptPairwise encrypts plaintext for recipient using an ephemeral X25519
// key pair and XChaCha20-Poly1305. The sender's long-term identity is not
// used for the Diffie-Hellman exchange (only the ephemeral key is), so the
// recipient authenticates the payload via the envelope's Ed25519 signature,
// not via the encryption itself.
func EncryptPairwise(plaintext []byte, recipient NodeId) (*PairwiseCiphertext, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function":  "EncryptPairwise",
		"recipient": recipient.ShortString(),
	})

	recipientX, err := recipient.X25519PublicKey()
	if err != nil {
		return nil, err
	}

	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, err
	}
	var ephPub [32]byte
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	shared, err := curve25519.X25519(ephPriv[:], recipientX[:])
	if err != nil {
		ZeroBytes(ephPriv[:])
		return nil, err
	}
	key, err := deriveAEADKey(shared, "protocol-pairwise-v1")
	ZeroBytes(shared)
	ZeroBytes(ephPriv[:])
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, err
	}
	ZeroBytes(key[:])

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce[:], plaintext, nil)

	logger.WithFields(logrus.Fields{
		"plaintext_size":  len(plaintext),
		"ciphertext_size": len(ciphertext),
	}).Debug("Pairwise payload encrypted")

	return &PairwiseCiphertext{
		EphemeralPublicKey: ephPub,
		Nonce:              nonce,
		Ciphertext:         ciphertext,
	}, nil
}

// DecryptPairwise reverses EncryptPairwise using the recipient's own key
// pair to recompute the shared secret against the sender's ephemeral key.
func DecryptPairwise(ct *PairwiseCiphertext, recipient *KeyPair) ([]byte, error) {
	recipientX := recipient.X25519PrivateKey()

	shared, err := curve25519.X25519(recipientX[:], ct.EphemeralPublicKey[:])
	ZeroBytes(recipientX[:])
	if err != nil {
		return nil, err
	}
	key, err := deriveAEADKey(shared, "protocol-pairwise-v1")
	ZeroBytes(shared)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key[:])
	ZeroBytes(key[:])
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, ct.Nonce[:], ct.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
