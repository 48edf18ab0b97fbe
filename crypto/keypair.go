package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/sirupsen/logrus"
)

// KeyPair represents a node's long-term Ed25519 identity.
//
// Public is the NodeId: the raw Ed25519 public key, used both as the node's
// address and, after conversion, as its X25519 Diffie-Hellman public key.
// Private is the 32-byte Ed25519 seed (not the expanded 64-byte signing key).
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random Ed25519 identity.
func GenerateKeyPair() (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"package":  "crypto",
	})

	logger.Debug("Function entry: generating new node identity")

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":      err.Error(),
			"error_type": "key_generation_failed",
		}).Error("Failed to generate node identity")
		return nil, err
	}

	keyPair := &KeyPair{}
	copy(keyPair.Public[:], pub)
	copy(keyPair.Private[:], priv.Seed())

	logger.WithFields(logrus.Fields{
		"node_id": NodeId(keyPair.Public).ShortString(),
	}).Info("Node identity generated successfully")

	return keyPair, nil
}

// FromSeed reconstructs a key pair from an existing 32-byte Ed25519 seed.
func FromSeed(seed [32]byte) (*KeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "FromSeed",
		"package":  "crypto",
	})

	if isZeroKey(seed) {
		logger.Error("Seed validation failed: seed cannot be all zeros")
		return nil, errors.New("invalid seed: all zeros")
	}

	priv := ed25519.NewKeyFromSeed(seed[:])
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("unexpected public key type derived from seed")
	}

	keyPair := &KeyPair{Private: seed}
	copy(keyPair.Public[:], pub)

	logger.WithFields(logrus.Fields{
		"node_id": NodeId(keyPair.Public).ShortString(),
	}).Debug("Node identity restored from seed")

	return keyPair, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
