package crypto

import (
	"crypto/sha512"
	"errors"

	"filippo.io/edwards25519"
)

var (
	errInvalidNodeIdLength = errors.New("crypto: node id must be 32 bytes")
	errInvalidEdwardsPoint = errors.New("crypto: not a valid Ed25519 point")
)

// seedToX25519Private converts an Ed25519 seed to the clamped X25519 scalar
// that the corresponding signing key would use for Diffie-Hellman, per
// RFC 8032 §5.1.5: hash the seed, clamp the low 32 bytes.
func seedToX25519Private(seed [32]byte) [32]byte {
	h := sha512.Sum512(seed[:])
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	var out [32]byte
	copy(out[:], h[:32])
	return out
}

// publicKeyToX25519 converts an Ed25519 public key (an Edwards curve point)
// to its Curve25519 (Montgomery) representation for Diffie-Hellman.
func publicKeyToX25519(pub [32]byte) ([32]byte, error) {
	var out [32]byte

	point, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return out, errInvalidEdwardsPoint
	}

	copy(out[:], point.BytesMontgomery())
	return out, nil
}

// X25519PrivateKey returns the X25519 Diffie-Hellman private scalar derived
// from this key pair's Ed25519 seed.
func (kp *KeyPair) X25519PrivateKey() [32]byte {
	return seedToX25519Private(kp.Private)
}

// X25519PublicKey returns the X25519 Diffie-Hellman public key derived from
// this NodeId's Ed25519 public key.
func (n NodeId) X25519PublicKey() ([32]byte, error) {
	return publicKeyToX25519([32]byte(n))
}
