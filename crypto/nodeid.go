package crypto

import "encoding/hex"

// NodeId identifies a node on the network. It is the node's raw Ed25519
// public key, used both as an identity and, through every envelope's `from`
// and `to` fields, as the node's address.
type NodeId [32]byte

// String returns the lowercase hex encoding of the NodeId.
func (n NodeId) String() string {
	return hex.EncodeToString(n[:])
}

// ShortString returns the first 8 bytes hex-encoded, safe for log lines.
func (n NodeId) ShortString() string {
	return hex.EncodeToString(n[:8])
}

// IsZero reports whether the NodeId is the zero value.
func (n NodeId) IsZero() bool {
	for _, b := range n {
		if b != 0 {
			return false
		}
	}
	return true
}

// NodeIdFromSlice copies a byte slice into a NodeId, erroring on wrong length.
func NodeIdFromSlice(b []byte) (NodeId, error) {
	var id NodeId
	if len(b) != 32 {
		return id, errInvalidNodeIdLength
	}
	copy(id[:], b)
	return id, nil
}
