package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/tom-network/tomcore/crypto"
)

// ErrInvalidSignature is returned by Verify when an envelope's signature
// does not validate against From's public key.
var ErrInvalidSignature = errors.New("envelope: invalid signature")

// SigningBytes produces the deterministic byte sequence an envelope's
// Signature is computed over: every field except Signature itself,
// concatenated in a fixed, length-prefixed order so no two distinct
// envelopes can ever produce the same signing bytes.
func (e *Envelope) SigningBytes() []byte {
	var buf bytes.Buffer

	buf.Write(e.Id[:])
	buf.Write(e.From[:])
	buf.Write(e.To[:])

	binary.Write(&buf, binary.BigEndian, uint32(len(e.Via)))
	for _, hop := range e.Via {
		buf.Write(hop[:])
	}

	buf.WriteByte(byte(e.MsgType))

	binary.Write(&buf, binary.BigEndian, uint32(len(e.Payload)))
	buf.Write(e.Payload)

	if e.Encrypted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	binary.Write(&buf, binary.BigEndian, e.Timestamp)

	binary.Write(&buf, binary.BigEndian, uint32(len(e.HopTimestamps)))
	for _, ts := range e.HopTimestamps {
		binary.Write(&buf, binary.BigEndian, ts)
	}

	return buf.Bytes()
}

// Sign computes and stores e.Signature using sender's Ed25519 seed. From
// must already equal the NodeId derived from sender's public key.
func (e *Envelope) Sign(sender *crypto.KeyPair) error {
	sig, err := crypto.Sign(e.SigningBytes(), sender.Private)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify checks e.Signature against From's public key, treating From as the
// Ed25519 public key per the data model (NodeId doubles as identity).
func (e *Envelope) Verify() (bool, error) {
	return crypto.Verify(e.SigningBytes(), e.Signature, [32]byte(e.From))
}
