package envelope

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrViaTooDeep is returned by Validate when Via exceeds MaxRelayDepth.
var ErrViaTooDeep = errors.New("envelope: via exceeds max relay depth")

// Encode serializes the envelope with the self-describing MessagePack codec.
// Unknown fields are dropped on Decode by an older reader, and fields added
// by a newer writer default on read, giving additive wire evolution.
func (e *Envelope) Encode() ([]byte, error) {
	return msgpack.Marshal(e)
}

// Decode deserializes bytes produced by Encode into e.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Validate checks structural invariants that must hold before an envelope
// is accepted for delivery or forwarding, independent of signature
// verification (see Envelope.Verify).
func (e *Envelope) Validate() error {
	if len(e.Via) > MaxRelayDepth {
		return ErrViaTooDeep
	}
	return nil
}
