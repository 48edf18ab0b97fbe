package envelope

import (
	"github.com/tom-network/tomcore/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// PaddingSizes are the standard plaintext-length tiers a chat payload's
// text is padded to before encryption, preventing a passive observer from
// inferring message length from ciphertext size.
var PaddingSizes = []int{256, 1024, 4096}

// PadText pads text to the smallest tier in PaddingSizes that holds it,
// prefixed with its true length so UnpadText can recover the original. Text
// longer than every tier is returned unpadded.
func PadText(text string) []byte {
	raw := []byte(text)
	for _, size := range PaddingSizes {
		if len(raw)+4 <= size {
			out := make([]byte, size)
			lengthPrefix(out, len(raw))
			copy(out[4:], raw)
			return out
		}
	}
	out := make([]byte, len(raw)+4)
	lengthPrefix(out, len(raw))
	copy(out[4:], raw)
	return out
}

// UnpadText reverses PadText.
func UnpadText(padded []byte) string {
	if len(padded) < 4 {
		return ""
	}
	n := int(padded[0])<<24 | int(padded[1])<<16 | int(padded[2])<<8 | int(padded[3])
	if n < 0 || n > len(padded)-4 {
		return ""
	}
	return string(padded[4 : 4+n])
}

func lengthPrefix(out []byte, n int) {
	out[0] = byte(n >> 24)
	out[1] = byte(n >> 16)
	out[2] = byte(n >> 8)
	out[3] = byte(n)
}

// ChatPayload is the msgpack body of a Chat envelope before any pairwise
// encryption is applied: Padded holds PadText's output.
type ChatPayload struct {
	Padded []byte `msgpack:"padded"`
}

// EncodeChatPayload serializes a ChatPayload.
func EncodeChatPayload(p *ChatPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodeChatPayload deserializes bytes produced by EncodeChatPayload.
func DecodeChatPayload(data []byte) (*ChatPayload, error) {
	var p ChatPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodePairwiseCiphertext serializes a pairwise-encrypted ciphertext for
// use as an Encrypted envelope's Payload.
func EncodePairwiseCiphertext(ct *crypto.PairwiseCiphertext) ([]byte, error) {
	return msgpack.Marshal(ct)
}

// DecodePairwiseCiphertext deserializes bytes produced by
// EncodePairwiseCiphertext.
func DecodePairwiseCiphertext(data []byte) (*crypto.PairwiseCiphertext, error) {
	var ct crypto.PairwiseCiphertext
	if err := msgpack.Unmarshal(data, &ct); err != nil {
		return nil, err
	}
	return &ct, nil
}
