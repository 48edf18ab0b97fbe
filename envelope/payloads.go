package envelope

import (
	"github.com/tom-network/tomcore/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// AckPayload is the msgpack body of an Ack envelope.
type AckPayload struct {
	OriginalId uuid16    `msgpack:"original_id"`
	AckType    AckType   `msgpack:"ack_type"`
}

// uuid16 avoids importing uuid.UUID twice across files; both are [16]byte.
type uuid16 = [16]byte

// ReadReceiptPayload is the msgpack body of a ReadReceipt envelope.
type ReadReceiptPayload struct {
	OriginalId uuid16 `msgpack:"original_id"`
	ReadAt     int64  `msgpack:"read_at"`
}

// EncodeAckPayload serializes an AckPayload for use as an envelope's Payload.
func EncodeAckPayload(p *AckPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodeAckPayload deserializes bytes produced by EncodeAckPayload.
func DecodeAckPayload(data []byte) (*AckPayload, error) {
	var p AckPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodeReadReceiptPayload serializes a ReadReceiptPayload for use as an
// envelope's Payload.
func EncodeReadReceiptPayload(p *ReadReceiptPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodeReadReceiptPayload deserializes bytes produced by
// EncodeReadReceiptPayload.
func DecodeReadReceiptPayload(data []byte) (*ReadReceiptPayload, error) {
	var p ReadReceiptPayload
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GroupPlaintext is the MessagePack-encoded value a group Sender-Key
// ciphertext decrypts to.
type GroupPlaintext struct {
	SenderUsername string `msgpack:"sender_username"`
	Text           string `msgpack:"text"`
}

// EncryptedSenderKey is one recipient's entry in a SenderKeyDistribution
// bundle: a group Sender-Key pairwise-encrypted toward Recipient.
type EncryptedSenderKey struct {
	Recipient          crypto.NodeId          `msgpack:"recipient"`
	EphemeralPublicKey [32]byte               `msgpack:"ephemeral_public_key"`
	Nonce              [24]byte               `msgpack:"nonce"`
	Ciphertext         []byte                 `msgpack:"ciphertext"`
}

// SenderKeyDistribution is the msgpack body of a GroupSenderKeyDistribution
// envelope: one encrypted entry per intended recipient. A hub fans these out
// one entry at a time without combining, reordering, or inspecting them.
type SenderKeyDistribution struct {
	GroupId string               `msgpack:"group_id"`
	Sender  crypto.NodeId        `msgpack:"sender"`
	Epoch   uint32               `msgpack:"epoch"`
	Entries []EncryptedSenderKey `msgpack:"entries"`
}

// GroupMessagePayload is the msgpack body of a GroupMessage envelope. The
// hub fans this out inside a new Envelope addressed to each member and
// signed by the hub as forwarder; Sender/Signature let a member verify true
// authorship independent of who relayed the envelope, since the hub must
// never be able to forge a message as another member.
type GroupMessagePayload struct {
	GroupId    string           `msgpack:"group_id"`
	Sender     crypto.NodeId    `msgpack:"sender"`
	MessageId  uuid16           `msgpack:"message_id"`
	Ciphertext []byte           `msgpack:"ciphertext"`
	Nonce      []byte           `msgpack:"nonce"`
	KeyEpoch   uint32           `msgpack:"key_epoch"`
	SentAt     int64            `msgpack:"sent_at"`
	Signature  crypto.Signature `msgpack:"signature"`
}

// Sign computes and stores Signature over SigningBytes using sender's
// Ed25519 seed.
func (p *GroupMessagePayload) Sign(sender *crypto.KeyPair) error {
	sig, err := crypto.Sign(p.SigningBytes(p.MessageId, p.Sender), sender.Private)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// VerifySignature checks Signature against Sender's public key.
func (p *GroupMessagePayload) VerifySignature() (bool, error) {
	return crypto.Verify(p.SigningBytes(p.MessageId, p.Sender), p.Signature, [32]byte(p.Sender))
}

// SigningBytes is the deterministic byte sequence a group message's
// signature covers: group_id + message_id + sender_id + ciphertext + nonce
// + epoch + sent_at. It never covers plaintext, so a hub that only sees
// ciphertext can still validate message provenance.
func (p *GroupMessagePayload) SigningBytes(messageId uuid16, sender crypto.NodeId) []byte {
	var buf []byte
	buf = append(buf, []byte(p.GroupId)...)
	buf = append(buf, messageId[:]...)
	buf = append(buf, sender[:]...)
	buf = append(buf, p.Ciphertext...)
	buf = append(buf, p.Nonce...)

	epochBytes := [4]byte{byte(p.KeyEpoch >> 24), byte(p.KeyEpoch >> 16), byte(p.KeyEpoch >> 8), byte(p.KeyEpoch)}
	buf = append(buf, epochBytes[:]...)

	sentAtBytes := [8]byte{
		byte(p.SentAt >> 56), byte(p.SentAt >> 48), byte(p.SentAt >> 40), byte(p.SentAt >> 32),
		byte(p.SentAt >> 24), byte(p.SentAt >> 16), byte(p.SentAt >> 8), byte(p.SentAt),
	}
	buf = append(buf, sentAtBytes[:]...)

	return buf
}
