package envelope

import (
	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/vmihailenco/msgpack/v5"
)

// BackupStorePayload asks a peer (normally a relay-tier node) to hold an
// encrypted message for an offline Recipient and replicate it further.
type BackupStorePayload struct {
	MessageId uuid.UUID     `msgpack:"message_id"`
	Recipient crypto.NodeId `msgpack:"recipient"`
	Sender    crypto.NodeId `msgpack:"sender"`
	Payload   []byte        `msgpack:"payload"`
}

// BackupReplicatePayload is one replica assignment sent by a backup holder
// to another peer it selected to also hold the entry.
type BackupReplicatePayload struct {
	MessageId uuid.UUID     `msgpack:"message_id"`
	Recipient crypto.NodeId `msgpack:"recipient"`
	Sender    crypto.NodeId `msgpack:"sender"`
	Payload   []byte        `msgpack:"payload"`
	TTL       int64         `msgpack:"ttl"`
}

// BackupReplicateAckPayload acknowledges a BackupReplicate was stored.
type BackupReplicateAckPayload struct {
	MessageId uuid.UUID `msgpack:"message_id"`
}

// BackupDeliverPayload carries a stored message straight to its original
// recipient once a holder observes it come back online.
type BackupDeliverPayload struct {
	MessageId      uuid.UUID     `msgpack:"message_id"`
	OriginalSender crypto.NodeId `msgpack:"original_sender"`
	Payload        []byte        `msgpack:"payload"`
}

// BackupQueryPayload is a recipient's pull request to a known peer asking
// whether it holds any stored messages on the recipient's behalf.
type BackupQueryPayload struct {
	Recipient crypto.NodeId `msgpack:"recipient"`
}

// BackupEntryWire is one stored entry as carried in a BackupQueryResponse.
type BackupEntryWire struct {
	MessageId uuid.UUID `msgpack:"message_id"`
	Payload   []byte    `msgpack:"payload"`
}

// BackupQueryResponsePayload answers a BackupQuery with every pending entry
// the responder holds for the querying recipient.
type BackupQueryResponsePayload struct {
	Entries []BackupEntryWire `msgpack:"entries"`
}

// BackupConfirmDeliveryPayload tells a holder that the listed message ids
// have now been delivered and may be purged.
type BackupConfirmDeliveryPayload struct {
	MessageIds []uuid.UUID `msgpack:"message_ids"`
}

func EncodeBackupStorePayload(p *BackupStorePayload) ([]byte, error) { return msgpack.Marshal(p) }
func DecodeBackupStorePayload(d []byte) (*BackupStorePayload, error) {
	var p BackupStorePayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupReplicatePayload(p *BackupReplicatePayload) ([]byte, error) { return msgpack.Marshal(p) }
func DecodeBackupReplicatePayload(d []byte) (*BackupReplicatePayload, error) {
	var p BackupReplicatePayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupReplicateAckPayload(p *BackupReplicateAckPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}
func DecodeBackupReplicateAckPayload(d []byte) (*BackupReplicateAckPayload, error) {
	var p BackupReplicateAckPayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupDeliverPayload(p *BackupDeliverPayload) ([]byte, error) { return msgpack.Marshal(p) }
func DecodeBackupDeliverPayload(d []byte) (*BackupDeliverPayload, error) {
	var p BackupDeliverPayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupQueryPayload(p *BackupQueryPayload) ([]byte, error) { return msgpack.Marshal(p) }
func DecodeBackupQueryPayload(d []byte) (*BackupQueryPayload, error) {
	var p BackupQueryPayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupQueryResponsePayload(p *BackupQueryResponsePayload) ([]byte, error) {
	return msgpack.Marshal(p)
}
func DecodeBackupQueryResponsePayload(d []byte) (*BackupQueryResponsePayload, error) {
	var p BackupQueryResponsePayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func EncodeBackupConfirmDeliveryPayload(p *BackupConfirmDeliveryPayload) ([]byte, error) {
	return msgpack.Marshal(p)
}
func DecodeBackupConfirmDeliveryPayload(d []byte) (*BackupConfirmDeliveryPayload, error) {
	var p BackupConfirmDeliveryPayload
	if err := msgpack.Unmarshal(d, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
