package group

import (
	"github.com/tom-network/tomcore/envelope"
	"github.com/vmihailenco/msgpack/v5"
)

func envelopePlaintext(senderUsername, text string) ([]byte, error) {
	return msgpack.Marshal(&envelope.GroupPlaintext{SenderUsername: senderUsername, Text: text})
}

func decodePlaintext(data []byte) (*envelope.GroupPlaintext, error) {
	var p envelope.GroupPlaintext
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
