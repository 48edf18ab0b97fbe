// Package limits defines the size ceilings validated at the two points
// payload size actually matters: a locally originated chat message before
// it is padded and encrypted, and a raw datagram before it is handed to
// the envelope decoder.
//
// # Message Size Hierarchy
//
//   - MaxPlaintextMessage (1372 bytes): the largest chat text accepted from
//     the application, checked by handleSendMessage before padding.
//
//   - MaxEncryptedMessage: the largest padded-plus-encrypted Chat payload,
//     derived from the largest padding tier plus PairwiseCiphertextOverhead.
//
//   - MaxStorageMessage (16384 bytes): the ceiling ValidateStorageMessage
//     applies to a store-and-forward payload. The backup coordinator does
//     not call it and stores payloads of any size.
//
//   - MaxDatagramSize (1MB): the absolute ceiling for any inbound datagram,
//     checked before the msgpack decoder ever sees it, bounding memory use
//     against a malicious or malformed sender.
//
// # Usage
//
//	if err := limits.ValidatePlaintextMessage([]byte(text)); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
package limits
