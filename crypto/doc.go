// Package crypto implements this node's cryptographic primitives.
//
// A node's identity is a single Ed25519 key pair (see [KeyPair] in
// keypair.go). The public half doubles as the node's address (see [NodeId]
// in nodeid.go) and, after format conversion, as an X25519 public key for
// pairwise Diffie-Hellman (x25519.go). Every wire envelope is signed with
// the sender's Ed25519 key (ed25519.go); payloads addressed to a single peer
// are sealed with ephemeral X25519 key agreement and XChaCha20-Poly1305
// (pairwise.go), while group payloads are sealed under a pre-shared,
// per-member Sender-Key using the same AEAD (groupkey.go).
//
// # Identity and key agreement
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("node id:", crypto.NodeId(keys.Public).String())
//
// A single Ed25519 seed serves both signing and Diffie-Hellman: the seed is
// hashed and clamped into an X25519 scalar (RFC 8032 §5.1.5), and a peer's
// Ed25519 public key (an Edwards point) is converted to its Montgomery
// u-coordinate for the same exchange. This avoids shipping a second key pair
// per node at the cost of a conversion step on every pairwise operation.
//
// # Pairwise encryption
//
//	ct, err := crypto.EncryptPairwise(plaintext, recipientNodeId)
//	plaintext, err := crypto.DecryptPairwise(ct, recipientKeyPair)
//
// Each call generates a fresh ephemeral X25519 key pair; the shared secret
// never touches the node's long-term identity key, and the envelope's
// Ed25519 signature (not the pairwise encryption itself) is what lets the
// recipient authenticate the sender.
//
// # Group Sender-Key encryption
//
//	key, err := crypto.GenerateSenderKey()
//	ciphertext, nonce, err := crypto.EncryptGroupMessage(key, plaintext)
//	plaintext, err := crypto.DecryptGroupMessage(key, ciphertext, nonce)
//
// A Sender-Key is distributed to other group members individually via
// EncryptSenderKeyFor/DecryptSenderKeyFrom (themselves built on pairwise
// encryption). A group hub relays Sender-Key-encrypted traffic without ever
// holding a Sender-Key itself.
//
// # Secure memory handling
//
// Intermediate key material (ephemeral private scalars, raw ECDH outputs,
// derived AEAD keys) is wiped immediately after use via [ZeroBytes], which
// performs a constant-time self-XOR that the compiler cannot optimize away.
//
//	defer crypto.WipeKeyPair(keyPair)
//
// # Deterministic testing
//
// Components outside this package that need reproducible timestamps use the
// injectable [TimeProvider] interface defined in time_provider.go rather than
// calling time.Now directly.
package crypto
