// Package tomcore implements a serverless, end-to-end encrypted peer-to-peer
// messaging protocol: pairwise chat between nodes identified by their
// long-term Ed25519 public key, group chat coordinated by an elected hub
// with shadow-candidate failover, gossip-based liveness tracking and relay
// role promotion, and store-and-forward delivery for recipients who are
// offline when a message is sent.
//
// The protocol logic lives in runtime as a pure state machine: State's
// handlers never perform I/O, they only transform state and return Effects
// describing what the caller should do (send bytes, deliver a decoded
// message to the application, emit a notification event, persist a backup
// copy). Executor is the reference driver that carries those effects out on
// a single goroutine against a concrete transport.Transport.
//
// cmd/protocol-node is a runnable demonstration binary wiring a UDP
// transport.Transport to the runtime.
package tomcore
