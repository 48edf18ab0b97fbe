package transport

import (
	"errors"
	"sync"

	"github.com/tom-network/tomcore/crypto"
)

// ErrRecordingSendFailure is returned by RecordingTransport.SendRaw when the
// test has configured a target to fail, exercising the backup
// store-and-forward fallback in the runtime Executor's send path.
var ErrRecordingSendFailure = errors.New("transport: recording transport configured to fail this target")

// SentDatagram is one call RecordingTransport.SendRaw recorded.
type SentDatagram struct {
	Target crypto.NodeId
	Data   []byte
}

// RecordingTransport is a Transport fake that queues every send instead of
// performing network I/O, for runtime tests to assert on. Safe for
// concurrent use.
type RecordingTransport struct {
	mu        sync.Mutex
	sent      []SentDatagram
	connected map[crypto.NodeId]bool
	failing   map[crypto.NodeId]bool
}

// NewRecordingTransport creates an empty RecordingTransport.
func NewRecordingTransport() *RecordingTransport {
	return &RecordingTransport{
		connected: make(map[crypto.NodeId]bool),
		failing:   make(map[crypto.NodeId]bool),
	}
}

// SendRaw records the send and returns an error if target was marked
// failing via FailTarget.
func (r *RecordingTransport) SendRaw(target crypto.NodeId, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing[target] {
		return ErrRecordingSendFailure
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	r.sent = append(r.sent, SentDatagram{Target: target, Data: cp})
	return nil
}

// ConnectedPeers returns the configured connected-peer set.
func (r *RecordingTransport) ConnectedPeers() map[crypto.NodeId]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[crypto.NodeId]bool, len(r.connected))
	for id := range r.connected {
		out[id] = true
	}
	return out
}

// SetConnected marks peer as connected (or not) for ConnectedPeers to report.
func (r *RecordingTransport) SetConnected(peer crypto.NodeId, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if connected {
		r.connected[peer] = true
	} else {
		delete(r.connected, peer)
	}
}

// FailTarget configures every future SendRaw to target to fail until
// cleared with FailTarget(target, false).
func (r *RecordingTransport) FailTarget(target crypto.NodeId, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fail {
		r.failing[target] = true
	} else {
		delete(r.failing, target)
	}
}

// Sent returns a copy of every datagram recorded so far, in send order.
func (r *RecordingTransport) Sent() []SentDatagram {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SentDatagram, len(r.sent))
	copy(out, r.sent)
	return out
}

// Reset clears the recorded send history without touching connected/failing
// configuration.
func (r *RecordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// RecordingDiscovery is a Discovery fake backed by a plain map, letting
// tests configure lookups without a real address-resolution service.
type RecordingDiscovery struct {
	mu        sync.Mutex
	addresses map[crypto.NodeId]string
}

// NewRecordingDiscovery creates an empty RecordingDiscovery.
func NewRecordingDiscovery() *RecordingDiscovery {
	return &RecordingDiscovery{addresses: make(map[crypto.NodeId]string)}
}

// Set records the address to return for id's future Lookup calls.
func (d *RecordingDiscovery) Set(id crypto.NodeId, addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses[id] = addr
}

// Lookup implements Discovery.
func (d *RecordingDiscovery) Lookup(id crypto.NodeId) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.addresses[id]
	return addr, ok
}
