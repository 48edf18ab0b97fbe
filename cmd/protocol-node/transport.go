package main

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/runtime"
	"github.com/tom-network/tomcore/transport"
)

// udpTransport is the demo transport.Transport: every send is a single UDP
// datagram resolved through an addressBook, and connectivity is tracked as
// "has sent us a datagram recently" rather than anything connection-oriented.
type udpTransport struct {
	conn      *net.UDPConn
	discovery *addressBook

	mu        sync.Mutex
	lastSeen  map[crypto.NodeId]time.Time
	staleness time.Duration
}

func newUdpTransport(conn *net.UDPConn, discovery *addressBook, staleness time.Duration) *udpTransport {
	return &udpTransport{
		conn:      conn,
		discovery: discovery,
		lastSeen:  make(map[crypto.NodeId]time.Time),
		staleness: staleness,
	}
}

// SendRaw implements transport.Transport.
func (t *udpTransport) SendRaw(target crypto.NodeId, data []byte) error {
	addr, ok := t.discovery.Lookup(target)
	if !ok {
		return fmt.Errorf("no known address for %s", target.ShortString())
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}
	if _, err := t.conn.WriteTo(data, udpAddr); err != nil {
		return fmt.Errorf("write to %s: %w", addr, err)
	}
	return nil
}

// ConnectedPeers implements transport.Transport.
func (t *udpTransport) ConnectedPeers() map[crypto.NodeId]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	out := make(map[crypto.NodeId]bool, len(t.lastSeen))
	for id, seen := range t.lastSeen {
		if now.Sub(seen) <= t.staleness {
			out[id] = true
		}
	}
	return out
}

func (t *udpTransport) markSeen(id crypto.NodeId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSeen[id] = time.Now()
}

// readLoop reads datagrams off the socket until the socket is closed. Each
// datagram is decoded once here purely to recover the sender's NodeId for
// transport-level attribution (InboundDatagram.From, address learning,
// gossip liveness); the runtime decodes it again on its own when handling
// the delivery, which is a minor redundancy this demo does not try to avoid.
func (t *udpTransport) readLoop(ex *runtime.Executor) {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			logrus.WithFields(logrus.Fields{"function": "udpTransport.readLoop", "error": err}).Info("UDP socket closed, read loop exiting")
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		env, err := envelope.Decode(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{"function": "udpTransport.readLoop", "addr": addr.String(), "error": err}).Warn("Dropping undecodable datagram")
			continue
		}

		t.discovery.Learn(env.From, addr.String())
		t.markSeen(env.From)
		ex.Deliver(transport.InboundDatagram{From: env.From, Data: data})
	}
}
