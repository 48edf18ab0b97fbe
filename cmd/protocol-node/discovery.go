package main

import (
	"sync"

	"github.com/tom-network/tomcore/crypto"
)

// addressBook is a concurrency-safe NodeId -> "host:port" map, the
// transport.Discovery this binary's transport resolves sends through.
// Addresses are learned from bootstrap flags and opportunistically from
// every inbound datagram's source, so a peer that rebinds its UDP socket is
// still reachable on the next send.
type addressBook struct {
	mu   sync.RWMutex
	byId map[crypto.NodeId]string
}

func newAddressBook() *addressBook {
	return &addressBook{byId: make(map[crypto.NodeId]string)}
}

// Lookup implements transport.Discovery.
func (a *addressBook) Lookup(id crypto.NodeId) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	addr, ok := a.byId[id]
	return addr, ok
}

// Learn records or updates the address a node is reachable at.
func (a *addressBook) Learn(id crypto.NodeId, addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byId[id] = addr
}
