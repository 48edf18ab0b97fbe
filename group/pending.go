package group

import (
	"time"

	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
)

// pendingMessage is a group message buffered because its sender's key had
// not yet arrived when it was received.
type pendingMessage struct {
	messageId uuid.UUID
	sender    crypto.NodeId
	payload   *envelope.GroupMessagePayload
	arrivedAt time.Time
}

// pendingStore buffers undecryptable group messages per group+sender,
// draining them once the sender's key arrives. Entries older than maxAge
// are discarded as stragglers.
type pendingStore struct {
	maxAge  time.Duration
	byGroup map[string][]pendingMessage
}

func newPendingStore(maxAge time.Duration) *pendingStore {
	return &pendingStore{maxAge: maxAge, byGroup: make(map[string][]pendingMessage)}
}

func (p *pendingStore) add(groupId string, msg pendingMessage) {
	p.byGroup[groupId] = append(p.byGroup[groupId], msg)
}

// drain removes and returns every buffered message for groupId from sender
// that is not yet older than maxAge as of now.
func (p *pendingStore) drain(groupId string, sender crypto.NodeId, now time.Time) []pendingMessage {
	queue := p.byGroup[groupId]
	if len(queue) == 0 {
		return nil
	}

	var drained []pendingMessage
	remaining := queue[:0]
	for _, m := range queue {
		if m.sender != sender {
			remaining = append(remaining, m)
			continue
		}
		if now.Sub(m.arrivedAt) > p.maxAge {
			continue // straggler, discard
		}
		drained = append(drained, m)
	}
	p.byGroup[groupId] = remaining
	return drained
}

// sweep discards stale entries across every group, independent of drain.
func (p *pendingStore) sweep(now time.Time) {
	for groupId, queue := range p.byGroup {
		remaining := queue[:0]
		for _, m := range queue {
			if now.Sub(m.arrivedAt) <= p.maxAge {
				remaining = append(remaining, m)
			}
		}
		p.byGroup[groupId] = remaining
	}
}
