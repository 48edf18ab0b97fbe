package backup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tom-network/tomcore/crypto"
)

func idFor(b byte) crypto.NodeId {
	var id crypto.NodeId
	id[0] = b
	return id
}

func TestStoreSelectsBoundedReplicas(t *testing.T) {
	c := New(2, time.Hour, 100)
	now := time.Now()
	recipient := idFor(1)
	candidates := []crypto.NodeId{idFor(9), idFor(5), idFor(7)}

	res := c.Store(uuid.New(), recipient, idFor(0xAA), []byte("payload"), candidates, now)
	assert.Len(t, res.Replicate, 2)
	assert.Equal(t, 1, c.Len())
}

func TestPendingForAndConfirmDelivered(t *testing.T) {
	c := New(3, time.Hour, 100)
	now := time.Now()
	recipient := idFor(1)
	id1 := uuid.New()
	id2 := uuid.New()

	c.OnReplicate(id1, recipient, idFor(0xAA), []byte("a"), time.Hour, now)
	c.OnReplicate(id2, recipient, idFor(0xAA), []byte("b"), time.Hour, now.Add(time.Second))

	pending := c.PendingFor(recipient, now.Add(2*time.Second))
	assert.Len(t, pending, 2)
	assert.Equal(t, id1, pending[0].MessageId)

	c.ConfirmDelivered([]uuid.UUID{id1, id2})
	assert.Empty(t, c.PendingFor(recipient, now))
}

func TestExpireRemovesPastTTL(t *testing.T) {
	c := New(3, time.Minute, 100)
	now := time.Now()
	id := uuid.New()
	c.OnReplicate(id, idFor(2), idFor(0xAA), []byte("x"), time.Minute, now)

	expired := c.Expire(now.Add(2 * time.Minute))
	assert.Equal(t, []uuid.UUID{id}, expired)
	assert.Equal(t, 0, c.Len())
}

func TestStoreEvictsOldestAtCapacity(t *testing.T) {
	c := New(1, time.Hour, 1)
	now := time.Now()
	c.Store(uuid.New(), idFor(1), idFor(0xAA), []byte("a"), nil, now)
	c.Store(uuid.New(), idFor(1), idFor(0xAA), []byte("b"), nil, now.Add(time.Second))
	assert.Equal(t, 1, c.Len())
}
