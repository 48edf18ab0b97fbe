package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/protocol"
	"github.com/tom-network/tomcore/topology"
)

func TestSaveLoadRoundTripsIdentityAndPeers(t *testing.T) {
	self, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	cfg := protocol.DefaultConfig()
	st := New(self, "alice", cfg)

	peer := peerId(1)
	now := time.Now()
	st.Topology.Upsert(topology.PeerInfo{NodeId: peer, Status: topology.StatusOnline, LastSeen: now})

	data, err := st.Save(now)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	loaded, groups, err := Load(data, cfg)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, st.SelfId, loaded.SelfId)
	assert.Equal(t, "alice", loaded.Username)

	snapshot := loaded.Topology.Snapshot()
	require.Len(t, snapshot, 1)
	restored, ok := snapshot[peer]
	require.True(t, ok)
	assert.Equal(t, topology.StatusOffline, restored.Status, "restored peers start offline until liveness is re-established")
}

func TestSaveLoadRoundTripsGroupMemberships(t *testing.T) {
	self, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	cfg := protocol.DefaultConfig()
	st := New(self, "bob", cfg)

	now := time.Now()
	_, _, err = st.Group.CreateGroup("g1", st.SelfId, now)
	require.NoError(t, err)

	data, err := st.Save(now)
	require.NoError(t, err)

	_, groups, err := Load(data, cfg)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g1", groups[0].GroupId)
	assert.Equal(t, st.SelfId, groups[0].HubId)
}

func TestLoadRejectsMalformedData(t *testing.T) {
	_, _, err := Load([]byte("not msgpack"), protocol.DefaultConfig())
	assert.Error(t, err)
}
