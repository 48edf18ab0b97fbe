// Package runtime wires every component package into the single
// single-threaded state machine a node runs: incoming bytes and commands
// are handled purely (handlers never perform I/O), producing an ordered
// list of Effects for an Executor to carry out. One State owns every
// subsystem but funnels all mutation through one goroutine's iteration
// loop.
package runtime

import (
	"time"

	"github.com/tom-network/tomcore/backup"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/group"
	"github.com/tom-network/tomcore/heartbeat"
	"github.com/tom-network/tomcore/hub"
	"github.com/tom-network/tomcore/protocol"
	"github.com/tom-network/tomcore/role"
	"github.com/tom-network/tomcore/router"
	"github.com/tom-network/tomcore/topology"
	"github.com/tom-network/tomcore/tracker"
)

// pendingInvite is a GroupInvite this node has received but not yet
// accepted or declined.
type pendingInvite struct {
	GroupId   string
	GroupName string
	HubId     crypto.NodeId
	Inviter   crypto.NodeId
}

// State is the complete in-memory state of one running node. Every field is
// owned exclusively by the runtime: component packages never lock against
// each other because only the runtime's single call path ever mutates them.
type State struct {
	Self   *crypto.KeyPair
	SelfId crypto.NodeId
	Config protocol.Config

	Username string

	Tracker   *tracker.Tracker
	Router    *router.Router
	Topology  *topology.Topology
	Heartbeat *heartbeat.Tracker
	Role      *role.Manager
	Group     *group.Manager
	Hub       *hub.Hub
	Backup    *backup.Coordinator

	invites map[string]pendingInvite

	lastCacheCleanup   time.Time
	lastHeartbeatCheck time.Time
	lastRoleEval       time.Time
	lastBackupSweep    time.Time
}

// New constructs a State for the given long-term identity and config.
func New(self *crypto.KeyPair, username string, cfg protocol.Config) *State {
	selfId := crypto.NodeId(self.Public)
	tr := tracker.New()

	return &State{
		Self:     self,
		SelfId:   selfId,
		Config:   cfg,
		Username: username,

		Tracker:   tr,
		Router:    router.New(self, tr),
		Topology:  topology.New(selfId),
		Heartbeat: heartbeat.New(cfg.StaleThreshold, cfg.OfflineThreshold),
		Role:      role.New(cfg.RoleDecayPerHour, cfg.PromotionThreshold, cfg.DemotionThreshold, cfg.RoleAnnounceThrottle),
		Group:     group.New(self, cfg.PendingDecryptBufferAge),
		Hub:       hub.New(selfId),
		Backup:    backup.New(cfg.BackupReplicationFactor, cfg.BackupEntryTTL, backup.DefaultCapacity),

		invites: make(map[string]pendingInvite),
	}
}

// onlinePeers returns every peer the topology currently believes is
// online, used as the candidate set for backup replica selection.
func (s *State) onlinePeers() []crypto.NodeId {
	var out []crypto.NodeId
	for _, p := range s.Topology.Snapshot() {
		if p.Status == topology.StatusOnline {
			out = append(out, p.NodeId)
		}
	}
	return out
}
