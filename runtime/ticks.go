package runtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/heartbeat"
	"github.com/tom-network/tomcore/role"
	"github.com/tom-network/tomcore/topology"
	"github.com/vmihailenco/msgpack/v5"
)

// TickCacheCleanup sweeps every bounded, TTL-evicting structure the runtime
// owns: the router's dedup and replay caches, the message tracker, and the
// group manager's pending-decrypt buffer. It performs no I/O and emits no
// Effects.
func (s *State) TickCacheCleanup(now time.Time) {
	s.Router.SweepCaches(now)
	s.Tracker.Cleanup()
	s.Group.SweepPending(now)
}

// TickHeartbeat re-evaluates every tracked node's liveness, reflects the
// transitions into the topology's peer status, and surfaces them as
// Events. A peer that just came back online also triggers delivery of
// whatever this node is holding for it in backup store-and-forward.
func (s *State) TickHeartbeat(now time.Time) []Effect {
	transitions := s.Heartbeat.CheckAll(now)
	var effects []Effect
	for _, tr := range transitions {
		switch tr.Kind {
		case heartbeat.Discovered:
			s.Topology.SetStatus(tr.NodeId, topology.StatusOnline)
			effects = append(effects, emitEffect(Event{Kind: EventPeerDiscovered, At: now, Peer: tr.NodeId, PeerSource: tr.Source}))
		case heartbeat.BecameStale:
			s.Topology.SetStatus(tr.NodeId, topology.StatusStale)
			effects = append(effects, emitEffect(Event{Kind: EventPeerStale, At: now, Peer: tr.NodeId}))
		case heartbeat.BecameOffline:
			s.Topology.Remove(tr.NodeId)
			s.Role.Forget(tr.NodeId)
			effects = append(effects, emitEffect(Event{Kind: EventPeerOffline, At: now, Peer: tr.NodeId}))
		case heartbeat.BecameOnline:
			s.Topology.SetStatus(tr.NodeId, topology.StatusOnline)
			effects = append(effects, emitEffect(Event{Kind: EventPeerOnline, At: now, Peer: tr.NodeId, PeerSource: tr.Source}))
			effects = append(effects, s.deliverPendingBackups(tr.NodeId, now)...)
		}
	}
	return effects
}

// deliverPendingBackups sends every backup entry held for recipient
// directly to it, now that the heartbeat tracker has observed it come back
// online, and purges the local copies. It does not attempt to notify other
// replica holders, which have no way to learn of the delivery except
// independently observing the recipient themselves or the recipient's own
// BackupQuery draining them first.
func (s *State) deliverPendingBackups(recipient crypto.NodeId, now time.Time) []Effect {
	pending := s.Backup.PendingFor(recipient, now)
	if len(pending) == 0 {
		return nil
	}
	effects := make([]Effect, 0, len(pending))
	ids := make([]uuid.UUID, 0, len(pending))
	for _, e := range pending {
		out, err := envelope.EncodeBackupDeliverPayload(&envelope.BackupDeliverPayload{
			MessageId:      e.MessageId,
			OriginalSender: e.Sender,
			Payload:        e.Payload,
		})
		if err != nil {
			continue
		}
		effects = append(effects, sendEffect(recipient, s.newEnvelope(recipient, envelope.BackupDeliver, out, now)))
		ids = append(ids, e.MessageId)
	}
	s.Backup.ConfirmDelivered(ids)
	return effects
}

// TickRoleEvaluation recomputes every known node's contribution score and
// applies promotion/demotion. A change to this node's own tier is
// broadcast to every known peer as a signed RoleAnnounce.
func (s *State) TickRoleEvaluation(now time.Time) []Effect {
	results := s.Role.EvaluateAll(now)
	var effects []Effect
	for _, r := range results {
		if r.NodeId == s.SelfId {
			effects = append(effects, emitEffect(Event{Kind: EventLocalRoleChanged, At: now, OldTier: r.OldTier, NewTier: r.NewTier, Score: r.Score}))
			effects = append(effects, s.broadcastRoleAnnounce(r.NewTier, r.Score, now)...)
			continue
		}
		kind := EventRoleDemoted
		if r.NewTier == role.Relay {
			kind = EventRolePromoted
		}
		effects = append(effects, emitEffect(Event{Kind: kind, At: now, Peer: r.NodeId, OldTier: r.OldTier, NewTier: r.NewTier, Score: r.Score}))
	}
	return effects
}

func (s *State) broadcastRoleAnnounce(tier role.Tier, score float64, now time.Time) []Effect {
	announce, err := role.NewAnnounce(s.Self, tier, score, now)
	if err != nil {
		return nil
	}
	payload, err := msgpack.Marshal(announce)
	if err != nil {
		return nil
	}
	peers := s.Topology.Snapshot()
	effects := make([]Effect, 0, len(peers))
	for id := range peers {
		effects = append(effects, sendEffect(id, s.newEnvelope(id, envelope.RoleAnnounce, payload, now)))
	}
	return effects
}

// TickBackupMaintenance expires backup entries past their TTL, emitting one
// BackupExpired Event per reaped entry.
func (s *State) TickBackupMaintenance(now time.Time) []Effect {
	expired := s.Backup.Expire(now)
	effects := make([]Effect, 0, len(expired))
	for _, id := range expired {
		effects = append(effects, emitEffect(Event{Kind: EventBackupExpired, At: now, MessageId: id}))
	}
	return effects
}

// TickShadowPing sends a HubPing to the hub of every group this node
// currently shadows, first checking whether the previous ping timed out.
func (s *State) TickShadowPing(now time.Time) []Effect {
	var effects []Effect
	for _, groupId := range s.Group.ShadowedGroups() {
		effects = append(effects, s.HandleShadowPingTimeout(groupId, now)...)

		info, ok := s.Group.Group(groupId)
		if !ok {
			continue
		}
		payload, err := envelope.EncodeGroupHubPingPayload(&envelope.GroupHubPingPayload{GroupId: groupId})
		if err != nil {
			continue
		}
		effects = append(effects, sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupHubPing, payload, now)))
		s.Group.RecordPingSent(groupId, now)
	}
	return effects
}

// HandleShadowPingTimeout evaluates whether groupId's outstanding shadow
// ping has exceeded the configured timeout and, if its promotion
// thresholds are now crossed, performs the shadow-to-hub promotion and
// broadcasts HubMigration.
func (s *State) HandleShadowPingTimeout(groupId string, now time.Time) []Effect {
	if !s.Group.CheckPingTimeout(groupId, s.Config.ShadowPingTimeout, now) {
		return nil
	}
	return s.maybePromoteShadow(groupId, now)
}
