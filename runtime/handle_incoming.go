package runtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/group"
	"github.com/tom-network/tomcore/heartbeat"
	"github.com/tom-network/tomcore/hub"
	"github.com/tom-network/tomcore/limits"
	"github.com/tom-network/tomcore/role"
	"github.com/tom-network/tomcore/router"
	"github.com/tom-network/tomcore/topology"
	"github.com/vmihailenco/msgpack/v5"
)

// HandleIncomingBytes decodes and routes one inbound datagram, returning
// every Effect the Executor must carry out. It performs no I/O itself:
// decoding, routing, and application-level dispatch are all pure functions
// of State and the received bytes.
func (s *State) HandleIncomingBytes(data []byte, from crypto.NodeId, now time.Time) []Effect {
	if err := limits.ValidateDatagram(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "State.HandleIncomingBytes",
			"from":     from.ShortString(),
		}).WithError(err).Debug("Dropping oversized datagram")
		return nil
	}

	env, err := envelope.Decode(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "State.HandleIncomingBytes",
			"from":     from.ShortString(),
		}).WithError(err).Debug("Dropping malformed envelope")
		return nil
	}

	decision := s.Router.Route(env, now)

	switch decision.Kind {
	case router.ActionReject:
		return []Effect{emitEffect(Event{
			Kind:         EventMessageRejected,
			At:           now,
			Peer:         env.From,
			RejectReason: string(decision.RejectReason),
		})}

	case router.ActionDrop, router.ActionAck, router.ActionReadReceipt:
		// Duplicate envelope or ACK/read-receipt already applied by the
		// router's own tracker bookkeeping; nothing further to do.
		return nil

	case router.ActionForward:
		s.Role.RecordRelaySuccess(s.SelfId, decision.Forward.Activity.Bytes, now)
		effects := []Effect{sendEffect(decision.Forward.NextHop, decision.Forward.Envelope)}
		effects = append(effects, sendEffect(firstHop(decision.Forward.RelayAck.Via, from), decision.Forward.RelayAck))
		effects = append(effects, emitEffect(Event{Kind: EventForwarded, At: now, Peer: env.From}))
		return effects

	case router.ActionDeliver:
		s.Heartbeat.RecordActivity(env.From, now, heartbeat.SourceDirect)
		effects := s.dispatchDelivered(env, now)
		effects = append(effects, sendEffect(firstHop(decision.Deliver.Ack.Via, from), decision.Deliver.Ack))
		return effects
	}
	return nil
}

// firstHop returns via's first hop if present, else fallback (the
// transport-adjacent peer this datagram actually arrived from).
func firstHop(via []crypto.NodeId, fallback crypto.NodeId) crypto.NodeId {
	if len(via) > 0 {
		return via[0]
	}
	return fallback
}

// dispatchDelivered handles the application-level semantics of one envelope
// addressed to this node, after the router has already deduplicated,
// verified, and acknowledged it.
func (s *State) dispatchDelivered(env *envelope.Envelope, now time.Time) []Effect {
	switch env.MsgType {
	case envelope.Chat:
		return s.handleChat(env, now)
	case envelope.Heartbeat:
		return nil // activity already recorded by the caller
	case envelope.PeerAnnounce:
		return s.handlePeerAnnounce(env, now)
	case envelope.RoleAnnounce:
		return s.handleRoleAnnounce(env, now)

	case envelope.GroupCreate:
		return s.handleGroupCreate(env, now)
	case envelope.GroupCreated:
		return s.handleGroupCreated(env, now)
	case envelope.GroupInvite:
		return s.handleGroupInvite(env, now)
	case envelope.GroupJoin:
		return s.handleGroupJoin(env, now)
	case envelope.GroupSync:
		return s.handleGroupSync(env, now)
	case envelope.GroupMessage:
		return s.handleGroupMessage(env, now)
	case envelope.GroupLeave:
		return s.handleGroupLeave(env, now)
	case envelope.GroupMemberJoined:
		return s.handleGroupMemberJoined(env, now)
	case envelope.GroupMemberLeft:
		return s.handleGroupMemberLeft(env, now)
	case envelope.GroupSenderKeyDistribution:
		return s.handleSenderKeyDistribution(env, now)
	case envelope.GroupHubPing:
		return s.handleHubPing(env, now)
	case envelope.GroupHubPong:
		return s.handleHubPong(env, now)
	case envelope.GroupHubUnreachable:
		return s.handleHubUnreachable(env, now)
	case envelope.GroupKick:
		return s.handleGroupKick(env, now)
	case envelope.GroupRoleChange:
		return s.handleGroupRoleChange(env, now)
	case envelope.GroupHubMigration:
		return s.handleHubMigration(env, now)
	case envelope.GroupHubShadowSync:
		return s.handleHubShadowSync(env, now)
	case envelope.GroupCandidateAssigned:
		return s.handleCandidateAssigned(env, now)

	case envelope.BackupStore:
		return s.handleBackupStore(env, now)
	case envelope.BackupDeliver:
		return s.handleBackupDeliver(env, now)
	case envelope.BackupReplicate:
		return s.handleBackupReplicate(env, now)
	case envelope.BackupReplicateAck:
		return nil // telemetry-only; the coordinator doesn't track ack counts
	case envelope.BackupQuery:
		return s.handleBackupQuery(env, now)
	case envelope.BackupQueryResponse:
		return s.handleBackupQueryResponse(env, now)
	case envelope.BackupConfirmDelivery:
		return s.handleBackupConfirmDelivery(env, now)
	}
	return nil
}

// --- Chat ---

func (s *State) handleChat(env *envelope.Envelope, now time.Time) []Effect {
	if !env.Encrypted {
		return []Effect{{Kind: EffectEmit, Event: Event{Kind: EventError, At: now, Peer: env.From, Err: errPlaintextChatRejected}}}
	}
	ct, err := envelope.DecodePairwiseCiphertext(env.Payload)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: env.From, Err: err})}
	}
	plain, err := crypto.DecryptPairwise(ct, s.Self)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: env.From, Err: err})}
	}
	chatPayload, err := envelope.DecodeChatPayload(plain)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: env.From, Err: err})}
	}
	text := envelope.UnpadText(chatPayload.Padded)
	return []Effect{{
		Kind:           EffectDeliver,
		DeliverFrom:    env.From,
		DeliverPayload: []byte(text),
		DeliverMsgType: envelope.Chat,
	}}
}

// --- Peer / role announce ---

func (s *State) handlePeerAnnounce(env *envelope.Envelope, now time.Time) []Effect {
	_, err := envelope.DecodePeerAnnouncePayload(env.Payload)
	if err != nil {
		return nil
	}
	_, known := s.Topology.Get(env.From)
	s.Topology.Upsert(topology.PeerInfo{NodeId: env.From, Status: topology.StatusOnline, LastSeen: now})
	if !known {
		return []Effect{emitEffect(Event{Kind: EventPeerDiscovered, At: now, Peer: env.From, PeerSource: heartbeat.SourceAnnounce})}
	}
	return nil
}

func (s *State) handleRoleAnnounce(env *envelope.Envelope, now time.Time) []Effect {
	var a role.RoleChangeAnnounce
	if err := msgpack.Unmarshal(env.Payload, &a); err != nil {
		return nil
	}
	if a.NodeId != env.From {
		return nil
	}
	res, err := s.Role.ReceiveAnnounce(&a, now)
	if err != nil || !res.Applied {
		return nil
	}
	tRole := topology.RoleMember
	if a.NewTier == role.Relay {
		tRole = topology.RoleRelay
	}
	s.Topology.SetRole(env.From, tRole)
	return nil
}

// --- Group: hub side ---

func (s *State) handleGroupCreate(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupCreatePayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Hub.CreateGroup(p.GroupId, env.From, p.Username, now)
	resp := &envelope.GroupCreatedPayload{GroupId: p.GroupId, HubId: s.SelfId}
	payload, _ := envelope.EncodeGroupCreatedPayload(resp)
	return []Effect{sendEffect(env.From, s.newEnvelope(env.From, envelope.GroupCreated, payload, now))}
}

func (s *State) handleGroupJoin(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupJoinPayload(env.Payload)
	if err != nil {
		return nil
	}
	res, err := s.Hub.Join(p.GroupId, env.From, p.Username, now)
	if err != nil {
		return nil
	}

	var effects []Effect
	members := make([]envelope.GroupMemberWire, 0, len(res.SyncMembers))
	for _, m := range res.SyncMembers {
		members = append(members, envelope.GroupMemberWire{NodeId: m.NodeId, Username: m.Username, JoinedAt: m.JoinedAt.UnixMilli()})
	}
	syncPayload, _ := envelope.EncodeGroupSyncPayload(&envelope.GroupSyncPayload{
		GroupId:       p.GroupId,
		HubId:         s.SelfId,
		Members:       members,
		RecentTail:    res.ReplayTail,
		ConfigVersion: res.Group.ConfigVersion,
	})
	effects = append(effects, sendEffect(env.From, s.newEnvelope(env.From, envelope.GroupSync, syncPayload, now)))

	joinedPayload, _ := envelope.EncodeGroupMemberJoinedPayload(&envelope.GroupMemberJoinedPayload{
		GroupId: p.GroupId,
		Member:  envelope.GroupMemberWire{NodeId: env.From, Username: p.Username, JoinedAt: now.UnixMilli()},
	})
	for _, existing := range res.NotifyExisting {
		effects = append(effects, sendEffect(existing, s.newEnvelope(existing, envelope.GroupMemberJoined, joinedPayload, now)))
	}

	if reassign, err := s.Hub.Reassign(p.GroupId); err == nil {
		effects = append(effects, s.emitShadowSync(p.GroupId, reassign, now)...)
	}

	return effects
}

func (s *State) handleGroupLeave(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupLeavePayload(env.Payload)
	if err != nil {
		return nil
	}
	remaining, err := s.Hub.Leave(p.GroupId, env.From, now)
	if err != nil {
		return nil
	}
	var effects []Effect
	leftPayload, _ := envelope.EncodeGroupMemberLeftPayload(&envelope.GroupMemberLeftPayload{GroupId: p.GroupId, NodeId: env.From})
	for _, member := range remaining {
		effects = append(effects, sendEffect(member, s.newEnvelope(member, envelope.GroupMemberLeft, leftPayload, now)))
	}
	if reassign, err := s.Hub.Reassign(p.GroupId); err == nil {
		effects = append(effects, s.emitShadowSync(p.GroupId, reassign, now)...)
	}
	return effects
}

// handleGroupKick is reached two different ways depending on who this node
// is. Addressed to the hub, it carries a kicker's request: the hub has no
// role material of its own (the rank-hierarchy check already ran at the
// kicker's own handleGroupKickCommand), so it only confirms both ends are
// still members, then removes the target exactly like a voluntary
// GroupLeave and fans GroupMemberLeft to everyone who remains. Addressed to
// the target itself, it is the hub's direct notice that it has been
// removed, since unlike a voluntary leave the target has no other way of
// finding out.
func (s *State) handleGroupKick(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupKickPayload(env.Payload)
	if err != nil {
		return nil
	}

	if _, isHub := s.Hub.Group(p.GroupId); isHub {
		if !s.Hub.IsMember(p.GroupId, env.From) || !s.Hub.IsMember(p.GroupId, p.Target) {
			return []Effect{emitEffect(Event{Kind: EventGroupSecurityViolation, At: now, GroupId: p.GroupId, Peer: env.From})}
		}
		remaining, err := s.Hub.Leave(p.GroupId, p.Target, now)
		if err != nil {
			return nil
		}
		var effects []Effect
		leftPayload, _ := envelope.EncodeGroupMemberLeftPayload(&envelope.GroupMemberLeftPayload{GroupId: p.GroupId, NodeId: p.Target})
		for _, member := range remaining {
			effects = append(effects, sendEffect(member, s.newEnvelope(member, envelope.GroupMemberLeft, leftPayload, now)))
		}
		kickPayload, _ := envelope.EncodeGroupKickPayload(&envelope.GroupKickPayload{GroupId: p.GroupId, Target: p.Target})
		effects = append(effects, sendEffect(p.Target, s.newEnvelope(p.Target, envelope.GroupKick, kickPayload, now)))
		if reassign, err := s.Hub.Reassign(p.GroupId); err == nil {
			effects = append(effects, s.emitShadowSync(p.GroupId, reassign, now)...)
		}
		return effects
	}

	// This node is the target, notified directly by the hub.
	s.Group.LeaveLocal(p.GroupId)
	return []Effect{emitEffect(Event{Kind: EventGroupMemberKicked, At: now, GroupId: p.GroupId})}
}

// handleGroupRoleChange, like handleGroupKick, is dispatched both at the
// hub (a requester's permission-checked change, forwarded to every other
// member) and at every member including the target (applying the role the
// hub just announced).
func (s *State) handleGroupRoleChange(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupRoleChangePayload(env.Payload)
	if err != nil {
		return nil
	}

	if g, isHub := s.Hub.Group(p.GroupId); isHub {
		if !s.Hub.IsMember(p.GroupId, env.From) || !s.Hub.IsMember(p.GroupId, p.Target) {
			return []Effect{emitEffect(Event{Kind: EventGroupSecurityViolation, At: now, GroupId: p.GroupId, Peer: env.From})}
		}
		out, _ := envelope.EncodeGroupRoleChangePayload(p)
		var effects []Effect
		for member := range g.Members {
			effects = append(effects, sendEffect(member, s.newEnvelope(member, envelope.GroupRoleChange, out, now)))
		}
		return effects
	}

	if err := s.Group.ApplyRoleChange(p.GroupId, p.Target, group.MemberRole(p.Role)); err != nil {
		return nil
	}
	return []Effect{emitEffect(Event{Kind: EventGroupRoleChanged, At: now, GroupId: p.GroupId, Member: p.Target, NewRole: group.MemberRole(p.Role)})}
}

func (s *State) handleGroupMessage(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupMessagePayload(env.Payload)
	if err != nil {
		return nil
	}
	if _, isHub := s.Hub.Group(p.GroupId); isHub {
		targets, err := s.Hub.FanOut(p.GroupId, env.From, p, now)
		if err != nil {
			return []Effect{emitEffect(Event{Kind: EventGroupSecurityViolation, At: now, GroupId: p.GroupId, Peer: env.From})}
		}
		out, _ := envelope.EncodeGroupMessagePayload(p)
		var effects []Effect
		for _, t := range targets {
			effects = append(effects, sendEffect(t, s.newEnvelope(t, envelope.GroupMessage, out, now)))
		}
		return effects
	}
	// This node is a member receiving the hub's fan-out: attempt decryption.
	// p.Sender (not env.From, which is the hub when fanned out) is the true
	// author and is what DecryptIncoming verifies a signature against.
	plain, buffered, err := s.Group.DecryptIncoming(p.GroupId, p.MessageId, p, env.Encrypted, now)
	if err != nil || buffered {
		return nil
	}
	return []Effect{emitEffect(Event{Kind: EventGroupMessageReceived, At: now, GroupId: p.GroupId, Peer: env.From, Username: plain.SenderUsername, Text: plain.Text})}
}

func (s *State) handleSenderKeyDistribution(env *envelope.Envelope, now time.Time) []Effect {
	dist, err := envelope.DecodeSenderKeyDistribution(env.Payload)
	if err != nil {
		return nil
	}
	if _, isHub := s.Hub.Group(dist.GroupId); isHub {
		perRecipient, err := s.Hub.DistributeSenderKey(dist.GroupId, env.From, dist)
		if err != nil {
			return nil
		}
		var effects []Effect
		for recipient, single := range perRecipient {
			out, _ := envelope.EncodeSenderKeyDistribution(single)
			effects = append(effects, sendEffect(recipient, s.newEnvelope(recipient, envelope.GroupSenderKeyDistribution, out, now)))
		}
		return effects
	}
	drained, err := s.Group.ReceiveSenderKeyDistribution(dist, now)
	if err != nil {
		return nil
	}
	var effects []Effect
	for _, msg := range drained {
		effects = append(effects, emitEffect(Event{Kind: EventGroupMessageReceived, At: now, GroupId: msg.GroupId, Peer: msg.Sender, Username: msg.Plaintext.SenderUsername, Text: msg.Plaintext.Text}))
	}
	return effects
}

func (s *State) handleHubPing(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupHubPingPayload(env.Payload)
	if err != nil {
		return nil
	}
	if !s.Hub.HandlePing(p.GroupId, env.From) {
		return nil
	}
	pong, _ := envelope.EncodeGroupHubPongPayload(&envelope.GroupHubPongPayload{GroupId: p.GroupId})
	return []Effect{sendEffect(env.From, s.newEnvelope(env.From, envelope.GroupHubPong, pong, now))}
}

// --- Group: member/shadow side ---

func (s *State) handleGroupCreated(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupCreatedPayload(env.Payload)
	if err != nil {
		return nil
	}
	_, _, err = s.Group.CreateGroup(p.GroupId, p.HubId, now)
	if err != nil {
		return nil
	}
	return []Effect{emitEffect(Event{Kind: EventGroupCreated, At: now, GroupId: p.GroupId})}
}

func (s *State) handleGroupInvite(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupInvitePayload(env.Payload)
	if err != nil {
		return nil
	}
	s.invites[p.GroupId] = pendingInvite{GroupId: p.GroupId, GroupName: p.GroupName, HubId: p.HubId, Inviter: p.Inviter}
	return []Effect{emitEffect(Event{Kind: EventGroupInviteReceived, At: now, GroupId: p.GroupId, GroupName: p.GroupName, Inviter: p.Inviter})}
}

func (s *State) handleGroupSync(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupSyncPayload(env.Payload)
	if err != nil {
		return nil
	}
	members := make([]group.Member, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, group.Member{NodeId: m.NodeId, Username: m.Username, JoinedAt: time.UnixMilli(m.JoinedAt)})
	}
	_, _, err = s.Group.JoinGroup(p.GroupId, p.HubId, members, now)
	if err != nil {
		return nil
	}
	var effects []Effect
	effects = append(effects, emitEffect(Event{Kind: EventGroupJoined, At: now, GroupId: p.GroupId}))
	for _, tail := range p.RecentTail {
		plain, buffered, err := s.Group.DecryptIncoming(p.GroupId, tail.MessageId, &tail, true, now)
		if err == nil && !buffered {
			effects = append(effects, emitEffect(Event{Kind: EventGroupMessageReceived, At: now, GroupId: p.GroupId, Username: plain.SenderUsername, Text: plain.Text}))
		}
	}
	return effects
}

func (s *State) handleGroupMemberJoined(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupMemberJoinedPayload(env.Payload)
	if err != nil {
		return nil
	}
	dist, err := s.Group.OnMemberJoined(p.GroupId, group.Member{NodeId: p.Member.NodeId, Username: p.Member.Username, JoinedAt: time.UnixMilli(p.Member.JoinedAt)}, now)
	effects := []Effect{emitEffect(Event{Kind: EventGroupMemberJoined, At: now, GroupId: p.GroupId, Member: p.Member.NodeId, Username: p.Member.Username})}
	if err == nil && dist != nil {
		out, _ := envelope.EncodeSenderKeyDistribution(dist)
		if info, ok := s.Group.Group(p.GroupId); ok {
			effects = append(effects, sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupSenderKeyDistribution, out, now)))
		}
	}
	return effects
}

func (s *State) handleGroupMemberLeft(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupMemberLeftPayload(env.Payload)
	if err != nil {
		return nil
	}
	dist, err := s.Group.OnMemberLeft(p.GroupId, p.NodeId, now)
	effects := []Effect{emitEffect(Event{Kind: EventGroupMemberLeft, At: now, GroupId: p.GroupId, Member: p.NodeId})}
	if err == nil && dist != nil {
		out, _ := envelope.EncodeSenderKeyDistribution(dist)
		if info, ok := s.Group.Group(p.GroupId); ok {
			effects = append(effects, sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupSenderKeyDistribution, out, now)))
		}
	}
	return effects
}

func (s *State) handleHubPong(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupHubPongPayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Group.RecordPong(p.GroupId)
	return nil
}

func (s *State) handleHubUnreachable(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupHubUnreachablePayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Group.RecordUnreachableReport(p.GroupId)
	return s.maybePromoteShadow(p.GroupId, now)
}

func (s *State) handleHubMigration(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupHubMigrationPayload(env.Payload)
	if err != nil {
		return nil
	}
	if info, ok := s.Group.Group(p.GroupId); ok {
		info.HubId = p.NewHubId
	}
	return []Effect{emitEffect(Event{Kind: EventGroupHubMigrated, At: now, GroupId: p.GroupId, OldHubId: p.OldHubId, NewHubId: p.NewHubId})}
}

func (s *State) handleHubShadowSync(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupHubShadowSyncPayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Group.BecomeShadow(p.GroupId, env.From, p.Members, p.CandidateId, p.ConfigVersion)
	return []Effect{emitEffect(Event{Kind: EventGroupShadowPromoted, At: now, GroupId: p.GroupId})}
}

func (s *State) handleCandidateAssigned(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeGroupCandidateAssignedPayload(env.Payload)
	if err != nil {
		return nil
	}
	return []Effect{emitEffect(Event{Kind: EventGroupCandidateAssigned, At: now, GroupId: p.GroupId})}
}

// maybePromoteShadow checks the shadow watchdog's promotion condition and,
// if due, performs the promotion and broadcasts HubMigration.
func (s *State) maybePromoteShadow(groupId string, now time.Time) []Effect {
	if !s.Group.PromotionDue(groupId) {
		return nil
	}
	migration, err := s.Group.Promote(groupId)
	if err != nil {
		return nil
	}
	info, ok := s.Group.Group(groupId)
	if !ok {
		return nil
	}
	out, _ := envelope.EncodeGroupHubMigrationPayload(&envelope.GroupHubMigrationPayload{GroupId: groupId, NewHubId: migration.NewHubId, OldHubId: migration.OldHubId})
	var effects []Effect
	for id := range info.Members {
		if id != s.SelfId {
			effects = append(effects, sendEffect(id, s.newEnvelope(id, envelope.GroupHubMigration, out, now)))
		}
	}
	effects = append(effects, emitEffect(Event{Kind: EventGroupHubMigrated, At: now, GroupId: groupId, OldHubId: migration.OldHubId, NewHubId: migration.NewHubId}))
	return effects
}

// emitShadowSync builds the HubShadowSync/CandidateAssigned envelopes a
// freshly recomputed shadow/candidate pair needs sent.
func (s *State) emitShadowSync(groupId string, r *hub.ReassignResult, now time.Time) []Effect {
	g, ok := s.Hub.Group(groupId)
	if !ok {
		return nil
	}
	memberIds := make([]crypto.NodeId, 0, len(g.Members))
	for id := range g.Members {
		memberIds = append(memberIds, id)
	}

	var effects []Effect
	if r.HasShadow {
		out, _ := envelope.EncodeGroupHubShadowSyncPayload(&envelope.GroupHubShadowSyncPayload{
			GroupId: groupId, Members: memberIds, CandidateId: r.CandidateId, ConfigVersion: r.ConfigVersion,
		})
		effects = append(effects, sendEffect(r.ShadowId, s.newEnvelope(r.ShadowId, envelope.GroupHubShadowSync, out, now)))
	}
	if r.HasCandidate {
		out, _ := envelope.EncodeGroupCandidateAssignedPayload(&envelope.GroupCandidateAssignedPayload{GroupId: groupId})
		effects = append(effects, sendEffect(r.CandidateId, s.newEnvelope(r.CandidateId, envelope.GroupCandidateAssigned, out, now)))
	}
	return effects
}

// --- Backup / store-and-forward ---

func (s *State) handleBackupStore(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupStorePayload(env.Payload)
	if err != nil {
		return nil
	}
	candidates := s.onlinePeers()
	res := s.Backup.Store(p.MessageId, p.Recipient, p.Sender, p.Payload, candidates, now)
	var effects []Effect
	replicatePayload, _ := envelope.EncodeBackupReplicatePayload(&envelope.BackupReplicatePayload{
		MessageId: p.MessageId, Recipient: p.Recipient, Sender: p.Sender, Payload: p.Payload, TTL: int64(s.Config.BackupEntryTTL),
	})
	for _, peer := range res.Replicate {
		effects = append(effects, sendEffect(peer, s.newEnvelope(peer, envelope.BackupReplicate, replicatePayload, now)))
	}
	effects = append(effects, emitEffect(Event{Kind: EventBackupStored, At: now, MessageId: p.MessageId, Peer: p.Recipient}))
	return effects
}

func (s *State) handleBackupReplicate(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupReplicatePayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Backup.OnReplicate(p.MessageId, p.Recipient, p.Sender, p.Payload, time.Duration(p.TTL), now)
	return nil
}

func (s *State) handleBackupDeliver(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupDeliverPayload(env.Payload)
	if err != nil {
		return nil
	}
	return []Effect{{Kind: EffectDeliver, DeliverFrom: p.OriginalSender, DeliverPayload: p.Payload, DeliverMsgType: envelope.Chat}}
}

func (s *State) handleBackupQuery(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupQueryPayload(env.Payload)
	if err != nil {
		return nil
	}
	pending := s.Backup.PendingFor(p.Recipient, now)
	if len(pending) == 0 {
		return nil
	}
	entries := make([]envelope.BackupEntryWire, 0, len(pending))
	for _, e := range pending {
		entries = append(entries, envelope.BackupEntryWire{MessageId: e.MessageId, Payload: e.Payload})
	}
	out, _ := envelope.EncodeBackupQueryResponsePayload(&envelope.BackupQueryResponsePayload{Entries: entries})
	return []Effect{sendEffect(env.From, s.newEnvelope(env.From, envelope.BackupQueryResponse, out, now))}
}

func (s *State) handleBackupQueryResponse(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupQueryResponsePayload(env.Payload)
	if err != nil || len(p.Entries) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(p.Entries))
	effects := make([]Effect, 0, len(p.Entries)+1)
	for _, e := range p.Entries {
		effects = append(effects, Effect{Kind: EffectDeliver, DeliverFrom: env.From, DeliverPayload: e.Payload, DeliverMsgType: envelope.Chat})
		ids = append(ids, e.MessageId)
	}
	confirm, _ := envelope.EncodeBackupConfirmDeliveryPayload(&envelope.BackupConfirmDeliveryPayload{MessageIds: ids})
	effects = append(effects, sendEffect(env.From, s.newEnvelope(env.From, envelope.BackupConfirmDelivery, confirm, now)))
	return effects
}

func (s *State) handleBackupConfirmDelivery(env *envelope.Envelope, now time.Time) []Effect {
	p, err := envelope.DecodeBackupConfirmDeliveryPayload(env.Payload)
	if err != nil {
		return nil
	}
	s.Backup.ConfirmDelivered(p.MessageIds)
	return nil
}

// newEnvelope builds and signs a fresh envelope of the given type addressed
// to recipient, with no relay chain (direct send; the Executor resolves the
// actual transport hop via topology.SelectPath when needed).
func (s *State) newEnvelope(to crypto.NodeId, msgType envelope.MsgType, payload []byte, now time.Time) *envelope.Envelope {
	env := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      s.SelfId,
		To:        to,
		MsgType:   msgType,
		Payload:   payload,
		Timestamp: now.UnixMilli(),
	}
	_ = env.Sign(s.Self)
	return env
}
