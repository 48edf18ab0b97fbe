package runtime

import (
	"time"

	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/group"
	"github.com/tom-network/tomcore/limits"
	"github.com/tom-network/tomcore/topology"
)

// HandleCommand performs one local operation requested by the application,
// returning the Effects the Executor must carry out plus (for query
// commands) a synchronous CommandResult.
func (s *State) HandleCommand(cmd Command, now time.Time) ([]Effect, CommandResult) {
	switch cmd.Kind {
	case CommandSendMessage:
		return s.handleSendMessage(cmd, now), CommandResult{}
	case CommandSendGroupMessage:
		return s.handleSendGroupMessage(cmd, now), CommandResult{}
	case CommandSendReadReceipt:
		return s.handleSendReadReceipt(cmd, now), CommandResult{}
	case CommandAddPeer:
		return s.handleAddPeer(cmd, now), CommandResult{}
	case CommandUpsertPeer:
		return s.handleUpsertPeer(cmd, now), CommandResult{}
	case CommandRemovePeer:
		s.Topology.Remove(cmd.Peer)
		return nil, CommandResult{}
	case CommandCreateGroup:
		return s.handleCreateGroup(cmd, now), CommandResult{}
	case CommandAcceptInvite:
		return s.handleAcceptInvite(cmd, now), CommandResult{}
	case CommandDeclineInvite:
		delete(s.invites, cmd.GroupId)
		return nil, CommandResult{}
	case CommandLeaveGroup:
		return s.handleLeaveGroup(cmd, now), CommandResult{}
	case CommandGroupKick:
		return s.handleGroupKickCommand(cmd, now), CommandResult{}
	case CommandGroupSetRole:
		return s.handleGroupSetRoleCommand(cmd, now), CommandResult{}
	case CommandGetGroups:
		return nil, CommandResult{Groups: s.allGroups()}
	case CommandGetPendingInvites:
		return nil, CommandResult{PendingInvites: s.allPendingInvites()}
	case CommandGetConnectedPeers:
		return nil, CommandResult{ConnectedPeers: s.allConnectedPeers()}
	case CommandGetRoleMetrics:
		return nil, CommandResult{RoleMetrics: s.selfRoleMetrics(now)}
	case CommandGetAllRoleScores:
		return nil, CommandResult{AllRoleScores: s.allRoleScores(now)}
	case CommandShutdown:
		// Nothing to tear down at the State level; Executor.Stop ends the
		// processing loop, and closing the transport is left to whoever
		// created it.
		return nil, CommandResult{}
	}
	return nil, CommandResult{}
}

// handleSendMessage builds, signs, tracks, and routes a new pairwise Chat
// message, padding the plaintext before encryption to resist traffic
// analysis. If no path is known the message still gets a tracked pending
// entry and an EffectSend carrying fallback fields, so the Executor can
// fall back to a local BackupStore when the transport reports the direct
// send unreachable.
func (s *State) handleSendMessage(cmd Command, now time.Time) []Effect {
	if err := limits.ValidatePlaintextMessage([]byte(cmd.Text)); err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: cmd.Peer, Err: err})}
	}
	padded := envelope.PadText(cmd.Text)
	chatPayload, err := envelope.EncodeChatPayload(&envelope.ChatPayload{Padded: padded})
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: cmd.Peer, Err: err})}
	}
	ct, err := crypto.EncryptPairwise(chatPayload, cmd.Peer)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: cmd.Peer, Err: err})}
	}
	cipherPayload, err := envelope.EncodePairwiseCiphertext(ct)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: cmd.Peer, Err: err})}
	}

	env := &envelope.Envelope{
		Id:        envelope.NewId(),
		From:      s.SelfId,
		To:        cmd.Peer,
		MsgType:   envelope.Chat,
		Payload:   cipherPayload,
		Encrypted: true,
		Timestamp: now.UnixMilli(),
	}

	path, pathErr := s.Topology.SelectPath(cmd.Peer, nil)
	if pathErr == nil {
		env.Via = path
	}
	if err := env.Sign(s.Self); err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, Peer: cmd.Peer, Err: err})}
	}

	s.Tracker.Track(env.Id, cmd.Peer)
	s.Tracker.MarkSent(env.Id)

	nextHop := cmd.Peer
	if len(path) > 0 {
		nextHop = path[0]
	}

	send := sendEffect(nextHop, env)
	send.FallbackMessageId = env.Id
	send.FallbackPayload = cipherPayload
	send.FallbackRecipient = cmd.Peer
	return []Effect{send}
}

// handleSendGroupMessage encrypts and signs an outgoing group message with
// this node's current sender key (or the plaintext fallback if the group
// has none yet) and routes it to the group's hub.
func (s *State) handleSendGroupMessage(cmd Command, now time.Time) []Effect {
	payload, _, err := s.Group.EncryptOutgoing(cmd.GroupId, s.Username, cmd.Text, now)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: err})}
	}
	info, ok := s.Group.Group(cmd.GroupId)
	if !ok {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: group.ErrUnknownGroup})}
	}
	out, err := envelope.EncodeGroupMessagePayload(payload)
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: err})}
	}
	return []Effect{sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupMessage, out, now))}
}

// handleSendReadReceipt marks the local tracker entry Read and, if the
// sender is known, notifies them directly.
func (s *State) handleSendReadReceipt(cmd Command, now time.Time) []Effect {
	s.Tracker.MarkRead(cmd.ReadReceiptFor, now)
	payload, err := envelope.EncodeReadReceiptPayload(&envelope.ReadReceiptPayload{
		OriginalId: cmd.ReadReceiptFor,
		ReadAt:     now.UnixMilli(),
	})
	if err != nil {
		return nil
	}
	return []Effect{sendEffect(cmd.Peer, s.newEnvelope(cmd.Peer, envelope.ReadReceipt, payload, now))}
}

// handleAddPeer records a new peer only if it isn't already known, leaving
// an existing entry untouched (unlike CommandUpsertPeer).
func (s *State) handleAddPeer(cmd Command, now time.Time) []Effect {
	if _, known := s.Topology.Get(cmd.Peer); known {
		return nil
	}
	s.Topology.Upsert(topology.PeerInfo{NodeId: cmd.Peer, Status: topology.StatusOnline, LastSeen: now})
	return s.announceSelfTo(cmd.Peer, now)
}

func (s *State) handleUpsertPeer(cmd Command, now time.Time) []Effect {
	s.Topology.Upsert(topology.PeerInfo{NodeId: cmd.Peer, Status: topology.StatusOnline, LastSeen: now})
	return s.announceSelfTo(cmd.Peer, now)
}

func (s *State) announceSelfTo(peer crypto.NodeId, now time.Time) []Effect {
	payload, err := envelope.EncodePeerAnnouncePayload(&envelope.PeerAnnouncePayload{Username: s.Username})
	if err != nil {
		return nil
	}
	return []Effect{sendEffect(peer, s.newEnvelope(peer, envelope.PeerAnnounce, payload, now))}
}

// handleCreateGroup creates a brand-new group hosted locally: this node is
// both the founding member and the hub, so no network round trip is
// required before the caller can start sending. A founder-only group has no
// other member to distribute a sender key to yet, so Group.CreateGroup
// always returns a nil distribution here.
func (s *State) handleCreateGroup(cmd Command, now time.Time) []Effect {
	s.Hub.CreateGroup(cmd.GroupId, s.SelfId, s.Username, now)
	if _, _, err := s.Group.CreateGroup(cmd.GroupId, s.SelfId, now); err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: err})}
	}
	return []Effect{emitEffect(Event{Kind: EventGroupCreated, At: now, GroupId: cmd.GroupId})}
}

// handleAcceptInvite sends GroupJoin to the inviting hub named in the
// stored invite and forgets the invite regardless of outcome.
func (s *State) handleAcceptInvite(cmd Command, now time.Time) []Effect {
	inv, ok := s.invites[cmd.GroupId]
	if !ok {
		return nil
	}
	delete(s.invites, cmd.GroupId)
	payload, err := envelope.EncodeGroupJoinPayload(&envelope.GroupJoinPayload{GroupId: cmd.GroupId, Username: s.Username})
	if err != nil {
		return nil
	}
	return []Effect{sendEffect(inv.HubId, s.newEnvelope(inv.HubId, envelope.GroupJoin, payload, now))}
}

func (s *State) handleLeaveGroup(cmd Command, now time.Time) []Effect {
	info, ok := s.Group.Group(cmd.GroupId)
	if !ok {
		return nil
	}
	payload, err := envelope.EncodeGroupLeavePayload(&envelope.GroupLeavePayload{GroupId: cmd.GroupId})
	if err != nil {
		return nil
	}
	return []Effect{sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupLeave, payload, now))}
}

// handleGroupKickCommand enforces the rank-hierarchy permission check
// locally, against this node's own view of the group, before ever putting
// a request on the wire: the hub holds no role material and cannot
// re-derive it, so a denial here is the only enforcement point.
func (s *State) handleGroupKickCommand(cmd Command, now time.Time) []Effect {
	if err := s.Group.CheckKickPermission(cmd.GroupId, cmd.Peer); err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Peer: cmd.Peer, Err: err})}
	}
	info, ok := s.Group.Group(cmd.GroupId)
	if !ok {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: group.ErrUnknownGroup})}
	}
	payload, err := envelope.EncodeGroupKickPayload(&envelope.GroupKickPayload{GroupId: cmd.GroupId, Target: cmd.Peer})
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: err})}
	}
	return []Effect{sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupKick, payload, now))}
}

// handleGroupSetRoleCommand enforces the same kind of local permission
// check as handleGroupKickCommand, then pushes the change through the hub
// so every member (including the target) learns the new role.
func (s *State) handleGroupSetRoleCommand(cmd Command, now time.Time) []Effect {
	if err := s.Group.CheckRoleChangePermission(cmd.GroupId, cmd.Peer, cmd.Role); err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Peer: cmd.Peer, Err: err})}
	}
	info, ok := s.Group.Group(cmd.GroupId)
	if !ok {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: group.ErrUnknownGroup})}
	}
	payload, err := envelope.EncodeGroupRoleChangePayload(&envelope.GroupRoleChangePayload{
		GroupId: cmd.GroupId,
		Target:  cmd.Peer,
		Role:    uint8(cmd.Role),
	})
	if err != nil {
		return []Effect{emitEffect(Event{Kind: EventError, At: now, GroupId: cmd.GroupId, Err: err})}
	}
	return []Effect{sendEffect(info.HubId, s.newEnvelope(info.HubId, envelope.GroupRoleChange, payload, now))}
}

func (s *State) allGroups() []*group.GroupInfo {
	return s.Group.Groups()
}

func (s *State) allPendingInvites() []pendingInvite {
	out := make([]pendingInvite, 0, len(s.invites))
	for _, inv := range s.invites {
		out = append(out, inv)
	}
	return out
}

func (s *State) allConnectedPeers() []topology.PeerInfo {
	snap := s.Topology.Snapshot()
	out := make([]topology.PeerInfo, 0, len(snap))
	for _, p := range snap {
		out = append(out, p)
	}
	return out
}

func (s *State) selfRoleMetrics(now time.Time) *RoleScore {
	return &RoleScore{NodeId: s.SelfId, Tier: s.Role.Tier(s.SelfId), Score: s.Role.Score(s.SelfId, now)}
}

func (s *State) allRoleScores(now time.Time) []RoleScore {
	snap := s.Role.Snapshot(now)
	out := make([]RoleScore, 0, len(snap))
	for id, ps := range snap {
		out = append(out, RoleScore{NodeId: id, Tier: ps.Tier, Score: ps.Score})
	}
	return out
}
