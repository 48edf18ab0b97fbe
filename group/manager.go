package group

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
)

var (
	ErrUnknownGroup      = errors.New("group: unknown group id")
	ErrNoLocalSenderKey  = errors.New("group: no local sender key for this group")
	ErrNotGroupRecipient = errors.New("group: this node is not a recipient in the distribution")
	ErrGroupMessageSignature = errors.New("group: message signature does not verify against its claimed sender")
	ErrNotGroupMember        = errors.New("group: not a member of this group")
	ErrGroupPermissionDenied = errors.New("group: insufficient role for this operation")
)

// DecryptedMessage is one group message the Manager successfully decrypted,
// either immediately or after draining the pending buffer.
type DecryptedMessage struct {
	GroupId   string
	Sender    crypto.NodeId
	MessageId uuid.UUID
	Plaintext envelope.GroupPlaintext
}

// Manager is the member-side group state: membership, per-sender keys, the
// pending-decrypt buffer, and (optionally) shadow watchdog state.
type Manager struct {
	self   *crypto.KeyPair
	selfId crypto.NodeId

	groups  map[string]*GroupInfo
	local   map[string]*SenderKeyEntry            // groupId -> this node's own key
	remote  map[string]map[crypto.NodeId]*SenderKeyEntry // groupId -> sender -> their key
	pending *pendingStore

	shadows map[string]*ShadowState
}

// New creates a Manager for self, buffering undecryptable messages for up
// to pendingBufferAge.
func New(self *crypto.KeyPair, pendingBufferAge time.Duration) *Manager {
	return &Manager{
		self:    self,
		selfId:  crypto.NodeId(self.Public),
		groups:  make(map[string]*GroupInfo),
		local:   make(map[string]*SenderKeyEntry),
		remote:  make(map[string]map[crypto.NodeId]*SenderKeyEntry),
		pending: newPendingStore(pendingBufferAge),
		shadows: make(map[string]*ShadowState),
	}
}

// CreateGroup handles the hub's Created response to a local Create: stores
// the group, generates a local sender key at epoch 1, and returns the
// distribution bundle for any members already present (normally empty for
// a brand-new group).
func (m *Manager) CreateGroup(groupId string, hubId crypto.NodeId, now time.Time) (*GroupInfo, *envelope.SenderKeyDistribution, error) {
	info := &GroupInfo{
		GroupId:   groupId,
		HubId:     hubId,
		Members:   map[crypto.NodeId]*Member{m.selfId: {NodeId: m.selfId, Role: RoleFounder, JoinedAt: now}},
		CreatedAt: now,
	}
	m.groups[groupId] = info

	key, err := crypto.GenerateSenderKey()
	if err != nil {
		return nil, nil, err
	}
	m.local[groupId] = &SenderKeyEntry{OwnerId: m.selfId, Key: key, Epoch: 1}

	dist, err := m.buildDistribution(groupId, 1, key, nil)
	if err != nil {
		return nil, nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Manager.CreateGroup",
		"group":    groupId,
	}).Info("Group created locally")

	return info, dist, nil
}

// JoinGroup handles a Sync from the hub: stores the group with its current
// membership, generates this node's own sender key, and returns the
// distribution bundle to push it to every existing member.
func (m *Manager) JoinGroup(groupId string, hubId crypto.NodeId, members []Member, now time.Time) (*GroupInfo, *envelope.SenderKeyDistribution, error) {
	memberMap := make(map[crypto.NodeId]*Member, len(members)+1)
	for i := range members {
		mm := members[i]
		memberMap[mm.NodeId] = &mm
	}
	memberMap[m.selfId] = &Member{NodeId: m.selfId, Role: RoleUser, JoinedAt: now}

	info := &GroupInfo{GroupId: groupId, HubId: hubId, Members: memberMap, CreatedAt: now}
	m.groups[groupId] = info

	key, err := crypto.GenerateSenderKey()
	if err != nil {
		return nil, nil, err
	}
	m.local[groupId] = &SenderKeyEntry{OwnerId: m.selfId, Key: key, Epoch: 1}

	dist, err := m.buildDistribution(groupId, 1, key, nil)
	if err != nil {
		return nil, nil, err
	}
	return info, dist, nil
}

// OnMemberJoined records a newly joined member and, if this node has a
// local sender key, returns a single-entry distribution pushing it to the
// new member.
func (m *Manager) OnMemberJoined(groupId string, newMember Member, now time.Time) (*envelope.SenderKeyDistribution, error) {
	info, ok := m.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	info.Members[newMember.NodeId] = &newMember

	local, ok := m.local[groupId]
	if !ok {
		return nil, nil // legacy/no-key groups have nothing to push
	}

	return m.buildDistribution(groupId, local.Epoch, local.Key, []crypto.NodeId{newMember.NodeId})
}

// OnMemberLeft removes the departed member, rotates this node's own sender
// key to a new epoch, and returns the distribution bundle for the
// remaining members. Old-epoch ciphertexts become permanently undecryptable
// by the ex-member since they never receive the new key.
func (m *Manager) OnMemberLeft(groupId string, departed crypto.NodeId, now time.Time) (*envelope.SenderKeyDistribution, error) {
	info, ok := m.groups[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	delete(info.Members, departed)
	if remote, ok := m.remote[groupId]; ok {
		delete(remote, departed)
	}

	local, ok := m.local[groupId]
	newEpoch := uint32(1)
	if ok {
		newEpoch = local.Epoch + 1
	}

	key, err := crypto.GenerateSenderKey()
	if err != nil {
		return nil, err
	}
	m.local[groupId] = &SenderKeyEntry{OwnerId: m.selfId, Key: key, Epoch: newEpoch}

	logrus.WithFields(logrus.Fields{
		"function": "Manager.OnMemberLeft",
		"group":    groupId,
		"epoch":    newEpoch,
	}).Info("Sender key rotated after member departure")

	return m.buildDistribution(groupId, newEpoch, key, nil)
}

// CheckKickPermission reports whether self may remove target from groupId:
// self must hold at least RoleModerator and strictly outrank target.
func (m *Manager) CheckKickPermission(groupId string, target crypto.NodeId) error {
	self, targetMember, err := m.rankPair(groupId, target)
	if err != nil {
		return err
	}
	if self.Role < RoleModerator {
		return ErrGroupPermissionDenied
	}
	if self.Role <= targetMember.Role {
		return ErrGroupPermissionDenied
	}
	return nil
}

// CheckRoleChangePermission reports whether self may set target's role to
// newRole in groupId: self must hold at least RoleAdmin, strictly outrank
// target, never assign a role at or above its own, and never touch a
// founder's role.
func (m *Manager) CheckRoleChangePermission(groupId string, target crypto.NodeId, newRole MemberRole) error {
	self, targetMember, err := m.rankPair(groupId, target)
	if err != nil {
		return err
	}
	if self.Role < RoleAdmin {
		return ErrGroupPermissionDenied
	}
	if self.Role <= targetMember.Role {
		return ErrGroupPermissionDenied
	}
	if newRole >= self.Role {
		return ErrGroupPermissionDenied
	}
	if targetMember.Role == RoleFounder {
		return ErrGroupPermissionDenied
	}
	return nil
}

// rankPair looks up self and target's current Member records in groupId,
// the shared precondition of every rank-hierarchy permission check.
func (m *Manager) rankPair(groupId string, target crypto.NodeId) (*Member, *Member, error) {
	info, ok := m.groups[groupId]
	if !ok {
		return nil, nil, ErrUnknownGroup
	}
	self, ok := info.Members[m.selfId]
	if !ok {
		return nil, nil, ErrNotGroupMember
	}
	targetMember, ok := info.Members[target]
	if !ok {
		return nil, nil, ErrNotGroupMember
	}
	return self, targetMember, nil
}

// ApplyRoleChange sets target's role to newRole in groupId, for a node
// applying a hub-fanned GroupRoleChange it did not itself request (the
// requester already ran CheckRoleChangePermission against its own rank
// before sending; a receiver has no standing to re-derive that check
// against its own unrelated rank). Refuses to ever touch a founder's role.
func (m *Manager) ApplyRoleChange(groupId string, target crypto.NodeId, newRole MemberRole) error {
	info, ok := m.groups[groupId]
	if !ok {
		return ErrUnknownGroup
	}
	targetMember, ok := info.Members[target]
	if !ok {
		return ErrNotGroupMember
	}
	if targetMember.Role == RoleFounder {
		return ErrGroupPermissionDenied
	}
	targetMember.Role = newRole
	return nil
}

// LeaveLocal discards every local record of groupId: membership, sender
// keys, and pending-decrypt state. Used when this node learns it has been
// removed from a group (by a kick) and has no further business tracking it.
func (m *Manager) LeaveLocal(groupId string) {
	delete(m.groups, groupId)
	delete(m.local, groupId)
	delete(m.remote, groupId)
	delete(m.pending.byGroup, groupId)
}

// buildDistribution encrypts key toward every member of groupId except
// self, or only toward only (if non-empty), using each recipient's Ed25519
// identity converted to X25519 per recipient.
func (m *Manager) buildDistribution(groupId string, epoch uint32, key crypto.SenderKey, only []crypto.NodeId) (*envelope.SenderKeyDistribution, error) {
	info := m.groups[groupId]
	recipients := only
	if len(recipients) == 0 {
		for id := range info.Members {
			if id != m.selfId {
				recipients = append(recipients, id)
			}
		}
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	entries := make([]envelope.EncryptedSenderKey, 0, len(recipients))
	for _, recipient := range recipients {
		ct, err := crypto.EncryptSenderKeyFor(key, recipient)
		if err != nil {
			return nil, err
		}
		entries = append(entries, envelope.EncryptedSenderKey{
			Recipient:          recipient,
			EphemeralPublicKey: ct.EphemeralPublicKey,
			Nonce:              ct.Nonce,
			Ciphertext:         ct.Ciphertext,
		})
	}

	return &envelope.SenderKeyDistribution{
		GroupId: groupId,
		Sender:  m.selfId,
		Epoch:   epoch,
		Entries: entries,
	}, nil
}

// ReceiveSenderKeyDistribution extracts this node's own entry, decrypts it,
// stores it, and drains any messages from that sender the pending buffer
// was holding.
func (m *Manager) ReceiveSenderKeyDistribution(dist *envelope.SenderKeyDistribution, now time.Time) ([]DecryptedMessage, error) {
	var mine *envelope.EncryptedSenderKey
	for i := range dist.Entries {
		if dist.Entries[i].Recipient == m.selfId {
			mine = &dist.Entries[i]
			break
		}
	}
	if mine == nil {
		return nil, ErrNotGroupRecipient
	}

	key, err := crypto.DecryptSenderKeyFrom(&crypto.PairwiseCiphertext{
		EphemeralPublicKey: mine.EphemeralPublicKey,
		Nonce:              mine.Nonce,
		Ciphertext:         mine.Ciphertext,
	}, m.self)
	if err != nil {
		return nil, err
	}

	if _, ok := m.remote[dist.GroupId]; !ok {
		m.remote[dist.GroupId] = make(map[crypto.NodeId]*SenderKeyEntry)
	}
	m.remote[dist.GroupId][dist.Sender] = &SenderKeyEntry{OwnerId: dist.Sender, Key: key, Epoch: dist.Epoch}

	drained := m.pending.drain(dist.GroupId, dist.Sender, now)
	out := make([]DecryptedMessage, 0, len(drained))
	for _, pm := range drained {
		plaintext, err := m.decryptWith(key, pm.payload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Manager.ReceiveSenderKeyDistribution",
				"group":    dist.GroupId,
			}).Warn("Dropping buffered group message that failed to decrypt after key arrival")
			continue
		}
		out = append(out, DecryptedMessage{GroupId: dist.GroupId, Sender: pm.sender, MessageId: pm.messageId, Plaintext: *plaintext})
	}
	return out, nil
}

// EncryptOutgoing builds the payload for a new outgoing group message. If a
// local sender key exists the message is encrypted; otherwise it falls back
// to a legacy plaintext payload with the same signing envelope.
func (m *Manager) EncryptOutgoing(groupId, senderUsername, text string, now time.Time) (*envelope.GroupMessagePayload, bool, error) {
	local, ok := m.local[groupId]
	if !ok {
		plain, err := envelopePlaintext(senderUsername, text)
		if err != nil {
			return nil, false, err
		}
		p := &envelope.GroupMessagePayload{
			GroupId:    groupId,
			Sender:     m.selfId,
			MessageId:  uuid.New(),
			Ciphertext: plain,
			SentAt:     now.UnixMilli(),
		}
		if err := p.Sign(m.self); err != nil {
			return nil, false, err
		}
		return p, false, nil
	}

	plain, err := envelopePlaintext(senderUsername, text)
	if err != nil {
		return nil, false, err
	}
	ciphertext, nonce, err := crypto.EncryptGroupMessage(local.Key, plain)
	if err != nil {
		return nil, false, err
	}

	p := &envelope.GroupMessagePayload{
		GroupId:    groupId,
		Sender:     m.selfId,
		MessageId:  uuid.New(),
		Ciphertext: ciphertext,
		Nonce:      nonce,
		KeyEpoch:   local.Epoch,
		SentAt:     now.UnixMilli(),
	}
	if err := p.Sign(m.self); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// DecryptIncoming handles a received GroupMessage. On a sender-key hit it
// decrypts immediately; on a miss it buffers the message and reports
// buffered=true. The author is read from payload.Sender, not from whichever
// peer relayed the envelope (the hub, on a fan-out), and its signature is
// verified before any decrypt attempt.
func (m *Manager) DecryptIncoming(groupId string, messageId uuid.UUID, payload *envelope.GroupMessagePayload, encrypted bool, now time.Time) (*envelope.GroupPlaintext, bool, error) {
	if valid, err := payload.VerifySignature(); err != nil || !valid {
		return nil, false, ErrGroupMessageSignature
	}

	if !encrypted {
		plain, err := decodePlaintext(payload.Ciphertext)
		return plain, false, err
	}

	bySender, ok := m.remote[groupId]
	if ok {
		if entry, ok := bySender[payload.Sender]; ok && entry.Epoch == payload.KeyEpoch {
			plain, err := m.decryptWith(entry.Key, payload)
			return plain, false, err
		}
	}

	m.pending.add(groupId, pendingMessage{messageId: messageId, sender: payload.Sender, payload: payload, arrivedAt: now})
	return nil, true, nil
}

func (m *Manager) decryptWith(key crypto.SenderKey, payload *envelope.GroupMessagePayload) (*envelope.GroupPlaintext, error) {
	plain, err := crypto.DecryptGroupMessage(key, payload.Ciphertext, payload.Nonce)
	if err != nil {
		return nil, err
	}
	return decodePlaintext(plain)
}

// SweepPending discards pending-decrypt entries past the buffer's max age,
// independent of any specific drain.
func (m *Manager) SweepPending(now time.Time) {
	m.pending.sweep(now)
}

// Group returns the locally stored GroupInfo, if joined.
func (m *Manager) Group(groupId string) (*GroupInfo, bool) {
	info, ok := m.groups[groupId]
	return info, ok
}

// Groups returns every group this node currently belongs to, for callers
// that need to enumerate membership (e.g. a get-all-groups query).
func (m *Manager) Groups() []*GroupInfo {
	out := make([]*GroupInfo, 0, len(m.groups))
	for _, info := range m.groups {
		out = append(out, info)
	}
	return out
}
