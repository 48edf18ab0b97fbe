package group

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
)

// ShadowState is what a group member tracks while it has been designated
// the shadow of a group's hub.
//
// Promotion is one-way: once Promote has run for a group, nothing hands the
// hub role back if the previous hub becomes reachable again.
type ShadowState struct {
	GroupId            string
	HubId              crypto.NodeId
	Members            []crypto.NodeId
	CandidateId        crypto.NodeId
	ConfigVersion      int64
	PingFailures        int
	UnreachableReports  int
	pingOutstanding     bool
	pingSentAt          time.Time
}

// HubMigration is the broadcast a newly promoted shadow sends to every
// member of the group.
type HubMigration struct {
	GroupId  string
	NewHubId crypto.NodeId
	OldHubId crypto.NodeId
}

// BecomeShadow installs or replaces shadow state for groupId, normally in
// response to a HubShadowSync from the hub.
func (m *Manager) BecomeShadow(groupId string, hubId crypto.NodeId, members []crypto.NodeId, candidateId crypto.NodeId, configVersion int64) {
	m.shadows[groupId] = &ShadowState{
		GroupId:       groupId,
		HubId:         hubId,
		Members:       members,
		CandidateId:   candidateId,
		ConfigVersion: configVersion,
	}
}

// IsShadow reports whether this node currently shadows groupId.
func (m *Manager) IsShadow(groupId string) bool {
	_, ok := m.shadows[groupId]
	return ok
}

// ShadowedGroups returns the ids of every group this node currently
// shadows, for the runtime's periodic ping tick to iterate over.
func (m *Manager) ShadowedGroups() []string {
	out := make([]string, 0, len(m.shadows))
	for id := range m.shadows {
		out = append(out, id)
	}
	return out
}

// RecordPingSent marks that a HubPing was just emitted to the hub, starting
// the ping-timeout window. It is a defensive no-op if this node is not the
// group's shadow.
func (m *Manager) RecordPingSent(groupId string, now time.Time) {
	s, ok := m.shadows[groupId]
	if !ok {
		return
	}
	s.pingOutstanding = true
	s.pingSentAt = now
}

// RecordPong clears the outstanding ping and resets the failure streak on a
// HubPong received in time.
func (m *Manager) RecordPong(groupId string) {
	s, ok := m.shadows[groupId]
	if !ok {
		return
	}
	s.pingOutstanding = false
	s.PingFailures = 0
}

// CheckPingTimeout evaluates whether the outstanding ping (if any) has
// exceeded pingTimeout as of now; if so it counts as a failure. Returns
// true if a failure was just recorded.
func (m *Manager) CheckPingTimeout(groupId string, pingTimeout time.Duration, now time.Time) bool {
	s, ok := m.shadows[groupId]
	if !ok || !s.pingOutstanding {
		return false
	}
	if now.Sub(s.pingSentAt) < pingTimeout {
		return false
	}
	s.pingOutstanding = false
	s.PingFailures++
	logrus.WithFields(logrus.Fields{
		"function": "Manager.CheckPingTimeout",
		"group":    groupId,
		"failures": s.PingFailures,
	}).Warn("Shadow ping timed out")
	return true
}

// RecordUnreachableReport records one HubUnreachable report from another
// member.
func (m *Manager) RecordUnreachableReport(groupId string) {
	s, ok := m.shadows[groupId]
	if !ok {
		return
	}
	s.UnreachableReports++
}

// PromotionDue reports whether the shadow's failure/report counters cross
// the promotion thresholds: ping_failures >= 2, or ping_failures >= 1 and
// ping_failures + unreachable_reports >= 2.
func (m *Manager) PromotionDue(groupId string) bool {
	s, ok := m.shadows[groupId]
	if !ok {
		return false
	}
	if s.PingFailures >= 2 {
		return true
	}
	if s.PingFailures >= 1 && s.PingFailures+s.UnreachableReports >= 2 {
		return true
	}
	return false
}

// Promote performs the shadow-to-hub promotion: the node takes over as
// hub_relay_id for the group, clears its shadow state, and returns the
// HubMigration broadcast for every member.
func (m *Manager) Promote(groupId string) (*HubMigration, error) {
	s, ok := m.shadows[groupId]
	if !ok {
		return nil, ErrUnknownGroup
	}
	oldHub := s.HubId

	if info, ok := m.groups[groupId]; ok {
		info.HubId = m.selfId
	}
	delete(m.shadows, groupId)

	logrus.WithFields(logrus.Fields{
		"function": "Manager.Promote",
		"group":    groupId,
		"old_hub":  oldHub.ShortString(),
	}).Info("Shadow promoted to hub")

	return &HubMigration{GroupId: groupId, NewHubId: m.selfId, OldHubId: oldHub}, nil
}
