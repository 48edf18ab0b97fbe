// Package group implements the member side of group messaging: group
// membership and invitation bookkeeping, Sender-Key generation/rotation/
// distribution, the pending-decrypt buffer for messages that arrive before
// their sender's key, and the shadow watchdog a designated member runs
// against its group's hub.
//
// The hub (primary) side of group messaging lives in package hub.
package group
