package runtime

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tom-network/tomcore/crypto"
	"github.com/tom-network/tomcore/envelope"
	"github.com/tom-network/tomcore/heartbeat"
	"github.com/tom-network/tomcore/transport"
)

// Delivery is one decoded application message handed to the Executor's
// caller, independent of whether it arrived directly or via backup
// store-and-forward replay.
type Delivery struct {
	From    crypto.NodeId
	Payload []byte
	MsgType envelope.MsgType
}

// commandRequest pairs a Command with the channel its CommandResult is
// delivered on, letting HandleCommand's synchronous query results cross
// back out of the Executor's single goroutine.
type commandRequest struct {
	cmd    Command
	result chan CommandResult
}

// Executor owns the single goroutine that mutates a State: it drains
// inbound datagrams and application Commands, drives every periodic Tick,
// and carries out the Effects each of those produces by calling Transport.
// No other goroutine may touch the State this Executor was built with.
type Executor struct {
	state     *State
	transport transport.Transport

	incoming chan transport.InboundDatagram
	commands chan commandRequest
	gossip   chan transport.GossipEvent
	events   chan Event
	delivery chan Delivery

	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewExecutor creates an Executor for state, sending outbound bytes via t.
// events and delivery are buffered output channels the caller drains;
// Start begins processing, Stop halts it.
func NewExecutor(state *State, t transport.Transport) *Executor {
	return &Executor{
		state:     state,
		transport: t,
		incoming:  make(chan transport.InboundDatagram, 256),
		commands:  make(chan commandRequest, 64),
		gossip:    make(chan transport.GossipEvent, 64),
		events:    make(chan Event, 256),
		delivery:  make(chan Delivery, 256),
		stopChan:  make(chan struct{}),
	}
}

// Events returns the channel every Event the state machine emits is posted
// to. The caller must keep draining it; a full buffer stalls the Executor's
// single goroutine.
func (ex *Executor) Events() <-chan Event { return ex.events }

// Deliveries returns the channel every decoded application message is
// posted to, whether received directly or replayed from backup storage.
func (ex *Executor) Deliveries() <-chan Delivery { return ex.delivery }

// Start launches the Executor's processing loop and its periodic tick
// timers. Calling Start twice is a no-op.
func (ex *Executor) Start() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.running {
		return
	}
	ex.running = true

	ex.wg.Add(1)
	go ex.run()
}

// Stop halts the processing loop and waits for it to exit. Calling Stop
// before Start, or twice, is a no-op.
func (ex *Executor) Stop() {
	ex.mu.Lock()
	if !ex.running {
		ex.mu.Unlock()
		return
	}
	ex.running = false
	ex.mu.Unlock()

	close(ex.stopChan)
	ex.wg.Wait()
}

// Deliver hands one inbound datagram to the Executor for processing. It
// blocks if the internal queue is full, applying backpressure to whatever
// reads the transport's socket.
func (ex *Executor) Deliver(dgram transport.InboundDatagram) {
	select {
	case ex.incoming <- dgram:
	case <-ex.stopChan:
	}
}

// Gossip hands one neighbor up/down notification to the Executor.
func (ex *Executor) Gossip(ev transport.GossipEvent) {
	select {
	case ex.gossip <- ev:
	case <-ex.stopChan:
	}
}

// Submit queues cmd for processing and returns its CommandResult once the
// Executor's goroutine has handled it.
func (ex *Executor) Submit(cmd Command) CommandResult {
	req := commandRequest{cmd: cmd, result: make(chan CommandResult, 1)}
	select {
	case ex.commands <- req:
	case <-ex.stopChan:
		return CommandResult{}
	}
	select {
	case res := <-req.result:
		return res
	case <-ex.stopChan:
		return CommandResult{}
	}
}

func (ex *Executor) run() {
	defer ex.wg.Done()

	cacheCleanup := time.NewTicker(ex.state.Config.CacheCleanupInterval)
	heartbeatTick := time.NewTicker(ex.state.Config.HeartbeatInterval)
	roleEval := time.NewTicker(ex.state.Config.RoleEvaluationInterval)
	backupMaint := time.NewTicker(ex.state.Config.BackupMaintenanceInterval)
	shadowPing := time.NewTicker(ex.state.Config.ShadowPingInterval)
	defer cacheCleanup.Stop()
	defer heartbeatTick.Stop()
	defer roleEval.Stop()
	defer backupMaint.Stop()
	defer shadowPing.Stop()

	for {
		select {
		case <-ex.stopChan:
			return

		case dgram := <-ex.incoming:
			now := time.Now()
			effects := ex.state.HandleIncomingBytes(dgram.Data, dgram.From, now)
			ex.carryOut(effects)

		case ev := <-ex.gossip:
			if ev.Kind == transport.GossipNeighborUp {
				ex.state.Heartbeat.RecordActivity(ev.Peer, time.Now(), heartbeat.SourceGossip)
			}

		case req := <-ex.commands:
			now := time.Now()
			effects, result := ex.state.HandleCommand(req.cmd, now)
			ex.carryOut(effects)
			req.result <- result

		case <-cacheCleanup.C:
			ex.state.TickCacheCleanup(time.Now())

		case <-heartbeatTick.C:
			ex.carryOut(ex.state.TickHeartbeat(time.Now()))

		case <-roleEval.C:
			ex.carryOut(ex.state.TickRoleEvaluation(time.Now()))

		case <-backupMaint.C:
			ex.carryOut(ex.state.TickBackupMaintenance(time.Now()))

		case <-shadowPing.C:
			ex.carryOut(ex.state.TickShadowPing(time.Now()))
		}
	}
}

// carryOut performs the I/O each Effect asks for, in order. Send failures
// fall back to backup store-and-forward when the Effect carries fallback
// fields; every other Effect kind is handled locally without error paths,
// matching the pure-handler contract that produced them.
func (ex *Executor) carryOut(effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectSend:
			ex.send(e)
		case EffectDeliver:
			ex.postDelivery(e)
		case EffectEmit:
			ex.postEvent(e.Event)
		case EffectBackupStore:
			ex.carryOut(ex.storeBackup(e))
		}
	}
}

func (ex *Executor) send(e Effect) {
	data, err := e.Envelope.Encode()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Executor.send",
			"error":    err,
		}).Error("Failed to encode outgoing envelope")
		return
	}

	if err := ex.transport.SendRaw(e.NextHop, data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Executor.send",
			"target":   e.NextHop.ShortString(),
			"error":    err,
		}).Warn("Send failed, falling back to backup store-and-forward")
		if e.Envelope.MsgType == envelope.Ack {
			ex.state.Router.AckFailed++
		}
		if e.FallbackPayload != nil {
			ex.carryOut(ex.fallbackStore(e))
		}
	}
}

// fallbackStore converts a failed direct send into an EffectBackupStore so
// it is replicated the same way an explicit BackupStore request would be.
func (ex *Executor) fallbackStore(e Effect) []Effect {
	return []Effect{{
		Kind:             EffectBackupStore,
		BackupMessageId:  e.FallbackMessageId,
		BackupRecipient:  e.FallbackRecipient,
		BackupPayload:    e.FallbackPayload,
		BackupCandidates: ex.state.onlinePeers(),
		BackupTime:       time.Now(),
	}}
}

// storeBackup records a BackupStore Effect locally and replicates it to
// the selected peers, mirroring handleBackupStore's wire path for a locally
// originated store rather than one arriving over the network.
func (ex *Executor) storeBackup(e Effect) []Effect {
	res := ex.state.Backup.Store(e.BackupMessageId, e.BackupRecipient, ex.state.SelfId, e.BackupPayload, e.BackupCandidates, e.BackupTime)
	out, err := envelope.EncodeBackupReplicatePayload(&envelope.BackupReplicatePayload{
		MessageId: e.BackupMessageId,
		Recipient: e.BackupRecipient,
		Sender:    ex.state.SelfId,
		Payload:   e.BackupPayload,
		TTL:       int64(ex.state.Config.BackupEntryTTL),
	})
	if err != nil {
		return nil
	}
	effects := make([]Effect, 0, len(res.Replicate)+1)
	for _, peer := range res.Replicate {
		effects = append(effects, sendEffect(peer, ex.state.newEnvelope(peer, envelope.BackupReplicate, out, e.BackupTime)))
	}
	effects = append(effects, emitEffect(Event{Kind: EventBackupStored, At: e.BackupTime, MessageId: e.BackupMessageId, Peer: e.BackupRecipient}))
	return effects
}

func (ex *Executor) postDelivery(e Effect) {
	d := Delivery{From: e.DeliverFrom, Payload: e.DeliverPayload, MsgType: e.DeliverMsgType}
	select {
	case ex.delivery <- d:
	case <-ex.stopChan:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Executor.postDelivery",
		}).Warn("Delivery channel full, dropping message")
	}
}

func (ex *Executor) postEvent(ev Event) {
	select {
	case ex.events <- ev:
	case <-ex.stopChan:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Executor.postEvent",
			"kind":     ev.Kind,
		}).Warn("Event channel full, dropping event")
	}
}
