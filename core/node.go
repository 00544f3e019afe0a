// Package core implements the Node Controller and Local Process engine
// (§4.3, §4.4): the per-node singleton owning the connection map and
// control dispatch, and the independently schedulable process it hosts.
//
// Grounded on the teacher's protocol.go/peer.go: one poll loop per
// serialized actor (the teacher's Unity.poll/Peer.poll), reading a
// local-enqueue channel and the transport's inbound stream in the same
// select, mirrored here as NodeController.poll — which is also what makes
// the NC "a single logical serialized actor" (§5).
package core

import (
	"context"
	"sync"

	"github.com/jabolina/swarm/closures"
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/telemetry"
	"github.com/jabolina/swarm/transport"
	"github.com/jabolina/swarm/types"
)

type connState uint8

const (
	connOpen connState = iota
	connFailed
)

type connEntry struct {
	state connState
	conn  transport.Connection
}

// NodeController is the per-node singleton (§2, §4.4): it owns the
// outbound connection map, the process registry, and the control inbox.
type NodeController struct {
	id         types.NodeID
	transport  transport.Transport
	serializer *serialize.GobSerializer
	table      *closures.RemoteTable
	logger     telemetry.Logger
	metrics    telemetry.Metrics

	mu          sync.Mutex
	connections map[types.NodeID]*connEntry
	processes   map[uint64]*Process
	nextIndex   uint64
	deadReasons map[types.ProcessID]types.DeathReason
	names       map[string]types.ProcessID

	control chan types.NCMsg
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewNodeController builds and starts a Node Controller for id, driven by
// tr. table must already carry whatever closures this node's spawn targets
// will need to resolve.
func NewNodeController(id types.NodeID, tr transport.Transport, table *closures.RemoteTable, ser *serialize.GobSerializer, logger telemetry.Logger, metrics telemetry.Metrics) *NodeController {
	ctx, cancel := context.WithCancel(context.Background())
	n := &NodeController{
		id:          id,
		transport:   tr,
		serializer:  ser,
		table:       table,
		logger:      logger,
		metrics:     metrics,
		connections: make(map[types.NodeID]*connEntry),
		processes:   make(map[uint64]*Process),
		deadReasons: make(map[types.ProcessID]types.DeathReason),
		names:       make(map[string]types.ProcessID),
		control:     make(chan types.NCMsg, 64),
		ctx:         ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
	registerCallProxy(table, ser)
	go n.poll()
	return n
}

func (n *NodeController) ID() types.NodeID { return n.id }

// poll is the Node Controller's single serialized actor loop (§5): every
// control decision — whether it originated from a local process or arrived
// over the wire — is made here, one at a time.
func (n *NodeController) poll() {
	defer close(n.stopped)
	defer n.logger.Debugf("node controller %s stopped", n.id)
	for {
		select {
		case <-n.ctx.Done():
			return
		case msg, ok := <-n.control:
			if !ok {
				return
			}
			n.processControl(msg)
		case in, ok := <-n.transport.Inbound():
			if !ok {
				return
			}
			n.processInbound(in)
		case f, ok := <-n.transport.Failures():
			if !ok {
				return
			}
			n.onConnectionFailed(f.Remote)
		}
	}
}

func (n *NodeController) processInbound(in transport.Inbound) {
	frame, err := decodeFrame(in.Frame)
	if err != nil {
		n.logger.Warnf("core: dropping malformed frame from %s: %v", in.Remote, err)
		return
	}
	switch frame.Kind {
	case types.FrameControl:
		n.metrics.FrameReceived("control")
		n.processControl(frame.Control)
	case types.FrameData:
		n.metrics.FrameReceived("data")
		n.routeData(frame)
	}
}

func (n *NodeController) routeData(frame types.Frame) {
	switch frame.Destination {
	case types.DestProcess:
		n.deliverLocalOnly(frame.Process, frame.Message)
	case types.DestChannel:
		if p, ok := n.lookupLocal(frame.Channel.Owner); ok {
			p.channels.Deliver(frame.Channel, frame.Message)
		}
	}
}

// EnqueueControl pushes a locally originated control message into this
// node's own control queue, fed by Process.Link/Unlink/Monitor/Unmonitor.
func (n *NodeController) EnqueueControl(msg types.NCMsg) {
	select {
	case n.control <- msg:
	case <-n.ctx.Done():
	}
}

// dispatchControlTo routes msg to target's control inbox: locally if
// target is this node, otherwise as a Control frame over the transport.
func (n *NodeController) dispatchControlTo(target types.NodeID, msg types.NCMsg) {
	if target == n.id {
		n.EnqueueControl(msg)
		return
	}
	n.sendFrame(target, types.Frame{Kind: types.FrameControl, Destination: types.DestControl, Sender: msg.Sender, Control: msg})
}

func (n *NodeController) processControl(msg types.NCMsg) {
	switch sig := msg.Signal.(type) {
	case types.LinkSignal:
		n.handleLink(msg.Sender, sig.Target, sig.Mirror)
	case types.UnlinkSignal:
		n.handleUnlink(msg.Sender, sig.Target, sig.Mirror)
	case types.MonitorSignal:
		n.handleMonitor(msg.Sender, sig.Target, sig.Ref)
	case types.UnmonitorSignal:
		n.handleUnmonitor(sig.Ref)
	case types.SpawnSignal:
		n.handleSpawn(msg.Sender, sig)
	case types.WhereIsQuery:
		n.handleWhereIs(sig)
	case types.ProcessDiedSignal:
		// Kept reachable for defensive/diagnostic use; in this
		// implementation death propagation is delivered directly to each
		// linker/monitorer by processTerminated rather than broadcast as
		// a control signal (see DESIGN.md).
		n.logger.Debugf("core: process died notice for %s: %s", sig.Pid, sig.Reason)
	default:
		n.logger.Warnf("core: unknown control signal %T", sig)
	}
}

// handleLink installs the target-notifies-sender half of a link (Invariant
// 5), and completes the other half too: when both processes are local,
// directly; when the sender lives elsewhere, by sending a Mirror-tagged
// LinkSignal back to the sender's own node with the roles swapped. Mirror
// stops that reply from mirroring itself again.
func (n *NodeController) handleLink(sender, target types.ProcessID, mirror bool) {
	if target.Node == n.id {
		tp, alive := n.lookupLocal(target)
		sp, senderLocal := (*Process)(nil), false
		if sender.Node == n.id {
			sp, senderLocal = n.lookupLocal(sender)
			if senderLocal {
				sp.linkMu.Lock()
				sp.linksOut[target] = struct{}{}
				sp.linkMu.Unlock()
			}
		}
		if !alive {
			n.deliverExit(sender, target, n.lastReason(target))
			return
		}
		tp.linkMu.Lock()
		tp.linksIn[sender] = struct{}{}
		tp.linkMu.Unlock()

		if senderLocal {
			sp.linkMu.Lock()
			sp.linksIn[target] = struct{}{}
			sp.linkMu.Unlock()
		} else if !mirror {
			n.dispatchControlTo(sender.Node, types.NCMsg{Sender: target, Signal: types.LinkSignal{Target: sender, Mirror: true}})
		}
		return
	}
	if sp, ok := n.lookupLocal(sender); ok {
		sp.linkMu.Lock()
		sp.linksOut[target] = struct{}{}
		sp.linkMu.Unlock()
	}
	n.dispatchControlTo(target.Node, types.NCMsg{Sender: sender, Signal: types.LinkSignal{Target: target}})
}

// handleUnlink tears down both halves of a link installed by handleLink,
// mirroring the removal back to the sender's own node the same way
// handleLink mirrors the installation.
func (n *NodeController) handleUnlink(sender, target types.ProcessID, mirror bool) {
	if target.Node == n.id {
		tp, targetOk := n.lookupLocal(target)
		if targetOk {
			tp.linkMu.Lock()
			delete(tp.linksIn, sender)
			tp.linkMu.Unlock()
		}
		if sender.Node == n.id {
			if sp, ok := n.lookupLocal(sender); ok {
				sp.linkMu.Lock()
				delete(sp.linksIn, target)
				sp.linkMu.Unlock()
			}
			return
		}
		if !mirror {
			n.dispatchControlTo(sender.Node, types.NCMsg{Sender: target, Signal: types.UnlinkSignal{Target: sender, Mirror: true}})
		}
		return
	}
	n.dispatchControlTo(target.Node, types.NCMsg{Sender: sender, Signal: types.UnlinkSignal{Target: target}})
}

func (n *NodeController) handleMonitor(sender, target types.ProcessID, ref types.MonitorRef) {
	if target.Node == n.id {
		tp, alive := n.lookupLocal(target)
		if sender.Node == n.id {
			if sp, ok := n.lookupLocal(sender); ok {
				sp.linkMu.Lock()
				sp.monitorsOut[ref] = target
				sp.linkMu.Unlock()
			}
		}
		if !alive {
			n.deliverMonitorNotification(sender, ref, target, n.lastReason(target))
			return
		}
		tp.linkMu.Lock()
		tp.monitorsIn[ref] = sender
		tp.linkMu.Unlock()
		return
	}
	if sp, ok := n.lookupLocal(sender); ok {
		sp.linkMu.Lock()
		sp.monitorsOut[ref] = target
		sp.linkMu.Unlock()
	}
	n.dispatchControlTo(target.Node, types.NCMsg{Sender: sender, Signal: types.MonitorSignal{Target: target, Ref: ref}})
}

func (n *NodeController) handleUnmonitor(ref types.MonitorRef) {
	if ref.Target.Node == n.id {
		if tp, ok := n.lookupLocal(ref.Target); ok {
			tp.linkMu.Lock()
			delete(tp.monitorsIn, ref)
			tp.linkMu.Unlock()
		}
		return
	}
	n.dispatchControlTo(ref.Target.Node, types.NCMsg{Signal: types.UnmonitorSignal{Ref: ref}})
}

func (n *NodeController) handleSpawn(sender types.ProcessID, sig types.SpawnSignal) {
	action, err := closures.UnClosure[closures.Action](n.table, closures.Closure{Label: sig.Label, Env: sig.Env})
	if err != nil {
		n.logger.Warnf("core: spawn from %s failed to resolve closure %q: %v", sender, sig.Label, err)
		return
	}
	child := n.allocate()
	go n.run(child, action)

	msg, encErr := n.encodeValue(types.DidSpawnSignal{Ref: sig.Ref, Pid: child.pid})
	if encErr != nil {
		return
	}
	_ = n.deliverToProcess(sig.Ref.Requester, msg)
}

// RegisterName binds name to pid in this node's local registry (§4.5
// supplement), overwriting any previous binding. Names are scoped to one
// node; a remote WhereIs resolves them through WhereIsQuery/WhereIsReply.
func (n *NodeController) RegisterName(name string, pid types.ProcessID) {
	n.mu.Lock()
	n.names[name] = pid
	n.mu.Unlock()
}

// UnregisterName removes a binding previously installed by RegisterName.
func (n *NodeController) UnregisterName(name string) {
	n.mu.Lock()
	delete(n.names, name)
	n.mu.Unlock()
}

// whereIsLocal looks name up in this node's own registry only.
func (n *NodeController) whereIsLocal(name string) (types.ProcessID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pid, ok := n.names[name]
	return pid, ok
}

func (n *NodeController) handleWhereIs(q types.WhereIsQuery) {
	pid, found := n.whereIsLocal(q.Name)
	msg, err := n.encodeValue(types.WhereIsReply{Ref: q.Ref, Pid: pid, Found: found})
	if err != nil {
		return
	}
	_ = n.deliverToProcess(q.Ref.Requester, msg)
}

// run executes a spawned process's root Action to completion and
// terminates it with the resulting reason, unless the body already
// terminated itself (Terminate is idempotent).
func (n *NodeController) run(p *Process, action closures.Action) {
	result, err := action(p)
	if err != nil {
		p.Terminate(types.Exception(err.Error()))
		return
	}
	_ = result
	p.Terminate(types.Normal())
}

// allocate registers a fresh Process with a strictly monotonic, never
// reused local index (Invariant 1).
func (n *NodeController) allocate() *Process {
	n.mu.Lock()
	idx := n.nextIndex
	n.nextIndex++
	pid := types.ProcessID{Node: n.id, Local: idx}
	p := newProcess(pid, n, n.serializer)
	n.processes[idx] = p
	n.mu.Unlock()
	return p
}

// SpawnLocal starts body as a brand-new local process, without going
// through the closure/spawn-signal machinery — used for a node's own root
// processes (the ones a Node's owner starts directly, rather than a
// remote spawn request).
func (n *NodeController) SpawnLocal(body ProcessBody) *Process {
	p := n.allocate()
	go n.run(p, WrapBody(body))
	return p
}

func (n *NodeController) lookupLocal(pid types.ProcessID) (*Process, bool) {
	if pid.Node != n.id {
		return nil, false
	}
	n.mu.Lock()
	p, ok := n.processes[pid.Local]
	n.mu.Unlock()
	return p, ok
}

func (n *NodeController) lastReason(pid types.ProcessID) types.DeathReason {
	n.mu.Lock()
	defer n.mu.Unlock()
	if reason, ok := n.deadReasons[pid]; ok {
		return reason
	}
	return types.Unreachable()
}

// processTerminated runs once per process (Terminate is idempotent): it
// notifies every linker and monitorer, local or remote, then releases the
// process's mailbox and channels.
func (n *NodeController) processTerminated(pid types.ProcessID, reason types.DeathReason) {
	n.mu.Lock()
	p, ok := n.processes[pid.Local]
	if ok {
		delete(n.processes, pid.Local)
	}
	n.deadReasons[pid] = reason
	n.mu.Unlock()
	if !ok {
		return
	}

	p.linkMu.Lock()
	linkers := make([]types.ProcessID, 0, len(p.linksIn))
	for l := range p.linksIn {
		linkers = append(linkers, l)
	}
	monitorers := make(map[types.MonitorRef]types.ProcessID, len(p.monitorsIn))
	for ref, m := range p.monitorsIn {
		monitorers[ref] = m
	}
	p.linkMu.Unlock()

	for _, l := range linkers {
		n.deliverExit(l, pid, reason)
	}
	for ref, m := range monitorers {
		n.deliverMonitorNotification(m, ref, pid, reason)
		n.metrics.MonitorNotificationDelivered()
	}

	p.mailbox.Close()
	p.channels.Close()
	n.metrics.ProcessDied(reason.Kind.String())
}

func (n *NodeController) deliverExit(to, from types.ProcessID, reason types.DeathReason) {
	msg, err := n.encodeValue(types.ExitSignal{From: from, Reason: reason})
	if err != nil {
		return
	}
	_ = n.deliverToProcess(to, msg)
}

func (n *NodeController) deliverMonitorNotification(to types.ProcessID, ref types.MonitorRef, target types.ProcessID, reason types.DeathReason) {
	msg, err := n.encodeValue(types.MonitorNotification{Ref: ref, Target: target, Reason: reason})
	if err != nil {
		return
	}
	_ = n.deliverToProcess(to, msg)
}

func (n *NodeController) encodeValue(value interface{}) (types.Message, error) {
	payload, err := n.serializer.Encode(value)
	if err != nil {
		return types.Message{}, err
	}
	return types.Message{Fingerprint: n.serializer.Fingerprint(value), Payload: payload}, nil
}

// deliverToProcess is the data send path (§4.6): local delivery is direct
// and never fails observably; remote delivery is dropped silently if the
// destination's node is marked failed or the send otherwise errors.
func (n *NodeController) deliverToProcess(dest types.ProcessID, msg types.Message) error {
	if dest.Node == n.id {
		n.deliverLocalOnly(dest, msg)
		return nil
	}
	return n.sendFrame(dest.Node, types.Frame{Kind: types.FrameData, Destination: types.DestProcess, Process: dest, Message: msg})
}

func (n *NodeController) deliverLocalOnly(dest types.ProcessID, msg types.Message) {
	if p, ok := n.lookupLocal(dest); ok {
		p.mailbox.Enqueue(msg)
	}
}

// SendChan implements channel.Sender, routing an encoded channel value to
// its owning process, local or remote.
func (n *NodeController) SendChan(id types.ChannelID, value types.Message) error {
	if id.Owner.Node == n.id {
		if p, ok := n.lookupLocal(id.Owner); ok {
			p.channels.Deliver(id, value)
		}
		return nil
	}
	return n.sendFrame(id.Owner.Node, types.Frame{Kind: types.FrameData, Destination: types.DestChannel, Channel: id, Message: value})
}

func (n *NodeController) sendFrame(node types.NodeID, f types.Frame) error {
	conn, err := n.openConnection(node)
	if err != nil {
		return err
	}
	raw, err := encodeFrame(f)
	if err != nil {
		return err
	}
	if err := conn.Send(raw); err != nil {
		n.onConnectionFailed(node)
		return err
	}
	if f.Kind == types.FrameControl {
		n.metrics.FrameSent("control")
	} else {
		n.metrics.FrameSent("data")
	}
	return nil
}

// openConnection implements the send discipline of §4.6: reuse an open
// connection, open a new one if none exists, and refuse synchronously if
// the destination is already marked permanently failed.
func (n *NodeController) openConnection(node types.NodeID) (transport.Connection, error) {
	n.mu.Lock()
	if entry, ok := n.connections[node]; ok {
		state, conn := entry.state, entry.conn
		n.mu.Unlock()
		if state == connFailed {
			return nil, ErrConnectionFailed
		}
		return conn, nil
	}
	n.mu.Unlock()

	conn, err := n.transport.Open(n.ctx, node)
	if err != nil {
		n.mu.Lock()
		n.connections[node] = &connEntry{state: connFailed}
		n.mu.Unlock()
		n.metrics.ConnectionFailed(string(node))
		return nil, err
	}

	n.mu.Lock()
	if existing, ok := n.connections[node]; ok && existing.state == connFailed {
		n.mu.Unlock()
		_ = conn.Close()
		return nil, ErrConnectionFailed
	}
	n.connections[node] = &connEntry{state: connOpen, conn: conn}
	n.mu.Unlock()
	n.metrics.ConnectionOpened(string(node))
	return conn, nil
}

// onConnectionFailed marks node permanently Failed (Invariant 2) and
// synthesizes Disconnected death for every outstanding link/monitor a
// local process held toward a process on node (§4.4).
func (n *NodeController) onConnectionFailed(node types.NodeID) {
	n.mu.Lock()
	entry, ok := n.connections[node]
	if ok && entry.state == connFailed {
		n.mu.Unlock()
		return
	}
	n.connections[node] = &connEntry{state: connFailed}
	procs := make([]*Process, 0, len(n.processes))
	for _, p := range n.processes {
		procs = append(procs, p)
	}
	n.mu.Unlock()

	if ok && entry.conn != nil {
		_ = entry.conn.Close()
	}
	n.metrics.ConnectionFailed(string(node))

	for _, p := range procs {
		p.linkMu.Lock()
		var exits []types.ProcessID
		for target := range p.linksOut {
			if target.Node == node {
				exits = append(exits, target)
				delete(p.linksOut, target)
			}
		}
		var notifications []struct {
			ref    types.MonitorRef
			target types.ProcessID
		}
		for ref, target := range p.monitorsOut {
			if target.Node == node {
				notifications = append(notifications, struct {
					ref    types.MonitorRef
					target types.ProcessID
				}{ref, target})
				delete(p.monitorsOut, ref)
			}
		}
		p.linkMu.Unlock()

		for _, target := range exits {
			n.deliverExit(p.pid, target, types.Disconnected())
		}
		for _, pair := range notifications {
			n.deliverMonitorNotification(p.pid, pair.ref, pair.target, types.Disconnected())
			n.metrics.MonitorNotificationDelivered()
		}
	}
}

// NodeStats is a point-in-time snapshot of live process and open/failed
// connection counts (SPEC_FULL.md §3 supplemented feature). It is not
// exported to prometheus and carries no mailbox-depth data.
type NodeStats struct {
	ProcessCount      int
	OpenConnections   int
	FailedConnections int
}

func (n *NodeController) Stats() NodeStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	stats := NodeStats{ProcessCount: len(n.processes)}
	for _, e := range n.connections {
		if e.state == connOpen {
			stats.OpenConnections++
		} else {
			stats.FailedConnections++
		}
	}
	return stats
}

// Close shuts the Node Controller down: its poll loop, and the transport
// underneath it.
func (n *NodeController) Close() error {
	n.cancel()
	<-n.stopped
	return n.transport.Close()
}
