package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/jabolina/swarm/channel"
	"github.com/jabolina/swarm/closures"
	"github.com/jabolina/swarm/mailbox"
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// ProcessBody is the root computation a spawned process runs, with access
// to its own Process handle — the Go shape of what the source ecosystem
// expresses as a `Process ()` monadic action (§4.5, §9 "Coroutine-style
// expect").
type ProcessBody func(p *Process) (interface{}, error)

// WrapBody adapts a ProcessBody into the context-free closures.Action the
// closures package knows how to resolve and run, recovering the concrete
// *Process from the opaque ctx RunAction threads through.
func WrapBody(body ProcessBody) closures.Action {
	return func(ctx interface{}) (interface{}, error) {
		return body(ctx.(*Process))
	}
}

// Process is a LocalProcess (§4.3): an independently scheduled task owning
// a mailbox, a channel table, and link/monitor bookkeeping, bound to one
// Node Controller.
//
// Link/monitor tables are guarded by linkMu rather than mutated only by
// the owning goroutine, departing from §5's stricter "process serializes
// its own state" model — a local process's NC can install an *incoming*
// link/monitor from another goroutine entirely (the NC's poll loop, or a
// remote frame handler). A per-process mutex is the idiomatic Go way to
// make that safe without routing every bookkeeping update through a
// second internal actor loop. It follows
// the same lock-guarded-shared-state shape reign's remoteMailboxes uses
// for its own link/notify bookkeeping.
type Process struct {
	pid  types.ProcessID
	node *NodeController

	mailbox  *mailbox.CQueue
	chanCond *sync.Cond
	channels *channel.Registry

	counterMu      sync.Mutex
	monitorCounter uint64
	spawnCounter   uint64

	linkMu      sync.Mutex
	linksOut    map[types.ProcessID]struct{}
	linksIn     map[types.ProcessID]struct{}
	monitorsOut map[types.MonitorRef]types.ProcessID
	monitorsIn  map[types.MonitorRef]types.ProcessID

	doneOnce sync.Once
	done     chan struct{}
}

func newProcess(pid types.ProcessID, node *NodeController, ser *serialize.GobSerializer) *Process {
	p := &Process{
		pid:         pid,
		node:        node,
		mailbox:     mailbox.New(),
		chanCond:    sync.NewCond(&sync.Mutex{}),
		linksOut:    make(map[types.ProcessID]struct{}),
		linksIn:     make(map[types.ProcessID]struct{}),
		monitorsOut: make(map[types.MonitorRef]types.ProcessID),
		monitorsIn:  make(map[types.MonitorRef]types.ProcessID),
		done:        make(chan struct{}),
	}
	p.channels = channel.NewRegistry(pid, p.chanCond, ser)
	return p
}

// GetSelfPid returns this process's own identifier.
func (p *Process) GetSelfPid() types.ProcessID { return p.pid }

// GetSelfNode returns the NodeId this process lives on.
func (p *Process) GetSelfNode() types.NodeID { return p.pid.Node }

// Serializer exposes the gob serializer backing this process's node, for
// callers building their own mailbox.Matcher values.
func (p *Process) Serializer() *serialize.GobSerializer { return p.node.serializer }

// Send is fire-and-forget (§4.3): it never fails observably at the call
// site. It may block while the Node Controller establishes a connection;
// return never implies delivery.
func (p *Process) Send(dest types.ProcessID, value interface{}) {
	msg, err := p.node.encodeValue(value)
	if err != nil {
		return
	}
	_ = p.node.deliverToProcess(dest, msg)
}

// Expect blocks until a message decodable as T arrives, matching spec's
// `expect :: Process T`.
func Expect[T any](p *Process) (T, bool) {
	return receiveOne[T](p, mailbox.Blocking, 0)
}

// ExpectTimeout is Expect bounded by a deadline (§5 cancellation
// primitives plus the SPEC_FULL.md CallTimeout/ExpectTimeout supplement).
func ExpectTimeout[T any](p *Process, timeout time.Duration) (T, bool) {
	return receiveOne[T](p, mailbox.Timeout, timeout)
}

func receiveOne[T any](p *Process, mode mailbox.BlockMode, timeout time.Duration) (T, bool) {
	var zero T
	matchers := []mailbox.Matcher{mailbox.MatchType[T](p.node.serializer, func(v T) interface{} { return v })}
	result, ok, err := p.mailbox.Receive(mode, timeout, matchers)
	if err != nil {
		p.Terminate(types.Exception(err.Error()))
		return zero, false
	}
	if !ok {
		return zero, false
	}
	return result.(T), true
}

// ReceiveWait is a selective receive over caller-supplied matchers,
// blocking until one matches (§4.1).
func (p *Process) ReceiveWait(matchers ...mailbox.Matcher) (interface{}, bool) {
	result, ok, err := p.mailbox.Receive(mailbox.Blocking, 0, matchers)
	if err != nil {
		p.Terminate(types.Exception(err.Error()))
		return nil, false
	}
	return result, ok
}

// ReceiveTimeout is ReceiveWait bounded by a deadline; 0 never blocks.
func (p *Process) ReceiveTimeout(timeout time.Duration, matchers ...mailbox.Matcher) (interface{}, bool) {
	mode := mailbox.Timeout
	if timeout <= 0 {
		mode = mailbox.NonBlocking
	}
	result, ok, err := p.mailbox.Receive(mode, timeout, matchers)
	if err != nil {
		p.Terminate(types.Exception(err.Error()))
		return nil, false
	}
	return result, ok
}

// NewChan allocates a fresh typed channel owned by this process (§4.2).
func NewChan[T any](p *Process) (channel.SendPort[T], channel.ReceivePort[T]) {
	return channel.NewChan[T](p.channels)
}

// SendChan transmits value on port, local or remote (§4.2).
func SendChan[T any](p *Process, port channel.SendPort[T], value T) {
	channel.SendChan[T](p.node, p.node.serializer, port, value)
}

// ReceiveChan atomically selects across port's tree (§4.2).
func ReceiveChan[T any](port channel.ReceivePort[T], mode channel.BlockMode, timeout time.Duration) (T, bool) {
	return channel.ReceiveChan[T](port, mode, timeout)
}

// RegisterName binds name to this process in its node's local registry
// (§4.5 supplement), so other processes can find it with WhereIs without
// the PID ever leaving the node out of band.
func (p *Process) RegisterName(name string) {
	p.node.RegisterName(name, p.pid)
}

// UnregisterName removes a binding installed by RegisterName.
func (p *Process) UnregisterName(name string) {
	p.node.UnregisterName(name)
}

// Link installs a bidirectional failure-propagation relation to target
// (§4.4). If target is already dead, an ExitSignal with its last known
// reason arrives promptly in this process's mailbox.
func (p *Process) Link(target types.ProcessID) {
	p.linkMu.Lock()
	p.linksOut[target] = struct{}{}
	p.linkMu.Unlock()
	p.node.EnqueueControl(types.NCMsg{Sender: p.pid, Signal: types.LinkSignal{Target: target}})
}

// Unlink removes a previously installed link.
func (p *Process) Unlink(target types.ProcessID) {
	p.linkMu.Lock()
	delete(p.linksOut, target)
	p.linkMu.Unlock()
	p.node.EnqueueControl(types.NCMsg{Sender: p.pid, Signal: types.UnlinkSignal{Target: target}})
}

// Monitor installs a one-shot subscription to target's death, returning a
// MonitorRef correlating the eventual MonitorNotification (§4.4).
func (p *Process) Monitor(target types.ProcessID) types.MonitorRef {
	p.counterMu.Lock()
	p.monitorCounter++
	ref := types.MonitorRef{Target: target, Counter: p.monitorCounter}
	p.counterMu.Unlock()

	p.linkMu.Lock()
	p.monitorsOut[ref] = target
	p.linkMu.Unlock()

	p.node.EnqueueControl(types.NCMsg{Sender: p.pid, Signal: types.MonitorSignal{Target: target, Ref: ref}})
	return ref
}

// Unmonitor removes an installed monitor. Per §8's boundary behavior, a
// notification already enqueued before this call is not retracted.
func (p *Process) Unmonitor(ref types.MonitorRef) {
	p.linkMu.Lock()
	delete(p.monitorsOut, ref)
	p.linkMu.Unlock()
	p.node.EnqueueControl(types.NCMsg{Sender: p.pid, Signal: types.UnmonitorSignal{Ref: ref}})
}

// Terminate ends the process with reason (§4.3, §7): it closes Done,
// records the reason, notifies every linker/monitorer and closes the
// mailbox and channels. It does not unwind the calling goroutine; the body
// keeps running until it returns. Safe to call more than once or
// concurrently; only the first call has effect.
func (p *Process) Terminate(reason types.DeathReason) {
	p.doneOnce.Do(func() {
		close(p.done)
		p.node.processTerminated(p.pid, reason)
	})
}

// Catch runs body and recovers any panic it raises, returning the panic
// value as err; it does not terminate the process, leaving the caller to
// act on or propagate the error. It does not intercept remote death
// signals delivered via the mailbox, those are ordinary messages (§4.3).
func (p *Process) Catch(body func() (interface{}, error)) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return body()
}

// UnClosure resolves c against the node's RemoteTable (§4.5).
func UnClosure[T any](p *Process, c closures.Closure) (T, error) {
	return closures.UnClosure[T](p.node.table, c)
}

// Done is closed once Terminate has run, for callers (e.g. the NC's
// connection-failure synthesis, tests) that need to observe exit without
// going through the mailbox.
func (p *Process) Done() <-chan struct{} { return p.done }
