package swarm

import (
	"time"

	"github.com/jabolina/swarm/channel"
	"github.com/jabolina/swarm/core"
	"github.com/jabolina/swarm/mailbox"
	"github.com/jabolina/swarm/types"
)

// Process is the handle a spawned unit of work uses to send, receive,
// link, monitor, and spawn further work (§4.3).
type Process = core.Process

// ProcessBody is the root computation a spawned process runs.
type ProcessBody = core.ProcessBody

// MonitorRef correlates a Monitor call with its eventual notification.
type MonitorRef = types.MonitorRef

// DeathReason is why a process stopped: Normal, Exception, Disconnected,
// Unreachable, or LinkedDeath (§4.4).
type DeathReason = types.DeathReason

// ReasonKind discriminates the cases of a DeathReason.
type ReasonKind = types.ReasonKind

const (
	ReasonNormal       = types.ReasonNormal
	ReasonException    = types.ReasonException
	ReasonDisconnected = types.ReasonDisconnected
	ReasonUnreachable  = types.ReasonUnreachable
	ReasonLinkedDeath  = types.ReasonLinkedDeath
)

// ExitSignal is delivered into a linked process's mailbox once its peer
// terminates (§4.4).
type ExitSignal = types.ExitSignal

// MonitorNotification is delivered into a monitor's owner mailbox at most
// once per installed MonitorRef (§4.4, Invariant 4).
type MonitorNotification = types.MonitorNotification

// SendPort is the write end of a typed channel (§4.2).
type SendPort[T any] = channel.SendPort[T]

// ReceivePort is the read end of a typed channel, possibly a merge of
// several via MergePortsBiased/MergePortsRoundRobin (§4.2).
type ReceivePort[T any] = channel.ReceivePort[T]

// BlockMode selects how a receive waits: Blocking, NonBlocking, or Timeout.
type BlockMode = channel.BlockMode

const (
	Blocking    = channel.BlockingMode
	NonBlocking = channel.NonBlockingMode
	Timeout     = channel.TimeoutMode
)

// Matcher is one clause of a selective receive (§4.1).
type Matcher = mailbox.Matcher

// Expect blocks until a message decodable as T arrives.
func Expect[T any](p *Process) (T, bool) { return core.Expect[T](p) }

// ExpectTimeout is Expect bounded by a deadline.
func ExpectTimeout[T any](p *Process, timeout time.Duration) (T, bool) {
	return core.ExpectTimeout[T](p, timeout)
}

// MatchType builds a Matcher accepting the first mailbox entry decodable
// as T.
func MatchType[T any](p *Process, project func(T) interface{}) Matcher {
	return mailbox.MatchType[T](p.Serializer(), project)
}

// MatchIf builds a Matcher accepting the first mailbox entry decodable as
// T for which keep returns true.
func MatchIf[T any](p *Process, keep func(T) bool, project func(T) interface{}) Matcher {
	return mailbox.MatchIf[T](p.Serializer(), keep, project)
}

// NewChan allocates a fresh typed channel owned by p (§4.2).
func NewChan[T any](p *Process) (SendPort[T], ReceivePort[T]) { return core.NewChan[T](p) }

// SendChan transmits value on port, local or remote (§4.2).
func SendChan[T any](p *Process, port SendPort[T], value T) { core.SendChan[T](p, port, value) }

// ReceiveChan atomically selects across port's merge tree (§4.2).
func ReceiveChan[T any](port ReceivePort[T], mode BlockMode, timeout time.Duration) (T, bool) {
	return core.ReceiveChan[T](port, mode, timeout)
}

// MergePortsBiased prefers earlier ports on simultaneous availability.
func MergePortsBiased[T any](ports ...ReceivePort[T]) ReceivePort[T] {
	return channel.MergePortsBiased[T](ports...)
}

// MergePortsRoundRobin cycles fairly across ports across successive
// receives.
func MergePortsRoundRobin[T any](ports ...ReceivePort[T]) ReceivePort[T] {
	return channel.MergePortsRR[T](ports...)
}

// UnClosure resolves c against the owning node's RemoteTable (§4.5).
func UnClosure[T any](p *Process, c Closure) (T, error) { return core.UnClosure[T](p, c) }

// Spawn resolves c on node and blocks until the spawned process reports
// its identity (§4.5).
func Spawn(p *Process, node NodeID, c Closure) (ProcessID, error) { return core.Spawn(p, node, c) }

// SpawnAsync is Spawn without waiting for the DidSpawn reply.
func SpawnAsync(p *Process, node NodeID, c Closure) types.SpawnRef {
	return core.SpawnAsync(p, node, c)
}

// SpawnSupervised spawns c on node, links the caller to the child, and
// monitors it, returning both (§4.5).
func SpawnSupervised(p *Process, node NodeID, c Closure) (ProcessID, MonitorRef, error) {
	return core.SpawnSupervised(p, node, c)
}

// Call spawns a proxy on node that runs c and returns its result, or an
// error if the proxy dies first (§4.5).
func Call[T any](p *Process, node NodeID, c Closure) (T, error) { return core.Call[T](p, node, c) }

// CallTimeout is Call bounded by a deadline.
func CallTimeout[T any](p *Process, node NodeID, c Closure, timeout time.Duration) (T, error) {
	return core.CallTimeout[T](p, node, c, timeout)
}

// WhereIs resolves name against node's local registry, blocking until the
// reply arrives (§4.5 supplement).
func WhereIs(p *Process, node NodeID, name string) (ProcessID, error) {
	return core.WhereIs(p, node, name)
}

// WhereIsTimeout is WhereIs bounded by a deadline.
func WhereIsTimeout(p *Process, node NodeID, name string, timeout time.Duration) (ProcessID, error) {
	return core.WhereIsTimeout(p, node, name, timeout)
}
