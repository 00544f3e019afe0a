package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/jabolina/swarm/closures"
	"github.com/jabolina/swarm/mailbox"
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// ErrCallFailed wraps the remote proxy's error when Call's inner closure
// fails to run to completion.
var ErrCallFailed = errors.New("core: call proxy did not complete")

// SpawnAsync asks node to resolve and run c, returning a SpawnRef that
// correlates the eventual DidSpawn reply (§4.5).
func SpawnAsync(p *Process, node types.NodeID, c closures.Closure) types.SpawnRef {
	p.counterMu.Lock()
	p.spawnCounter++
	ref := types.SpawnRef{Requester: p.pid, Counter: p.spawnCounter}
	p.counterMu.Unlock()

	p.node.dispatchControlTo(node, types.NCMsg{
		Sender: p.pid,
		Signal: types.SpawnSignal{Label: c.Label, Env: c.Env, Ref: ref},
	})
	return ref
}

// Spawn is SpawnAsync followed by an Expect on the matching DidSpawn
// (§4.5).
func Spawn(p *Process, node types.NodeID, c closures.Closure) (types.ProcessID, error) {
	ref := SpawnAsync(p, node, c)
	return awaitDidSpawn(p, ref)
}

func awaitDidSpawn(p *Process, ref types.SpawnRef) (types.ProcessID, error) {
	matchers := []mailbox.Matcher{
		mailbox.MatchIf[types.DidSpawnSignal](p.node.serializer,
			func(d types.DidSpawnSignal) bool { return d.Ref == ref },
			func(d types.DidSpawnSignal) interface{} { return d.Pid },
		),
	}
	result, ok, err := p.mailbox.Receive(mailbox.Blocking, 0, matchers)
	if err != nil {
		return types.ProcessID{}, err
	}
	if !ok {
		return types.ProcessID{}, fmt.Errorf("core: spawn %s: no reply", ref)
	}
	return result.(types.ProcessID), nil
}

// SpawnSupervised spawns c on node, links the caller to the child, and
// installs a monitor from the caller on the child, returning both (§4.5).
func SpawnSupervised(p *Process, node types.NodeID, c closures.Closure) (types.ProcessID, types.MonitorRef, error) {
	child, err := Spawn(p, node, c)
	if err != nil {
		return types.ProcessID{}, types.MonitorRef{}, err
	}
	p.Link(child)
	ref := p.Monitor(child)
	return child, ref, nil
}

// callEnv is the environment of the fixed "core/call" proxy closure: run
// Inner and send its result back to Caller.
type callEnv struct {
	Inner  closures.Closure
	Caller types.ProcessID
}

const callProxyLabel = "core/call"

func registerCallProxy(table *closures.RemoteTable, ser *serialize.GobSerializer) {
	closures.Register[closures.Action](table, callProxyLabel, func(env []byte) (closures.Action, error) {
		var ce callEnv
		if err := ser.Decode(env, &ce); err != nil {
			return nil, err
		}
		return WrapBody(func(p *Process) (interface{}, error) {
			result, err := closures.RunAction(table, ce.Inner, p)
			if err != nil {
				p.Terminate(types.Exception(err.Error()))
				return nil, err
			}
			p.Send(ce.Caller, result)
			p.Terminate(types.Normal())
			return result, nil
		}), nil
	})
}

// Call spawns a proxy on node that runs c and sends its result back,
// returning once the reply is matched or the proxy is observed to die
// first (§4.5). T must match the concrete type c's inner Action produces.
func Call[T any](p *Process, node types.NodeID, c closures.Closure) (T, error) {
	var zero T
	env, err := p.node.serializer.Encode(callEnv{Inner: c, Caller: p.pid})
	if err != nil {
		return zero, err
	}
	child, err := Spawn(p, node, closures.Closure{Label: callProxyLabel, Env: env})
	if err != nil {
		return zero, err
	}
	ref := p.Monitor(child)
	defer p.Unmonitor(ref)

	type outcome struct {
		value T
		err   error
	}
	matchers := []mailbox.Matcher{
		mailbox.MatchType[T](p.node.serializer, func(v T) interface{} {
			return outcome{value: v}
		}),
		mailbox.MatchIf[types.MonitorNotification](p.node.serializer,
			func(m types.MonitorNotification) bool { return m.Ref == ref },
			func(m types.MonitorNotification) interface{} {
				return outcome{err: fmt.Errorf("%w: %s", ErrCallFailed, m.Reason)}
			},
		),
	}
	result, ok, err := p.mailbox.Receive(mailbox.Blocking, 0, matchers)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("core: call to %s: no reply", node)
	}
	out := result.(outcome)
	return out.value, out.err
}

// CallTimeout is Call bounded by a deadline (SPEC_FULL.md §3 supplement).
func CallTimeout[T any](p *Process, node types.NodeID, c closures.Closure, timeout time.Duration) (T, error) {
	var zero T
	done := make(chan struct{})
	var value T
	var err error
	go func() {
		value, err = Call[T](p, node, c)
		close(done)
	}()
	select {
	case <-done:
		return value, err
	case <-time.After(timeout):
		return zero, fmt.Errorf("core: call to %s: %w", node, ErrCallTimedOut)
	}
}

var ErrCallTimedOut = errors.New("call timed out")

// ErrNameNotFound is returned by WhereIs when node has no process
// registered under the requested name.
var ErrNameNotFound = errors.New("core: name not registered")

// WhereIs asks node's local name registry to resolve name, blocking until
// the reply arrives (§4.5 supplement).
func WhereIs(p *Process, node types.NodeID, name string) (types.ProcessID, error) {
	p.counterMu.Lock()
	p.monitorCounter++
	ref := types.WhereIsRef{Requester: p.pid, Counter: p.monitorCounter}
	p.counterMu.Unlock()

	p.node.dispatchControlTo(node, types.NCMsg{
		Sender: p.pid,
		Signal: types.WhereIsQuery{Target: node, Name: name, Ref: ref},
	})

	matchers := []mailbox.Matcher{
		mailbox.MatchIf[types.WhereIsReply](p.node.serializer,
			func(r types.WhereIsReply) bool { return r.Ref == ref },
			func(r types.WhereIsReply) interface{} { return r },
		),
	}
	result, ok, err := p.mailbox.Receive(mailbox.Blocking, 0, matchers)
	if err != nil {
		return types.ProcessID{}, err
	}
	if !ok {
		return types.ProcessID{}, fmt.Errorf("core: whereis %q on %s: no reply", name, node)
	}
	reply := result.(types.WhereIsReply)
	if !reply.Found {
		return types.ProcessID{}, fmt.Errorf("%w: %q on %s", ErrNameNotFound, name, node)
	}
	return reply.Pid, nil
}

// WhereIsTimeout is WhereIs bounded by a deadline.
func WhereIsTimeout(p *Process, node types.NodeID, name string, timeout time.Duration) (types.ProcessID, error) {
	done := make(chan struct{})
	var pid types.ProcessID
	var err error
	go func() {
		pid, err = WhereIs(p, node, name)
		close(done)
	}()
	select {
	case <-done:
		return pid, err
	case <-time.After(timeout):
		return types.ProcessID{}, fmt.Errorf("core: whereis %q on %s: %w", name, node, ErrCallTimedOut)
	}
}
