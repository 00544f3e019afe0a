// Package swarm is a Cloud Haskell-style process runtime: lightweight,
// location-transparent processes exchanging typed messages over a
// pluggable Transport, with monitoring, linking, typed channels, and
// serializable closures for remote spawn.
//
// A Node owns one Transport and one RemoteTable; Process is the handle a
// spawned unit of work uses to talk to the rest of the system. See node.go
// and process.go.
package swarm

import (
	"github.com/jabolina/swarm/closures"
	"github.com/jabolina/swarm/core"
	"github.com/jabolina/swarm/serialize"
)

// RemoteTable is re-exported so callers can register their own spawnable
// bodies without importing the closures package directly.
type RemoteTable = closures.RemoteTable

// Closure is a serializable deferred computation (§4.5 of the design this
// module implements).
type Closure = closures.Closure

// NewRemoteTable builds a table pre-populated with the standard
// sequence/bind labels. The call-proxy label is added when a Node is built
// on the table.
func NewRemoteTable(ser *serialize.GobSerializer) *RemoteTable {
	return closures.NewRemoteTable(ser)
}

// RegisterBody names label so a remote spawn/call can resolve it into a
// ProcessBody: reconstruct decodes the closure's environment into Env,
// then builds the computation that will run with a live *Process handle.
// ser must be the same serializer the owning Node was built with.
func RegisterBody[Env any](table *RemoteTable, ser *serialize.GobSerializer, label string, reconstruct func(Env) ProcessBody) {
	closures.Register[closures.Action](table, label, func(raw []byte) (closures.Action, error) {
		var env Env
		if err := ser.Decode(raw, &env); err != nil {
			return nil, err
		}
		return core.WrapBody(reconstruct(env)), nil
	})
}

// MakeClosure gob-encodes env under label, ready to pass to Spawn/Call.
func MakeClosure(ser *serialize.GobSerializer, label string, env interface{}) (Closure, error) {
	return closures.MakeClosure(ser, label, env)
}
