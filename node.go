package swarm

import (
	"github.com/jabolina/swarm/config"
	"github.com/jabolina/swarm/core"
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/telemetry"
	"github.com/jabolina/swarm/transport"
	"github.com/jabolina/swarm/types"
)

// NodeID names one endpoint in the swarm (§2).
type NodeID = types.NodeID

// ProcessID names one process, unique for the lifetime of the node that
// allocated it (§4.3, Invariant 1).
type ProcessID = types.ProcessID

// NodeStats is a point-in-time snapshot of a node's live process and
// connection counts.
type NodeStats = core.NodeStats

// Node is the public entry point a program boots once per address: it owns
// a Transport, a RemoteTable of spawnable closures, and the Node
// Controller that serializes every link/monitor/spawn/frame decision for
// the processes it hosts (§4.4).
type Node struct {
	id    NodeID
	table *RemoteTable
	ser   *serialize.GobSerializer
	nc    *core.NodeController
}

// NewNode starts a Node bound to tr, logging and publishing metrics through
// logger/metrics. table may be nil to get a fresh one, pre-populated with
// the standard sequence/bind/call-proxy labels; register any application
// closures on it before the node starts accepting remote spawn requests.
func NewNode(id NodeID, tr transport.Transport, table *RemoteTable, logger telemetry.Logger, metrics telemetry.Metrics) *Node {
	ser := serialize.NewGobSerializer()
	if table == nil {
		table = NewRemoteTable(ser)
	}
	return &Node{
		id:    id,
		table: table,
		ser:   ser,
		nc:    core.NewNodeController(id, tr, table, ser, logger, metrics),
	}
}

// NewNodeFromConfig is NewNode with its debug toggle read from cfg, as
// produced by the node's own envfile-driven boot sequence (config.Load).
// cfg's addresses and protocol version are not used here.
func NewNodeFromConfig(id NodeID, tr transport.Transport, table *RemoteTable, cfg config.NodeConfig) *Node {
	logger := telemetry.NewLogger(string(id), cfg.Debug)
	return NewNode(id, tr, table, logger, telemetry.NoopMetrics{})
}

// ID returns this node's own address.
func (n *Node) ID() NodeID { return n.id }

// Table exposes the RemoteTable backing this node, for registering
// spawnable bodies before the node starts accepting spawn requests.
func (n *Node) Table() *RemoteTable { return n.table }

// Serializer exposes the gob serializer this node encodes/decodes with,
// needed to build Closures with MakeClosure.
func (n *Node) Serializer() *serialize.GobSerializer { return n.ser }

// Spawn starts body as a brand-new local root process (§4.3), bypassing
// the closure/spawn-signal machinery reserved for remote spawn requests.
func (n *Node) Spawn(body ProcessBody) *Process {
	return n.nc.SpawnLocal(body)
}

// Stats is a snapshot of this node's live process and connection counts.
func (n *Node) Stats() NodeStats { return n.nc.Stats() }

// Close stops this node's controller and the transport underneath it.
func (n *Node) Close() error { return n.nc.Close() }
