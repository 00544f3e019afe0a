// Package types holds the wire-level data model shared by every other
// package in swarm: identifiers, the tagged Message envelope, death reasons
// and the Node Controller's control signals.
package types

import "fmt"

// NodeID is the opaque transport endpoint address of a node. It is a plain
// string so that it is comparable and usable as a map key without any
// helper hashing, and persists for the lifetime of the node.
type NodeID string

// ProcessID identifies a single process. Local is assigned by the owning
// node from a strictly monotonic counter and is never reused within that
// node's lifetime (Invariant 1).
type ProcessID struct {
	Node  NodeID
	Local uint64
}

func (p ProcessID) String() string {
	return fmt.Sprintf("%s:%d", p.Node, p.Local)
}

// Less gives a total order over ProcessIDs. Nothing in swarm calls it: link
// handling installs each direction separately and needs no tie-break.
func (p ProcessID) Less(other ProcessID) bool {
	if p.Node != other.Node {
		return p.Node < other.Node
	}
	return p.Local < other.Local
}

// ChannelID identifies a typed channel. A channel is owned by exactly one
// process and dies with it.
type ChannelID struct {
	Owner ProcessID
	Local uint64
}

func (c ChannelID) String() string {
	return fmt.Sprintf("%s#%d", c.Owner, c.Local)
}

// MonitorRef uniquely identifies a single monitor installation, so that
// unmonitor and a delivered notification can be correlated. Counter is
// drawn from the monitoring process.
type MonitorRef struct {
	Target  ProcessID
	Counter uint64
}

func (m MonitorRef) String() string {
	return fmt.Sprintf("monitor(%s,%d)", m.Target, m.Counter)
}

// SpawnRef correlates a remote Spawn request with its DidSpawn reply.
// Counter is drawn from the requesting process.
type SpawnRef struct {
	Requester ProcessID
	Counter   uint64
}

func (s SpawnRef) String() string {
	return fmt.Sprintf("spawn(%s,%d)", s.Requester, s.Counter)
}
