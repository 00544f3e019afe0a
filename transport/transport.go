// Package transport defines the Transport interface the core consumes
// (§6): an endpoint-addressed, connection-oriented, reliable,
// order-preserving byte-stream service with explicit connection-failure
// events. Concrete implementations live in the inmem and ws subpackages.
package transport

import (
	"context"

	"github.com/jabolina/swarm/types"
)

// Connection is one open, ordered, reliable byte-stream to a remote node.
type Connection interface {
	// Send writes one frame; per-connection order is preserved end to
	// end (Invariant 3).
	Send(frame []byte) error
	// Close releases local resources for this connection. It does not by
	// itself notify the peer; use Transport's failure events for that.
	Close() error
	Remote() types.NodeID
}

// Failure reports that a Connection broke — the Node Controller treats
// this as permanent (Invariant 2); no reconnection is attempted.
type Failure struct {
	Remote types.NodeID
}

// Inbound is one frame read off an open connection.
type Inbound struct {
	Remote types.NodeID
	Frame  []byte
}

// Transport is the abstract network service the core is built against. It
// is never implemented by the core itself — it is always supplied, real
// (ws) or in-process (inmem), mirroring §6's external-collaborator
// boundary.
type Transport interface {
	// Open establishes (or returns an already-open) connection to
	// address. May block.
	Open(ctx context.Context, address types.NodeID) (Connection, error)
	// Inbound is the stream of frames arriving on any connection;
	// connection-failure events arrive separately on Failures. A single inbound
	// connection's frames are always delivered in the order they
	// arrived (§4.4 ordering requirement).
	Inbound() <-chan Inbound
	// Failures reports connections the transport has given up on.
	Failures() <-chan Failure
	// LocalAddress is this transport's own endpoint address.
	LocalAddress() types.NodeID
	// Close shuts the transport down, closing every open connection.
	Close() error
}
