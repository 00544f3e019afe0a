// Package inmem is a loopback Transport implementation for tests and
// single-process examples: nodes exchange frames through Go channels
// instead of real sockets, with the same connection-oriented, per-pair
// ordered delivery shape as the ws transport.
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/jabolina/swarm/transport"
	"github.com/jabolina/swarm/types"
)

// ErrNoSuchNode is returned by Open when the target address was never
// registered in the shared Network.
var ErrNoSuchNode = errors.New("inmem: no such node registered")

// Network is the shared registry every inmem.Transport in one test or
// example process must be built against, standing in for a real network's
// global reachability.
type Network struct {
	mu    sync.Mutex
	nodes map[types.NodeID]*Transport
}

func NewNetwork() *Network {
	return &Network{nodes: make(map[types.NodeID]*Transport)}
}

// Transport is one node's endpoint on a Network. Each open Connection is
// backed by a buffered channel read by the peer's deliver loop, which
// preserves per-connection order (Invariant 3) since a single channel is
// inherently FIFO.
type Transport struct {
	net     *Network
	address types.NodeID

	mu      sync.Mutex
	peers   map[types.NodeID]*conn
	closed  bool

	inbound  chan transport.Inbound
	failures chan transport.Failure
}

// New registers a transport for address on net and returns it.
func New(net *Network, address types.NodeID) *Transport {
	t := &Transport{
		net:      net,
		address:  address,
		peers:    make(map[types.NodeID]*conn),
		inbound:  make(chan transport.Inbound, 256),
		failures: make(chan transport.Failure, 16),
	}
	net.mu.Lock()
	net.nodes[address] = t
	net.mu.Unlock()
	return t
}

type conn struct {
	local, remote types.NodeID
	peer          *Transport
	mu            sync.Mutex
	closed        bool
}

func (c *conn) Send(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("inmem: connection closed")
	}
	c.mu.Unlock()

	cp := make([]byte, len(frame))
	copy(cp, frame)

	c.peer.mu.Lock()
	closed := c.peer.closed
	c.peer.mu.Unlock()
	if closed {
		c.breakConnection()
		return errors.New("inmem: peer closed")
	}

	select {
	case c.peer.inbound <- transport.Inbound{Remote: c.local, Frame: cp}:
		return nil
	default:
		c.breakConnection()
		return errors.New("inmem: peer inbound buffer full")
	}
}

func (c *conn) breakConnection() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	select {
	case c.peer.failures <- transport.Failure{Remote: c.local}:
	default:
	}
}

func (c *conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *conn) Remote() types.NodeID { return c.remote }

// Open returns the (lazily created) connection to address, or
// ErrNoSuchNode if no Transport in the Network answers to it.
func (t *Transport) Open(ctx context.Context, address types.NodeID) (transport.Connection, error) {
	t.mu.Lock()
	if c, ok := t.peers[address]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	t.net.mu.Lock()
	peer, ok := t.net.nodes[address]
	t.net.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchNode
	}

	c := &conn{local: t.address, remote: address, peer: peer}
	t.mu.Lock()
	t.peers[address] = c
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) Inbound() <-chan transport.Inbound   { return t.inbound }
func (t *Transport) Failures() <-chan transport.Failure  { return t.failures }
func (t *Transport) LocalAddress() types.NodeID          { return t.address }

// Close marks this transport closed and closes its own connections: further
// Sends on them, or directed at it from another node, fail with an error,
// mirroring a dropped socket. Close itself pushes no Failure event to any
// peer.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	peers := make([]*conn, 0, len(t.peers))
	for _, c := range t.peers {
		peers = append(peers, c)
	}
	t.mu.Unlock()
	for _, c := range peers {
		_ = c.Close()
	}
	t.net.mu.Lock()
	delete(t.net.nodes, t.address)
	t.net.mu.Unlock()
	return nil
}

// Sever breaks the connection between two specific nodes in the Network
// without closing either transport outright, for "monitor across
// disconnect" style tests (spec §8 scenario 4). Each side that had an open
// connection to the other sees a Failure for it on its own Failures().
func Sever(net *Network, a, b types.NodeID) {
	net.mu.Lock()
	ta, aok := net.nodes[a]
	tb, bok := net.nodes[b]
	net.mu.Unlock()
	if aok {
		ta.mu.Lock()
		if c, ok := ta.peers[b]; ok {
			c.breakConnection()
			select {
			case ta.failures <- transport.Failure{Remote: b}:
			default:
			}
		}
		ta.mu.Unlock()
	}
	if bok {
		tb.mu.Lock()
		if c, ok := tb.peers[a]; ok {
			c.breakConnection()
			select {
			case tb.failures <- transport.Failure{Remote: a}:
			default:
			}
		}
		tb.mu.Unlock()
	}
}
