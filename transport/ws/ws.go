// Package ws is the default Transport implementation: one gorilla/websocket
// connection per destination node, dialed lazily and read by a dedicated
// per-connection goroutine that preserves arrival order (spec §4.4
// ordering, Invariant 3).
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jabolina/swarm/telemetry"
	"github.com/jabolina/swarm/transport"
	"github.com/jabolina/swarm/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Transport listens on one local address and dials peers on demand, one
// socket per destination.
type Transport struct {
	local  types.NodeID
	log    telemetry.Logger
	server *http.Server

	mu    sync.Mutex
	conns map[types.NodeID]*connection
	closed bool

	inbound  chan transport.Inbound
	failures chan transport.Failure
}

// Listen starts an HTTP server accepting websocket upgrades at path "/" on
// listenAddr, and returns a Transport advertising local as its own address
// (which need not equal listenAddr — e.g. behind a load balancer).
func Listen(local types.NodeID, listenAddr string, log telemetry.Logger) (*Transport, error) {
	t := &Transport{
		local:    local,
		log:      log,
		conns:    make(map[types.NodeID]*connection),
		inbound:  make(chan transport.Inbound, 256),
		failures: make(chan transport.Failure, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", t.handleUpgrade)
	t.server = &http.Server{Addr: listenAddr, Handler: mux}

	ln, err := newListener(listenAddr)
	if err != nil {
		return nil, fmt.Errorf("ws: listen %s: %w", listenAddr, err)
	}
	go func() {
		if err := t.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.log.Errorf("ws: serve: %v", err)
		}
	}()
	return t, nil
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	remote := types.NodeID(r.URL.Query().Get("node"))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Warnf("ws: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	c := t.register(remote, conn)
	go t.readLoop(c)
}

type connection struct {
	remote types.NodeID
	t      *Transport
	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func (t *Transport) register(remote types.NodeID, ws *websocket.Conn) *connection {
	c := &connection{remote: remote, t: t, ws: ws}
	t.mu.Lock()
	if old, ok := t.conns[remote]; ok {
		old.closeLocked()
	}
	t.conns[remote] = c
	t.mu.Unlock()
	return c
}

func (t *Transport) readLoop(c *connection) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail()
			return
		}
		select {
		case c.t.inbound <- transport.Inbound{Remote: c.remote, Frame: data}:
		default:
			c.t.log.Warnf("ws: inbound buffer full, dropping frame from %s", c.remote)
		}
	}
}

func (c *connection) fail() {
	c.closeLocked()
	select {
	case c.t.failures <- transport.Failure{Remote: c.remote}:
	default:
	}
}

func (c *connection) closeLocked() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}

func (c *connection) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("ws: connection to %s is closed", c.remote)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.closed = true
		go func() {
			select {
			case c.t.failures <- transport.Failure{Remote: c.remote}:
			default:
			}
		}()
		return fmt.Errorf("ws: write to %s: %w", c.remote, err)
	}
	return nil
}

func (c *connection) Close() error {
	c.closeLocked()
	return nil
}

func (c *connection) Remote() types.NodeID { return c.remote }

// Open dials address if no connection to it exists yet. The dial URL is
// address itself, interpreted as a ws:// or wss:// endpoint.
func (t *Transport) Open(ctx context.Context, address types.NodeID) (transport.Connection, error) {
	t.mu.Lock()
	if c, ok := t.conns[address]; ok {
		t.mu.Unlock()
		return c, nil
	}
	t.mu.Unlock()

	dialer := websocket.Dialer{}
	url := fmt.Sprintf("%s?node=%s", string(address), t.local)
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", address, err)
	}

	c := t.register(address, conn)
	go t.readLoop(c)
	return c, nil
}

func (t *Transport) Inbound() <-chan transport.Inbound  { return t.inbound }
func (t *Transport) Failures() <-chan transport.Failure { return t.failures }
func (t *Transport) LocalAddress() types.NodeID         { return t.local }

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conns := make([]*connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}
