package channel

import (
	"sync"

	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// Registry holds every channel owned by one process, keyed by local index,
// sharing the process's arrival condition variable so ReceiveChan's atomic
// selection spans all of a process's channels at once.
type Registry struct {
	owner  types.ProcessID
	cond   *sync.Cond
	ser    *serialize.GobSerializer
	mu     sync.Mutex
	next   uint64
	queues map[uint64]*localQueue
}

func NewRegistry(owner types.ProcessID, cond *sync.Cond, ser *serialize.GobSerializer) *Registry {
	return &Registry{owner: owner, cond: cond, ser: ser, queues: make(map[uint64]*localQueue)}
}

// NewChan allocates a fresh ChannelID from the process's monotonic channel
// counter and returns its typed send/receive pair.
func NewChan[T any](r *Registry) (SendPort[T], ReceivePort[T]) {
	r.mu.Lock()
	idx := r.next
	r.next++
	id := types.ChannelID{Owner: r.owner, Local: idx}
	q := newLocalQueue(id, r.cond)
	r.queues[idx] = q
	r.mu.Unlock()

	return SendPort[T]{ID: id}, NewSingle[T](q, r.ser)
}

// Deliver routes an already-encoded value to the local queue identified by
// id.Local. Used by the Node Controller when dispatching an inbound data
// frame, or a local same-node send, whose destination is a channel owned
// by this process.
func (r *Registry) Deliver(id types.ChannelID, msg types.Message) bool {
	r.mu.Lock()
	q, ok := r.queues[id.Local]
	r.mu.Unlock()
	if !ok {
		return false
	}
	q.push(msg)
	return true
}

// Close drops every channel owned by this process; called when the process
// terminates, since a channel dies with its owner (§3).
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = make(map[uint64]*localQueue)
}
