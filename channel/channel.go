// Package channel implements typed unidirectional channels: a newChan call
// returns a serializable SendPort and a non-serializable ReceivePort, with
// left-biased and round-robin merge combinators over receive ends (§4.2).
package channel

import (
	"sync"
	"time"

	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// localQueue is a single FIFO of still-encoded values backing one channel.
// Values are kept encoded (fingerprint+bytes), exactly like the mailbox,
// because the Node Controller delivering a remote send knows only the
// ChannelID, never the compile-time element type T — decoding is deferred
// to the ReceivePort that does know it.
//
// It shares an arrival condition variable with the owning process's
// channel registry so ReceiveChan's composite scan-then-wait over a whole
// port tree is atomic with respect to every leaf (§4.2: "the atomic step
// is mandatory").
type localQueue struct {
	id    types.ChannelID
	mu    *sync.Mutex
	cond  *sync.Cond
	items []types.Message
}

func newLocalQueue(id types.ChannelID, cond *sync.Cond) *localQueue {
	return &localQueue{id: id, mu: cond.L.(*sync.Mutex), cond: cond}
}

func (q *localQueue) push(m types.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// tryPop must be called with q.mu already held by the caller (ReceivePort
// holds the shared lock across the whole tree while selecting).
func (q *localQueue) tryPop() (types.Message, bool) {
	if len(q.items) == 0 {
		return types.Message{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

// SendPort is the serializable write end of a typed channel. It carries
// only the identifying ChannelID; the owning process resolves it through
// the Node Controller's channel registry, local or remote.
type SendPort[T any] struct {
	ID types.ChannelID
}

// Sender is implemented by whatever can deliver an already-encoded channel
// value to its destination (local direct delivery, or the Node Controller
// for a remote owner). It decouples this package from core/transport.
type Sender interface {
	SendChan(id types.ChannelID, value types.Message) error
}

// SendChan encodes value with ser and transmits it on the channel. Like
// process Send, this is fire-and-forget: errors are never observable at
// the call site.
func SendChan[T any](s Sender, ser *serialize.GobSerializer, port SendPort[T], value T) {
	payload, err := ser.Encode(value)
	if err != nil {
		return
	}
	msg := types.Message{Fingerprint: ser.Fingerprint(value), Payload: payload}
	_ = s.SendChan(port.ID, msg)
}

// ReceivePort is the non-serializable read end of a typed channel: a
// single queue, or a merge over child ports.
type ReceivePort[T any] interface {
	// tryReceive attempts one non-blocking pop across the whole tree. It
	// must be called with the shared cond's lock already held.
	tryReceive() (T, bool)
	cond() *sync.Cond
}

type single[T any] struct {
	q   *localQueue
	ser *serialize.GobSerializer
}

// NewSingle wraps the channel's backing queue as a ReceivePort, decoding
// popped values against ser.
func NewSingle[T any](q *localQueue, ser *serialize.GobSerializer) ReceivePort[T] {
	return &single[T]{q: q, ser: ser}
}

// tryReceive pops and decodes the head message. A decode failure (payload
// corruption, or a value of unexpected type reaching this ChannelID) is a
// programmer/transport error; per the same failure model as the mailbox
// (§4.1), the message is dropped rather than left to jam the queue, and
// the scan continues to the next item.
func (s *single[T]) tryReceive() (T, bool) {
	var zero T
	for {
		m, ok := s.q.tryPop()
		if !ok {
			return zero, false
		}
		var value T
		if err := s.ser.Decode(m.Payload, &value); err != nil {
			continue
		}
		return value, true
	}
}

func (s *single[T]) cond() *sync.Cond { return s.q.cond }

type biased[T any] struct {
	children []ReceivePort[T]
}

// MergePortsBiased returns a ReceivePort that always tries children in the
// given order, taking from the first non-empty one. The constituent ports
// remain individually usable; concurrent consumption of a merged port and
// one of its constituents is unspecified by this package and should be
// avoided (§9 open question — recommended policy is to forbid it).
func MergePortsBiased[T any](children ...ReceivePort[T]) ReceivePort[T] {
	return &biased[T]{children: children}
}

func (b *biased[T]) tryReceive() (T, bool) {
	for _, c := range b.children {
		if v, ok := c.tryReceive(); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (b *biased[T]) cond() *sync.Cond {
	if len(b.children) == 0 {
		return nil
	}
	return b.children[0].cond()
}

type roundRobin[T any] struct {
	mu       sync.Mutex
	children []ReceivePort[T]
	next     int
}

// MergePortsRR returns a ReceivePort that, after each successful receive,
// rotates so the next call starts from the child after the one it just
// took from.
func MergePortsRR[T any](children ...ReceivePort[T]) ReceivePort[T] {
	return &roundRobin[T]{children: children}
}

func (r *roundRobin[T]) tryReceive() (T, bool) {
	r.mu.Lock()
	n := len(r.children)
	start := r.next
	r.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if v, ok := r.children[idx].tryReceive(); ok {
			r.mu.Lock()
			r.next = (idx + 1) % n
			r.mu.Unlock()
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (r *roundRobin[T]) cond() *sync.Cond {
	if len(r.children) == 0 {
		return nil
	}
	return r.children[0].cond()
}

// ReceiveChan atomically selects across the port tree: it takes the shared
// condition variable's lock once, tries every leaf, and only then — if
// nothing matched — parks (or gives up, per mode) on that same lock. This
// is what makes composing merged ports lose no messages and avoid spurious
// wake-ups (§4.2).
func ReceiveChan[T any](port ReceivePort[T], mode BlockMode, timeout time.Duration) (T, bool) {
	cond := port.cond()
	var zero T
	if cond == nil {
		return zero, false
	}

	cond.L.Lock()
	defer cond.L.Unlock()

	var deadline time.Time
	if mode == TimeoutMode {
		deadline = time.Now().Add(timeout)
	}

	for {
		if v, ok := port.tryReceive(); ok {
			return v, true
		}
		switch mode {
		case NonBlockingMode:
			return zero, false
		case BlockingMode:
			cond.Wait()
		case TimeoutMode:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return zero, false
			}
			waitWithDeadline(cond, remaining)
		}
	}
}

// BlockMode mirrors mailbox.BlockMode for channel receives, kept as its own
// type so this package has no dependency on mailbox.
type BlockMode uint8

const (
	BlockingMode BlockMode = iota
	NonBlockingMode
	TimeoutMode
)

func waitWithDeadline(cond *sync.Cond, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
}
