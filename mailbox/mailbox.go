// Package mailbox implements the per-process CQueue: an unbounded FIFO
// supporting selective receive in blocking, non-blocking and timeout modes
// (§4.1).
package mailbox

import (
	"sync"
	"time"

	"github.com/jabolina/swarm/types"
)

// BlockMode selects how Receive behaves when no matcher currently matches.
type BlockMode uint8

const (
	Blocking BlockMode = iota
	NonBlocking
	Timeout
)

// DecodeError is returned by Receive when a matcher's fingerprint matched a
// message but decoding its payload failed (§7).
type DecodeError struct {
	Message types.Message
	Err     error
}

func (e *DecodeError) Error() string { return "mailbox: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// CQueue is the unbounded, single-consumer mailbox. Many goroutines may
// enqueue concurrently (any sender); exactly one goroutine is expected to
// call Receive at a time, matching the owning process's single-threaded
// execution model (§5).
type CQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue  []types.Message
	closed bool
}

func New() *CQueue {
	q := &CQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a message to the tail. Safe for concurrent use by any
// number of senders.
func (q *CQueue) Enqueue(m types.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.queue = append(q.queue, m)
	q.cond.Broadcast()
}

// Close wakes any blocked receiver with a permanent miss; used when the
// owning process terminates.
func (q *CQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the current queue depth.
func (q *CQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Receive walks the queue head-to-tail trying each matcher in order on each
// message; the first (message, matcher) pair to match wins, is removed,
// and its handler result is returned. Earlier skipped messages remain in
// place at their original positions (§4.1).
//
// Blocking parks until a new arrival (or Close) wakes it, then re-scans the
// whole queue from the head. Timeout behaves the same way but gives up at
// the deadline. NonBlocking never parks.
func (q *CQueue) Receive(mode BlockMode, timeout time.Duration, matchers []Matcher) (result interface{}, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var deadline time.Time
	if mode == Timeout {
		deadline = time.Now().Add(timeout)
	}

	for {
		if idx, handlerResult, derr := q.tryMatch(matchers); derr != nil {
			q.queue = append(q.queue[:idx], q.queue[idx+1:]...)
			return nil, false, derr
		} else if idx >= 0 {
			q.queue = append(q.queue[:idx], q.queue[idx+1:]...)
			return handlerResult, true, nil
		}

		switch mode {
		case NonBlocking:
			return nil, false, nil
		case Blocking:
			if q.closed {
				return nil, false, nil
			}
			q.cond.Wait()
			if q.closed {
				return nil, false, nil
			}
		case Timeout:
			if q.closed {
				return nil, false, nil
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, false, nil
			}
			waitWithDeadline(q.cond, remaining)
		}
	}
}

// tryMatch scans the whole queue head-to-tail. Re-scanning messages a
// previous wake-up already tried is wasted work but not wasted behavior:
// matcher purity (documented on Matcher) guarantees the answer hasn't
// changed, so correctness never depends on remembering where we left off.
func (q *CQueue) tryMatch(matchers []Matcher) (index int, result interface{}, err error) {
	for i, m := range q.queue {
		for _, matcher := range matchers {
			res, matched, derr := tryOne(matcher, m)
			if derr != nil {
				return i, nil, &DecodeError{Message: m, Err: derr}
			}
			if matched {
				return i, res, nil
			}
		}
	}
	return -1, nil, nil
}

func tryOne(matcher Matcher, m types.Message) (result interface{}, matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			if df, isDF := r.(decodeFailure); isDF {
				err = df.err
				return
			}
			panic(r)
		}
	}()
	result, matched = matcher(m)
	return result, matched, nil
}

// waitWithDeadline parks on cond until either it is signalled or the
// deadline passes, returning whether it was signalled first. sync.Cond has
// no native timeout, so a timer thread performs the wake-up, mirroring the
// condition-variable pattern already used across the pack (reign's
// remoteMailboxes uses the same sync.Cond shape for its connection wait).
func waitWithDeadline(cond *sync.Cond, d time.Duration) bool {
	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	// Stop returns false if the timer already fired, meaning this wake-up
	// came from the deadline rather than a real arrival.
	return timer.Stop()
}
