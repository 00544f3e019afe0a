package mailbox

import (
	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

// Matcher is the core's matcher interface (§4.1): given a still-encoded
// Message, it either declines or produces a handler whose result becomes
// the value returned from Receive.
//
// Matchers are required to be pure: trying a matcher against the same
// Message twice must give the same answer. Blocking receive re-scans the
// whole queue after each wake-up, so an impure matcher could match a
// message on a later scan that it declined earlier.
type Matcher func(types.Message) (result interface{}, matched bool)

// MatchType decodes a message as T and hands it to handle whenever the
// message's fingerprint is T's. This is the only way most user code ever
// needs to build a Matcher.
func MatchType[T any](s *serialize.GobSerializer, handle func(T) interface{}) Matcher {
	return MatchIf(s, func(T) bool { return true }, handle)
}

// MatchIf is MatchType plus a predicate evaluated on the decoded value; the
// message is skipped (left in the mailbox) when the predicate is false.
func MatchIf[T any](s *serialize.GobSerializer, predicate func(T) bool, handle func(T) interface{}) Matcher {
	fp := serialize.FingerprintOf[T](s)
	return func(m types.Message) (interface{}, bool) {
		if m.Fingerprint != fp {
			return nil, false
		}
		var value T
		if err := s.Decode(m.Payload, &value); err != nil {
			// Decode failure under a matching fingerprint is a programmer
			// error (§4.1); Receive returns it as a *DecodeError, which
			// core's receive helpers turn into an Exception death reason.
			// The queue itself is never corrupted: Receive removes the
			// message rather than retrying it forever.
			panic(decodeFailure{err: err})
		}
		if !predicate(value) {
			return nil, false
		}
		return handle(value), true
	}
}

// MatchAny is the wildcard matcher: it always matches and discards the
// message, handing the still-encoded Message to handle. It is the only way
// to drop an unknown message from the queue (§4.1).
func MatchAny(handle func(types.Message) interface{}) Matcher {
	return func(m types.Message) (interface{}, bool) {
		return handle(m), true
	}
}

// decodeFailure carries a DecodeError out of a Matcher through a panic so
// Receive can translate it into the caller's termination condition without
// every Matcher having to thread an error return.
type decodeFailure struct{ err error }

func (d decodeFailure) Error() string { return "mailbox: decode failed: " + d.err.Error() }
