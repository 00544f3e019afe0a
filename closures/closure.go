// Package closures implements serializable deferred computations: a
// Closure is a (label, environment bytes) pair resolved against a
// process-local RemoteTable to a typed value (§4.5).
package closures

import (
	"errors"
	"fmt"

	"github.com/jabolina/swarm/serialize"
	"github.com/jabolina/swarm/types"
)

var (
	// ErrClosureNotFound is returned when a label has no registered
	// reconstructor in the resolving node's RemoteTable.
	ErrClosureNotFound = errors.New("closures: label not registered")
	// ErrFingerprintMismatch is returned when a closure resolves to a
	// value whose runtime type fingerprint does not match the caller's
	// expected T.
	ErrFingerprintMismatch = errors.New("closures: resolved type does not match expected type")
)

// Closure is a serializable deferred computation: a textual label plus an
// encoded environment, resolved remotely against a RemoteTable.
type Closure struct {
	Label string
	Env   []byte
}

// decoder reconstructs a dynamic value (and its fingerprint) from encoded
// environment bytes.
type decoder func(env []byte) (value interface{}, fp types.Fingerprint, err error)

// RemoteTable is the immutable-after-boot map from label to decoder,
// populated at node boot from user registrations plus the standard labels
// for sequence/bind (§6).
type RemoteTable struct {
	serializer    *serialize.GobSerializer
	entries       map[string]decoder
	continuations map[string]continuationFactory
}

func NewRemoteTable(s *serialize.GobSerializer) *RemoteTable {
	t := &RemoteTable{serializer: s, entries: make(map[string]decoder)}
	registerCombinators(t)
	return t
}

// Register associates label with a function reconstructing T from the raw
// environment bytes produced by MakeClosure[T].
func Register[T any](t *RemoteTable, label string, reconstruct func(env []byte) (T, error)) {
	t.entries[label] = func(env []byte) (interface{}, types.Fingerprint, error) {
		v, err := reconstruct(env)
		if err != nil {
			return nil, types.Fingerprint{}, err
		}
		return v, serialize.FingerprintOf[T](t.serializer), nil
	}
}

// MakeClosure gob-encodes env and pairs it with label, ready to ship to a
// remote node and be resolved back with UnClosure.
func MakeClosure(s *serialize.GobSerializer, label string, env interface{}) (Closure, error) {
	payload, err := s.Encode(env)
	if err != nil {
		return Closure{}, fmt.Errorf("closures: encode environment for %q: %w", label, err)
	}
	return Closure{Label: label, Env: payload}, nil
}

// UnClosure looks up c's label, decodes its environment, and checks the
// produced value's fingerprint against T before returning it.
func UnClosure[T any](t *RemoteTable, c Closure) (T, error) {
	var zero T
	dec, ok := t.entries[c.Label]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrClosureNotFound, c.Label)
	}
	value, fp, err := dec(c.Env)
	if err != nil {
		return zero, fmt.Errorf("closures: resolve %q: %w", c.Label, err)
	}
	want := serialize.FingerprintOf[T](t.serializer)
	if fp != want {
		return zero, fmt.Errorf("%w: %q", ErrFingerprintMismatch, c.Label)
	}
	return value.(T), nil
}
