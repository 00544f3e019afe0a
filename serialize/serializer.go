// Package serialize implements the Serializer interface consumed by the
// core (§6): fingerprinting and encoding/decoding of arbitrary payload
// values by their static Go type.
package serialize

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"

	"github.com/jabolina/swarm/types"
)

// Serializer fingerprints, encodes and decodes values of known runtime
// type. Fingerprints must be collision-resistant across versions and equal
// iff the types are equal (§6).
type Serializer interface {
	Fingerprint(value interface{}) types.Fingerprint
	Encode(value interface{}) ([]byte, error)
	Decode(payload []byte, out interface{}) error
}

// GobSerializer fingerprints by the fully-qualified name of the static Go
// type and encodes with encoding/gob. gob is used, rather than a
// schema-driven format such as protobuf, because the core must accept any
// Go value a user's matcher names without requiring a .proto/.capnp
// definition per message type; see DESIGN.md for the full justification.
type GobSerializer struct {
	mu     sync.Mutex
	prints map[reflect.Type]types.Fingerprint
}

func NewGobSerializer() *GobSerializer {
	return &GobSerializer{prints: make(map[reflect.Type]types.Fingerprint)}
}

// FingerprintOf computes the stable digest for a static Go type, generic so
// callers building a Matcher[T] never have to construct a zero value by
// hand.
func FingerprintOf[T any](s *GobSerializer) types.Fingerprint {
	var zero T
	return s.Fingerprint(zero)
}

func (g *GobSerializer) Fingerprint(value interface{}) types.Fingerprint {
	t := reflect.TypeOf(value)

	g.mu.Lock()
	if fp, ok := g.prints[t]; ok {
		g.mu.Unlock()
		return fp
	}
	g.mu.Unlock()

	name := typeName(t)
	fp := types.Fingerprint(sha256.Sum256([]byte(name)))

	g.mu.Lock()
	g.prints[t] = fp
	g.mu.Unlock()

	return fp
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}

func (g *GobSerializer) Encode(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, fmt.Errorf("serialize: encode %T: %w", value, err)
	}
	return buf.Bytes(), nil
}

func (g *GobSerializer) Decode(payload []byte, out interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(out); err != nil {
		return fmt.Errorf("serialize: decode into %T: %w", out, err)
	}
	return nil
}

// Register makes a concrete type (usually behind an interface such as
// Signal or Closure env payloads) known to gob, mirroring the teacher's
// practice of registering wire types once at package init.
func Register(value interface{}) {
	gob.Register(value)
}
