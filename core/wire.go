package core

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/jabolina/swarm/types"
)

// init registers every concrete Signal implementation with gob so a Frame
// carrying an NCMsg can round-trip through its Signal interface field —
// the same one-time registration idiom the serialize package exposes for
// application payloads (Register), needed here because Signal values are
// always boxed behind an interface rather than encoded directly.
func init() {
	gob.Register(types.LinkSignal{})
	gob.Register(types.UnlinkSignal{})
	gob.Register(types.MonitorSignal{})
	gob.Register(types.UnmonitorSignal{})
	gob.Register(types.SpawnSignal{})
	gob.Register(types.DidSpawnSignal{})
	gob.Register(types.ExitSignal{})
	gob.Register(types.MonitorNotification{})
	gob.Register(types.ProcessDiedSignal{})
	gob.Register(types.WhereIsQuery{})
	gob.Register(types.WhereIsReply{})
}

// encodeFrame/decodeFrame are the wire framing (§6): every outbound unit is
// self-describing (Kind, Destination, addressing, and either a Message or
// a control NCMsg). The exact byte layout only needs to be stable within
// one deployment, so plain gob — already used for application payloads —
// is reused here rather than introducing a second serialization format.
func encodeFrame(f types.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("core: encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFrame(raw []byte) (types.Frame, error) {
	var f types.Frame
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); err != nil {
		return types.Frame{}, fmt.Errorf("core: decode frame: %w", err)
	}
	return f, nil
}
