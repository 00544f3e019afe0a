package types

import "fmt"

// Fingerprint is a stable digest of a payload's static type. A matcher
// attempts to decode a Message only when its expected fingerprint equals
// the message's one.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:8])
}

// Message is the unit carried by a mailbox or a channel queue: a
// fingerprinted, still-encoded payload. Decoding is deferred to the first
// matcher whose fingerprint matches.
type Message struct {
	Fingerprint Fingerprint
	Payload     []byte
}

// DestinationKind tells the Node Controller which routing table to
// consult for a destination identifier carried on the wire.
type DestinationKind uint8

const (
	// DestProcess routes to a process mailbox.
	DestProcess DestinationKind = iota
	// DestChannel routes to a typed channel queue.
	DestChannel
	// DestControl routes to the Node Controller's own control inbox.
	DestControl
)

// FrameKind distinguishes data frames (a Message for a mailbox or channel)
// from control frames (an NCMsg for the Node Controller).
type FrameKind uint8

const (
	FrameData FrameKind = iota
	FrameControl
)

// Frame is the self-describing unit written to, and read from, the
// Transport. Exactly one of Message/Control is populated, selected by Kind.
type Frame struct {
	Kind        FrameKind
	Destination DestinationKind
	Process     ProcessID
	Channel     ChannelID
	Sender      ProcessID
	Message     Message
	Control     NCMsg
}
