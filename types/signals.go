package types

// Signal is the closed set of Node Controller control messages (§4.4). Each
// concrete type below implements Signal as a marker.
type Signal interface {
	signal()
}

// NCMsg is a single control message fed into the Node Controller's inbox,
// either enqueued locally by a process or delivered over the wire.
type NCMsg struct {
	Sender ProcessID
	Signal Signal
}

// LinkSignal installs a bidirectional link between Sender and Target.
// Mirror marks the reciprocal half the Node Controller sends back to
// Sender's own node to complete the other direction; it is never set by
// Process.Link itself, only by handleLink, and stops the handler from
// mirroring a mirror back and forth forever.
type LinkSignal struct {
	Target ProcessID
	Mirror bool
}

// UnlinkSignal removes a previously installed link. Mirror has the same
// meaning as on LinkSignal.
type UnlinkSignal struct {
	Target ProcessID
	Mirror bool
}

// MonitorSignal installs a one-shot monitor identified by Ref.
type MonitorSignal struct {
	Target ProcessID
	Ref    MonitorRef
}

// UnmonitorSignal removes an installed monitor. Per §8 boundary behavior,
// this only prevents future delivery; a notification already enqueued is
// not retracted.
type UnmonitorSignal struct{ Ref MonitorRef }

// SpawnSignal asks the receiving node to resolve the closure given by
// Label and Env, allocate a PID and start the process, replying with
// DidSpawnSignal to Ref.Requester.
type SpawnSignal struct {
	Label string
	Env   []byte
	Ref   SpawnRef
}

// DidSpawnSignal correlates to a pending spawnAsync; it is delivered as an
// ordinary message into the requester's mailbox, not processed by the NC.
type DidSpawnSignal struct {
	Ref SpawnRef
	Pid ProcessID
}

// ExitSignal is a link-exit notification delivered into the linked
// process's mailbox.
type ExitSignal struct {
	From   ProcessID
	Reason DeathReason
}

// MonitorNotification is delivered into a monitor's owner mailbox at most
// once per installed MonitorRef (Invariant 4).
type MonitorNotification struct {
	Ref    MonitorRef
	Target ProcessID
	Reason DeathReason
}

// ProcessDiedSignal reports that Pid terminated with Reason. Nothing in
// core emits it: the owning Node Controller delivers an ExitSignal or
// MonitorNotification directly to each linker and monitorer instead. A
// Node Controller that receives one only logs it.
type ProcessDiedSignal struct {
	Pid    ProcessID
	Reason DeathReason
}

// WhereIsRef correlates a WhereIsQuery with its WhereIsReply, the same
// shape as SpawnRef (§4.5's RegisterName/WhereIs supplement).
type WhereIsRef struct {
	Requester ProcessID
	Counter   uint64
}

// WhereIsQuery asks the node owning Target to look Name up in its local
// name registry, replying with WhereIsReply to Ref.Requester.
type WhereIsQuery struct {
	Target NodeID
	Name   string
	Ref    WhereIsRef
}

// WhereIsReply correlates to a pending WhereIs call; like DidSpawnSignal it
// is delivered as an ordinary message into the requester's mailbox.
type WhereIsReply struct {
	Ref   WhereIsRef
	Pid   ProcessID
	Found bool
}

func (LinkSignal) signal()          {}
func (UnlinkSignal) signal()        {}
func (MonitorSignal) signal()       {}
func (UnmonitorSignal) signal()     {}
func (SpawnSignal) signal()         {}
func (DidSpawnSignal) signal()      {}
func (ExitSignal) signal()          {}
func (MonitorNotification) signal() {}
func (ProcessDiedSignal) signal()   {}
func (WhereIsQuery) signal()        {}
func (WhereIsReply) signal()        {}
