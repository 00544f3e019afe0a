package core

import "errors"

// ErrConnectionFailed is returned by send-path operations targeting a node
// whose connection map entry is permanently Failed (Invariant 2).
var ErrConnectionFailed = errors.New("core: connection permanently failed")

// ErrUnknownProcess names the case of a destination process that no longer
// exists in this node's registry. Nothing in core returns it: deliveries
// to a missing local process are dropped silently.
var ErrUnknownProcess = errors.New("core: no such local process")
