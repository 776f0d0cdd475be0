package children

import (
	"errors"
	"fmt"
)

// errInboxClosed is reported when a driver loop discovers its own mailbox
// has been discarded: there is no sender left and nothing more will ever
// arrive.
var errInboxClosed = errors.New("children: inbox closed, no sender remains")

// ErrSendClosed is returned by Tell, Ask, Broadcast, Stop or Kill when the
// target's mailbox has already been discarded. Payload is the value that
// could not be delivered, or nil for a lifecycle-only send.
type ErrSendClosed struct {
	Target  ID
	Payload interface{}
}

func (e *ErrSendClosed) Error() string {
	return fmt.Sprintf("children: send to %s failed: inbox closed", e.Target)
}

// ErrProtocolViolation is the error carried by a Faulted notice when an
// entity receives a message the core has no handler for: Deploy, Prune or
// SuperviseWith sent to either a group or an element, or a Stopped/Faulted
// notice sent to an element rather than a group.
type ErrProtocolViolation struct {
	ID       ID
	Received string
}

func (e *ErrProtocolViolation) Error() string {
	return fmt.Sprintf("children: %s received unhandled %s message", e.ID, e.Received)
}

// Fault is the error value wrapped by a Faulted message: the reason an
// element or group terminated abnormally. Panicked distinguishes a
// recovered panic from a future that simply returned an error.
type Fault struct {
	ID       ID
	Err      error
	Panicked bool
}

func (f *Fault) Error() string {
	if f.Panicked {
		return fmt.Sprintf("children: %s panicked: %v", f.ID, f.Err)
	}
	return fmt.Sprintf("children: %s faulted: %v", f.ID, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
