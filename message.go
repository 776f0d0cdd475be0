package children

// Message is the closed set of values that travel through a broadcast
// endpoint's mailbox: the lifecycle signals Start, Stop and Kill; the
// reserved-but-unhandled Deploy, Prune and SuperviseWith; user payloads
// sent via broadcast, tell or ask; and the upward Stopped and Faulted
// notices. The interface is unexported by method, so nothing outside this
// package can add a new variant.
type Message interface {
	messageKind() string
}

type startMsg struct{}

func (startMsg) messageKind() string { return "Start" }

// Start builds the activation signal sent to a group or element.
func Start() Message { return startMsg{} }

type stopMsg struct{}

func (stopMsg) messageKind() string { return "Stop" }

// Stop builds the graceful-shutdown signal.
func Stop() Message { return stopMsg{} }

type killMsg struct{}

func (killMsg) messageKind() string { return "Kill" }

// Kill builds the forced-shutdown signal.
func Kill() Message { return killMsg{} }

// deployMsg, pruneMsg and superviseWithMsg are reserved for a future
// supervisor component. The core never installs a handler for them: an
// element or group that receives one treats it as a protocol violation
// and faults.

type deployMsg struct{ payload interface{} }

func (deployMsg) messageKind() string { return "Deploy" }

// Deploy builds a reserved, currently-unhandled lifecycle message.
func Deploy(payload interface{}) Message { return deployMsg{payload: payload} }

type pruneMsg struct{ target ID }

func (pruneMsg) messageKind() string { return "Prune" }

// Prune builds a reserved, currently-unhandled lifecycle message.
func Prune(target ID) Message { return pruneMsg{target: target} }

type superviseWithMsg struct{ payload interface{} }

func (superviseWithMsg) messageKind() string { return "SuperviseWith" }

// SuperviseWith builds a reserved, currently-unhandled lifecycle message.
func SuperviseWith(payload interface{}) Message { return superviseWithMsg{payload: payload} }

type userMsgTag uint8

const (
	tagBroadcast userMsgTag = iota
	tagTell
	tagAsk
)

type userMsg struct {
	tag     userMsgTag
	payload interface{}
	reply   *replySlot // non-nil only for tagAsk
}

func (userMsg) messageKind() string { return "Message" }

type stoppedMsg struct{ id ID }

func (stoppedMsg) messageKind() string { return "Stopped" }

// Stopped builds the upward notice an entity sends its parent on graceful
// exit.
func Stopped(id ID) Message { return stoppedMsg{id: id} }

type faultedMsg struct {
	id  ID
	err error
}

func (faultedMsg) messageKind() string { return "Faulted" }

// Faulted builds the upward notice an entity sends its parent on abnormal
// exit: a panic, a returned error, or a closed inbox.
func Faulted(id ID, err error) Message { return faultedMsg{id: id, err: err} }
