package children

// SupervisorRef is the entire surface a group's parent supervisor must
// implement: the ability to receive the group's terminal Stopped or
// Faulted notice. Everything else a real supervisor does -- restart
// policy, strategy selection, escalation -- is out of scope for this
// module and lives above this interface.
type SupervisorRef interface {
	Deliver(msg Message) error
}
