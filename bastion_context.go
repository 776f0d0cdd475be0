package children

import "context"

// BastionContext is what an element's Runnable receives: its own identity,
// a non-owning reference to itself and to the group it belongs to, the
// link back to the supervisor, cancellation, and the inbox of user
// messages addressed to it.
type BastionContext struct {
	id         ID
	self       ChildRef
	children   ChildrenRef
	supervisor SupervisorRef
	state      *ContextState
	ctx        context.Context
}

// ID returns the element's own identity.
func (c BastionContext) ID() ID { return c.id }

// Self returns a reference to the element itself, for code that wants to
// pass its own address along to a message recipient.
func (c BastionContext) Self() ChildRef { return c.self }

// Children returns a reference to the group this element belongs to,
// enabling peer broadcast.
func (c BastionContext) Children() ChildrenRef { return c.children }

// Supervisor returns the handle to the owning supervisor, for elements
// that need to escalate something the group's own lifecycle can't
// express. May be nil if the group itself has no supervisor.
func (c BastionContext) Supervisor() SupervisorRef { return c.supervisor }

// Context returns the cancellation context for this element's run: it is
// cancelled when the element is killed, and a cancellation-safe Runnable
// should select on its Done channel at its suspension points.
func (c BastionContext) Context() context.Context { return c.ctx }

// Recv blocks until a user message addressed to this element is
// available, or ctx is cancelled.
func (c BastionContext) Recv(ctx context.Context) (Envelope, error) {
	return c.state.Recv(ctx)
}

// TryRecv dequeues a pending user message without blocking.
func (c BastionContext) TryRecv() (Envelope, bool) {
	return c.state.TryRecv()
}
