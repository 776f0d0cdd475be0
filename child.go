package children

import (
	"context"

	"github.com/go-bastion/children/internal/executor"
	"github.com/go-bastion/children/internal/obslog"
)

// ChildRef is a cheap, non-owning, cloneable handle to a single element.
// Any number of ChildRefs can point at the same element; none of them own
// its lifecycle, they can only address it.
type ChildRef struct {
	id   ID
	mbox *mailbox
}

// ID returns the referenced element's identity.
func (r ChildRef) ID() ID { return r.id }

// Tell sends payload to the element without waiting for a reply. It
// fails if the element's inbox has already been closed.
func (r ChildRef) Tell(payload interface{}) error {
	if err := r.mbox.send(userMsg{tag: tagTell, payload: payload}); err != nil {
		return &ErrSendClosed{Target: r.id, Payload: payload}
	}
	return nil
}

// Ask sends payload to the element and returns an Answer that resolves
// once the element replies via Envelope.Reply.
func (r ChildRef) Ask(payload interface{}) (Answer, error) {
	slot := &replySlot{ch: make(chan interface{}, 1)}
	if err := r.mbox.send(userMsg{tag: tagAsk, payload: payload, reply: slot}); err != nil {
		return Answer{}, &ErrSendClosed{Target: r.id, Payload: payload}
	}
	return Answer{ch: slot.ch}, nil
}

// Start activates the element: it flips active and replays anything
// buffered before this point, including launching its user future.
func (r ChildRef) Start() error {
	if err := r.mbox.send(Start()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

// Stop requests the element shut down gracefully.
func (r ChildRef) Stop() error {
	if err := r.mbox.send(Stop()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

// Kill requests the element shut down immediately, cancelling its
// running future at its next suspension point.
func (r ChildRef) Kill() error {
	if err := r.mbox.send(Kill()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

// child is the driver for a single element. It owns its mailbox, the
// pre-start buffer, and the executor handle for the user future it
// launches on activation.
type child struct {
	id         ID
	mbox       *mailbox
	parentMbox *mailbox
	selfRef    ChildRef
	groupRef   ChildrenRef
	supervisor SupervisorRef
	factory    Factory
	log        obslog.Logger

	ctx      context.Context
	state    *ContextState
	active   bool
	preStart []Message
}

func newChild(parentMbox *mailbox, groupRef ChildrenRef, supervisor SupervisorRef, factory Factory, log obslog.Logger) *child {
	id := newID()
	mbox := newMailbox()
	c := &child{
		id:         id,
		mbox:       mbox,
		parentMbox: parentMbox,
		groupRef:   groupRef,
		supervisor: supervisor,
		factory:    factory,
		log:        log.Named(id.String()),
		state:      newContextState(),
	}
	c.selfRef = ChildRef{id: id, mbox: mbox}
	return c
}

// run drives the element to completion. It is submitted to the executor
// by the owning group, which is also where the after-panic safety net is
// wired (see children.go LaunchElems): a panic inside run itself -- a bug
// in this driver, not in user code -- is reported to the parent the same
// way a normal Faulted would be.
func (c *child) run(ctx context.Context) error {
	c.ctx = ctx
	var userHandle *executor.Handle

	for {
		var execDone <-chan struct{}
		if userHandle != nil {
			execDone = userHandle.Done()
		}

		select {
		case <-c.mbox.wait():
			for {
				msg, ok, closed := c.mbox.tryRecv()
				if !ok {
					if closed {
						c.log.Errorw("element inbox closed with no sender remaining", "id", c.id.String())
						c.emitFaulted(errInboxClosed)
						awaitCancel(userHandle)
						return errInboxClosed
					}
					break
				}
				terminal := c.onMessage(msg)
				if terminal {
					// Stop/Kill, possibly replayed straight out of the
					// pre-start buffer, ends this driver's own loop before
					// the user future is ever launched -- it never runs a
					// single step if a terminal message was buffered ahead
					// of Start. A terminal message that arrives after Start
					// cancels the already-launched future instead.
					awaitCancel(userHandle)
					return nil
				}
				if c.active && userHandle == nil {
					userHandle = c.launchUserFuture()
				}
			}
		case <-execDone:
			res, _ := userHandle.TryResult()
			if res.Panicked || res.Err != nil {
				c.emitFaulted(&Fault{ID: c.id, Err: res.Err, Panicked: res.Panicked})
			} else {
				c.emitStopped()
			}
			return nil
		}
	}
}

// awaitCancel requests cancellation of an in-flight user future and
// blocks until it has actually finished, if one was running.
func awaitCancel(h *executor.Handle) {
	if h == nil {
		return
	}
	h.Cancel()
	<-h.Done()
}

func (c *child) launchUserFuture() *executor.Handle {
	return executor.Submit(c.ctx, executor.RunnableFunc(func(ctx context.Context) error {
		bctx := BastionContext{
			id:         c.id,
			self:       c.selfRef,
			children:   c.groupRef,
			supervisor: c.supervisor,
			state:      c.state,
			ctx:        ctx,
		}
		runnable := c.factory(bctx)
		return runnable.Run(bctx)
	}), nil)
}

// onMessage implements the inactive/active split: while inactive, every
// message but Start is buffered in arrival order; Start flips the
// element active and replays the buffer through handle.
func (c *child) onMessage(msg Message) (terminal bool) {
	if _, isStart := msg.(startMsg); isStart {
		if c.active {
			c.log.Warnw("Start received while already active; ignored", "id", c.id.String())
			return false
		}
		c.active = true
		buffered := c.preStart
		c.preStart = nil
		for _, bm := range buffered {
			if c.handle(bm) {
				return true
			}
		}
		return false
	}
	if !c.active {
		c.preStart = append(c.preStart, msg)
		return false
	}
	return c.handle(msg)
}

func (c *child) handle(msg Message) (terminal bool) {
	switch m := msg.(type) {
	case stopMsg, killMsg:
		c.emitStopped()
		return true
	case userMsg:
		c.state.push(Envelope{Payload: m.payload, reply: m.reply})
		return false
	default:
		c.protocolViolation(msg)
		return true
	}
}

func (c *child) protocolViolation(msg Message) {
	err := &ErrProtocolViolation{ID: c.id, Received: msg.messageKind()}
	c.log.Warnw("element received unhandled message", "id", c.id.String(), "kind", msg.messageKind())
	c.emitFaulted(err)
}

func (c *child) emitStopped() {
	c.log.Infow("element stopped", "id", c.id.String())
	_ = c.parentMbox.send(Stopped(c.id))
}

func (c *child) emitFaulted(err error) {
	c.log.Errorw("element faulted", "id", c.id.String(), "error", err)
	_ = c.parentMbox.send(Faulted(c.id, err))
}
