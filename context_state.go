package children

import (
	"context"
	"sync/atomic"
)

// replySlot is the one-shot reply path for an ask. It is shared between
// the Answer the asker holds and the Envelope the element eventually
// receives, so exactly one Reply call can ever succeed.
type replySlot struct {
	ch   chan interface{}
	used int32
}

// Envelope is what an element's user future pulls out of its
// BastionContext: the payload of a broadcast, tell or ask. Ask payloads
// carry a reply path; Reply panics for anything else.
type Envelope struct {
	Payload interface{}
	reply   *replySlot
}

// Reply answers an ask. It panics if the envelope did not come from an
// ask, or if it has already been replied to: an ask is answered at most
// once.
func (e Envelope) Reply(v interface{}) {
	if e.reply == nil {
		panic("children: Reply called on a message that was not asked")
	}
	if !atomic.CompareAndSwapInt32(&e.reply.used, 0, 1) {
		panic("children: Reply called twice for the same ask")
	}
	e.reply.ch <- v
}

// Answer is returned to the caller of Ask; Await blocks for the eventual
// Reply.
type Answer struct {
	ch <-chan interface{}
}

// Await blocks until the asked element replies or ctx is cancelled.
func (a Answer) Await(ctx context.Context) (interface{}, error) {
	select {
	case v := <-a.ch:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ContextState is the single-writer/single-reader FIFO queue of user
// message envelopes bridging an element's inbox handler (the writer) and
// the user future running inside it (the reader, via BastionContext.Recv).
// The guarding lock is held only across one push or one pop, mirroring
// mailbox's discipline exactly, parameterized over Envelope instead of
// Message.
type ContextState struct {
	mbox *mailbox
}

func newContextState() *ContextState {
	return &ContextState{mbox: newMailbox()}
}

func (s *ContextState) push(e Envelope) {
	// ContextState reuses mailbox's queue+signal plumbing by boxing the
	// envelope inside a Message; close() is never called on it, since an
	// element's own context never outlives the element.
	_ = s.mbox.send(envelopeMsg{e})
}

// TryRecv dequeues the oldest pending envelope without blocking.
func (s *ContextState) TryRecv() (Envelope, bool) {
	msg, ok, _ := s.mbox.tryRecv()
	if !ok {
		return Envelope{}, false
	}
	return msg.(envelopeMsg).Envelope, true
}

// Recv blocks until an envelope is available or ctx is cancelled.
func (s *ContextState) Recv(ctx context.Context) (Envelope, error) {
	for {
		if e, ok := s.TryRecv(); ok {
			return e, nil
		}
		select {
		case <-s.mbox.wait():
			continue
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		}
	}
}

// envelopeMsg lets ContextState reuse mailbox's plumbing without mailbox
// having to know about Envelope.
type envelopeMsg struct{ Envelope }

func (envelopeMsg) messageKind() string { return "Envelope" }
