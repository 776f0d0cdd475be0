package children

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-bastion/children/internal/executor"
	"github.com/go-bastion/children/internal/obslog"
)

// ChildrenRef is a cheap, non-owning, cloneable handle to a group. Elems
// is a point-in-time snapshot taken when the ref was produced (Ref or
// Reset), not a live view: elements launched after the snapshot don't
// appear in it.
type ChildrenRef struct {
	id    ID
	mbox  *mailbox
	elems []ChildRef
}

// ID returns the referenced group's identity.
func (r ChildrenRef) ID() ID { return r.id }

// Elems returns the snapshot of element references taken when this ref
// was produced.
func (r ChildrenRef) Elems() []ChildRef {
	out := make([]ChildRef, len(r.elems))
	copy(out, r.elems)
	return out
}

// Broadcast sends payload to every element currently running under the
// group.
func (r ChildrenRef) Broadcast(payload interface{}) error {
	if err := r.mbox.send(userMsg{tag: tagBroadcast, payload: payload}); err != nil {
		return &ErrSendClosed{Target: r.id, Payload: payload}
	}
	return nil
}

// Start activates the group: it flips active, fans Start out to every
// launched element, and replays anything buffered before this point.
func (r ChildrenRef) Start() error {
	if err := r.mbox.send(Start()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

// Stop requests the group, and through it every element, shut down
// gracefully.
func (r ChildrenRef) Stop() error {
	if err := r.mbox.send(Stop()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

// Kill requests the group, and through it every element, shut down
// immediately.
func (r ChildrenRef) Kill() error {
	if err := r.mbox.send(Kill()); err != nil {
		return &ErrSendClosed{Target: r.id}
	}
	return nil
}

type launchedElem struct {
	ref    ChildRef
	handle *executor.Handle
}

// Children drives a group of elements under a single broadcast endpoint.
// A Children is built with New, configured with WithExec/WithRedundancy,
// and then driven by Run in its own goroutine, typically one launched by
// a supervisor.
type Children struct {
	id         ID
	mbox       *mailbox
	factory    Factory
	redundancy int
	supervisor SupervisorRef
	log        obslog.Logger
	rootCtx    context.Context

	mu       sync.Mutex // guards launched against concurrent Elems() snapshots from Ref
	launched map[ID]launchedElem
	active   bool
	preStart []Message
}

// New constructs an inactive group reporting to parent, with redundancy 1
// and the DefaultFactory until overridden. It does not launch any
// elements; call LaunchElems before sending Start.
func New(parent SupervisorRef, log obslog.Logger) *Children {
	if log == nil {
		log = obslog.NewNop()
	}
	id := newID()
	return &Children{
		id:         id,
		mbox:       newMailbox(),
		factory:    DefaultFactory,
		redundancy: 1,
		supervisor: parent,
		log:        log.Named(id.String()),
		rootCtx:    context.Background(),
	}
}

// WithExec sets the factory used to build each element's Runnable.
func (g *Children) WithExec(factory Factory) *Children {
	g.factory = factory
	return g
}

// WithRedundancy sets how many elements LaunchElems spawns. A negative
// value is clamped to zero; zero is legal and simply produces a group
// with no elements.
func (g *Children) WithRedundancy(n int) *Children {
	if n < 0 {
		n = 0
	}
	g.redundancy = n
	return g
}

// Ref returns a cheap reference to the group, with Elems snapshotting the
// currently launched elements.
func (g *Children) Ref() ChildrenRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refLocked()
}

// refLocked builds a ChildrenRef snapshot; the caller must hold g.mu.
func (g *Children) refLocked() ChildrenRef {
	elems := make([]ChildRef, 0, len(g.launched))
	for _, le := range g.launched {
		elems = append(elems, le.ref)
	}
	return ChildrenRef{id: g.id, mbox: g.mbox, elems: elems}
}

// LaunchElems spawns g.redundancy fresh elements under the group's
// current broadcast endpoint. It is meant to be called once, against an
// empty launched map -- either right after New, or after Reset has
// drained it via kill -- since it is additive rather than replacing.
func (g *Children) LaunchElems() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.launched == nil {
		g.launched = make(map[ID]launchedElem, g.redundancy)
	}
	groupRef := g.refLocked()
	for i := 0; i < g.redundancy; i++ {
		c := newChild(g.mbox, groupRef, g.supervisor, g.factory, g.log)
		handle := executor.Submit(g.rootCtx, executor.RunnableFunc(c.run), func() {
			_ = g.mbox.send(Faulted(c.id, fmt.Errorf("element driver panicked")))
		})
		g.launched[c.id] = launchedElem{ref: c.selfRef, handle: handle}
	}
}

// Reset restarts the group in place: every element is killed, the
// group's own broadcast endpoint (id and mailbox) is swapped for a fresh
// one, and redundancy fresh elements are launched under it. This is what
// a supervisor calls to give a faulted or stopped group a clean identity
// before driving it again with Run.
func (g *Children) Reset(parent SupervisorRef) ChildrenRef {
	g.doKill()
	g.mu.Lock()
	g.id = newID()
	g.mbox = newMailbox()
	g.supervisor = parent
	g.active = false
	g.preStart = nil
	g.mu.Unlock()
	g.LaunchElems()
	return g.Ref()
}

// Run drives the group to completion: it blocks until the group
// transitions to a terminal state (Stop, Kill, or an unrecoverable
// Faulted), notifying its supervisor along the way.
func (g *Children) Run(ctx context.Context) error {
	g.rootCtx = ctx
	for {
		<-g.mbox.wait()
		for {
			msg, ok, closed := g.mbox.tryRecv()
			if !ok {
				if closed {
					g.log.Errorw("group inbox closed with no sender remaining", "id", g.id.String())
					g.doKill()
					g.emitFaulted(errInboxClosed)
					return errInboxClosed
				}
				break
			}
			if g.onMessage(msg) {
				return nil
			}
		}
	}
}

func (g *Children) onMessage(msg Message) (terminal bool) {
	if _, isStart := msg.(startMsg); isStart {
		if g.active {
			g.log.Warnw("Start received while already active; ignored", "id", g.id.String())
			return false
		}
		g.active = true
		g.broadcastToChildren(Start())
		buffered := g.preStart
		g.preStart = nil
		for _, bm := range buffered {
			if g.handle(bm) {
				return true
			}
		}
		return false
	}
	if !g.active {
		g.preStart = append(g.preStart, msg)
		return false
	}
	return g.handle(msg)
}

func (g *Children) handle(msg Message) (terminal bool) {
	switch m := msg.(type) {
	case stopMsg:
		g.doStop()
		g.emitStopped()
		return true
	case killMsg:
		// Asymmetric by design: Kill at group scope reports Stopped,
		// not Faulted (see DESIGN.md).
		g.doKill()
		g.emitStopped()
		return true
	case userMsg:
		g.broadcastToChildren(msg)
		return false
	case stoppedMsg:
		if g.knowsElem(m.id) {
			g.doStop()
			g.emitStopped()
			return true
		}
		return false
	case faultedMsg:
		if g.knowsElem(m.id) {
			g.doKill()
			g.emitFaulted(m.err)
			return true
		}
		return false
	default:
		g.protocolViolation(msg)
		return true
	}
}

func (g *Children) knowsElem(id ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.launched[id]
	return ok
}

func (g *Children) broadcastToChildren(msg Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, le := range g.launched {
		_ = le.ref.mbox.send(msg)
	}
}

// doStop fans Stop out to every element and waits for all of them to
// exit on their own; it never cancels anything.
func (g *Children) doStop() {
	g.broadcastToChildren(Stop())
	g.awaitAll()
}

// doKill fans Kill out to every element, cancels each one's executor
// handle so its future is aborted at its next suspension point, and then
// waits for all of them to exit.
func (g *Children) doKill() {
	g.broadcastToChildren(Kill())
	g.mu.Lock()
	handles := make([]*executor.Handle, 0, len(g.launched))
	for _, le := range g.launched {
		handles = append(handles, le.handle)
	}
	g.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
	g.awaitHandles(handles)
}

func (g *Children) awaitAll() {
	g.mu.Lock()
	handles := make([]*executor.Handle, 0, len(g.launched))
	for _, le := range g.launched {
		handles = append(handles, le.handle)
	}
	g.mu.Unlock()
	g.awaitHandles(handles)
}

func (g *Children) awaitHandles(handles []*executor.Handle) {
	var wg sync.WaitGroup
	wg.Add(len(handles))
	for _, h := range handles {
		h := h
		go func() {
			defer wg.Done()
			<-h.Done()
		}()
	}
	wg.Wait()
	g.mu.Lock()
	g.launched = make(map[ID]launchedElem)
	g.mu.Unlock()
}

func (g *Children) protocolViolation(msg Message) {
	err := &ErrProtocolViolation{ID: g.id, Received: msg.messageKind()}
	g.log.Warnw("group received unhandled message", "id", g.id.String(), "kind", msg.messageKind())
	g.doKill()
	g.emitFaulted(err)
}

func (g *Children) emitStopped() {
	g.log.Infow("group stopped", "id", g.id.String())
	if g.supervisor != nil {
		_ = g.supervisor.Deliver(Stopped(g.id))
	}
}

func (g *Children) emitFaulted(err error) {
	g.log.Errorw("group faulted", "id", g.id.String(), "error", err)
	if g.supervisor != nil {
		_ = g.supervisor.Deliver(Faulted(g.id, err))
	}
}
