// Package executor is the low-level task executor the children subsystem
// submits user and element work to. It provides submission of a cooperative
// task, a handle that can be polled non-blockingly or awaited, cooperative
// cancellation via context, and -- for every submission -- transparent
// capture of panics into a recoverable completion so a single element's
// panic never takes down the process.
//
// The children-group subsystem treats this executor as an external
// collaborator reachable through a small contract -- submit, poll
// non-blockingly, await, cancel -- generalized so every supervised entity,
// element or group, can be submitted to it the same way.
package executor

import (
	"context"
	"fmt"
)

// Runnable is anything that can be submitted to the executor.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func(ctx context.Context) error

func (f RunnableFunc) Run(ctx context.Context) error { return f(ctx) }

// Result is the outcome of a submitted task once it has completed.
type Result struct {
	Err      error
	Panicked bool
}

// Handle lets the submitter poll, await, or cancel a running task.
type Handle struct {
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

// Done returns a channel that is closed once the task has finished, been
// cancelled, or panicked.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel requests cooperative cancellation: the task's context is
// cancelled, and it is up to the Runnable to notice at its next
// suspension point. Cancel does not block.
func (h *Handle) Cancel() { h.cancel() }

// TryResult performs a non-blocking check for completion. The second
// return is false if the task has not finished yet.
func (h *Handle) TryResult() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Await blocks until the task finishes or ctx is cancelled, whichever
// comes first.
func (h *Handle) Await(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Submit launches r in its own goroutine as a recoverable task: any panic
// inside Run is caught, converted into a Result with Panicked set, and
// afterPanic (if non-nil) is invoked in the panicking goroutine's context
// before the handle is marked done. afterPanic is the "per-task after-panic
// hook" from the executor contract; it typically notifies the submitter's
// parent that this task has faulted, since by definition the task itself
// can no longer do so.
func Submit(parent context.Context, r Runnable, afterPanic func()) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(h.done)
		defer func() {
			if rec := recover(); rec != nil {
				h.result = Result{Err: panicToErr(rec), Panicked: true}
				if afterPanic != nil {
					afterPanic()
				}
			}
		}()
		h.result = Result{Err: r.Run(ctx)}
	}()
	return h
}

func panicToErr(rec interface{}) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}
