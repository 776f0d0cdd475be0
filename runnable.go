package children

// Runnable is the user's unit of work: the body of a single element. It
// is built once per launch by a Factory and run to completion (or until
// cancelled) inside the executor.
type Runnable interface {
	Run(ctx BastionContext) error
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func(ctx BastionContext) error

func (f RunnableFunc) Run(ctx BastionContext) error { return f(ctx) }

// Factory builds a fresh Runnable for one element launch. It is called
// once per element per (re)start, so state captured in its closure is not
// shared across restarts.
type Factory func(ctx BastionContext) Runnable

// DefaultFactory is the factory a group uses when none has been supplied
// via WithExec: an element that does nothing and exits cleanly.
func DefaultFactory(BastionContext) Runnable {
	return RunnableFunc(func(BastionContext) error { return nil })
}
