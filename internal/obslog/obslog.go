// Package obslog provides the structured logger used across the children
// subsystem. It wraps a zap.SugaredLogger behind a small interface so call
// sites never import zap directly.
package obslog

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the logging surface every component in this module depends on.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Named(name string) Logger
	With(keysAndValues ...interface{}) Logger
}

type zapLogger struct {
	z *zap.SugaredLogger
}

// NewDevelopment returns a Logger that prints human-friendly console
// output, suitable for tests and local demos.
func NewDevelopment() Logger {
	l, err := zap.NewDevelopment(zap.AddCallerSkip(1))
	if err != nil {
		panic("obslog: failed to build development logger: " + err.Error())
	}
	return &zapLogger{z: l.Sugar()}
}

// NewProduction returns a Logger that emits structured JSON.
func NewProduction() Logger {
	l, err := zap.NewProduction(zap.AddCallerSkip(1))
	if err != nil {
		panic("obslog: failed to build production logger: " + err.Error())
	}
	return &zapLogger{z: l.Sugar()}
}

// NewNop returns a Logger that discards everything; used as the default
// when no logger has been wired in, so that components never need a nil
// check before logging.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop().Sugar()}
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})  { l.z.Warnw(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{z: l.z.With(kv...)}
}

type ctxKey struct{}

// Into attaches a logger to ctx so it can be retrieved with From.
func Into(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the logger attached to ctx, or a no-op logger if none was
// attached.
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return NewNop()
}
