package service

import "context"

// Tracer instruments named spans around a unit of work. StartSpan returns the
// (possibly decorated) context and a completion callback that must be called
// exactly once with the operation's error, if any.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error))
}

// NoopTracer discards all spans; it is the default when no tracer is wired.
var NoopTracer Tracer = noopTracer{}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
