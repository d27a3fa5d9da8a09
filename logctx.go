package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// loggerContextKey is the context.Context key under which the ambient
// *zap.Logger is stored. Producers that want their fields captured into
// a task's log context install a logger via WithLogger before calling
// Submit; tasks that never do so fall back to a no-op logger.
type loggerContextKey struct{}

// WithLogger returns a context carrying logger as the ambient scoped
// logger. Submitters call this before Submit so the fields attached to
// logger are captured into the resulting WorkItem's log context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext returns the scoped logger installed by the
// scheduler for the currently-running task, or zap.NewNop() if none was
// ever captured.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// logContext is an immutable snapshot of the ambient logger's
// structured fields, taken at enqueue time. It is installed back onto
// the task's context for the duration of dispatch and is never mutated,
// so there is nothing to restore on exit: the parent context is simply
// what remains in scope once the call returns (or the panic recovers).
type logContext struct {
	logger *zap.Logger
}

// captureLogContext snapshots the logger ambient in ctx, defaulting to
// a no-op logger so every WorkItem carries a safely-callable *zap.Logger
// regardless of whether the submitter ever called WithLogger.
func captureLogContext(ctx context.Context) logContext {
	return logContext{logger: LoggerFromContext(ctx)}
}

// install returns a context with this log context's logger attached,
// for the duration of one task invocation.
func (c logContext) install(ctx context.Context) context.Context {
	return WithLogger(ctx, c.logger)
}
