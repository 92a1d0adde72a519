package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type loggerContextKey struct{}

func toContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// fromContext returns the logger stored in ctx, or the global logger.
func fromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerContextKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}

	return global
}

// WithName adds a name segment to the context logger.
func WithName(ctx context.Context, name string) context.Context {
	return toContext(ctx, fromContext(ctx).Named(name))
}

// WithKV attaches key-value pairs to every message logged through the returned context.
func WithKV(ctx context.Context, kvs ...any) context.Context {
	return toContext(ctx, fromContext(ctx).With(kvs...))
}

// WithMinLevel drops messages below lvl for the returned context.
// A logger that is already stricter is kept as is.
func WithMinLevel(ctx context.Context, lvl zapcore.Level) context.Context {
	current := fromContext(ctx)
	if current.Level() >= lvl {
		return ctx
	}

	return toContext(ctx, current.WithOptions(zap.IncreaseLevel(lvl)))
}
