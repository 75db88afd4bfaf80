package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
)

// InitSentry configures sentry error reporting. The returned function flushes
// buffered events and should be deferred by the caller.
func InitSentry(dsn, env string) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize sentry")
	}

	return func() {
		sentry.Flush(2 * time.Second)
	}, nil
}

// WithSentry wraps a handler so that error-level records are also reported to
// sentry. Records below error level pass through untouched.
func WithSentry(base slog.Handler) slog.Handler {
	return &sentryHandler{base: base}
}

type sentryHandler struct {
	base slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= slog.LevelError {
		hub := sentry.CurrentHub().Clone()
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelError)
			fields := sentry.Context{}
			record.Attrs(func(attr slog.Attr) bool {
				fields[attr.Key] = attr.Value.Any()
				return true
			})
			if len(fields) > 0 {
				scope.SetContext("log", fields)
			}
			hub.CaptureMessage(record.Message)
		})
	}

	return h.base.Handle(ctx, record)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{base: h.base.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{base: h.base.WithGroup(name)}
}
