package errutil

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// Handle logs err and reports it to Sentry. Sentry is a no-op until
// sentry.Init is called.
func Handle(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}

	attrs := []any{"error", err}
	if values := goerr.Values(err); len(values) > 0 {
		attrs = append(attrs, "values", values)
	}
	ctxlog.From(ctx).Error(msg, attrs...)

	hub := sentry.CurrentHub().Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("message", msg)
		if values := goerr.Values(err); len(values) > 0 {
			extra := make(map[string]any, len(values))
			for k, v := range values {
				extra[k] = v
			}
			scope.SetContext("goerr", extra)
		}
		hub.CaptureException(err)
	})
}
