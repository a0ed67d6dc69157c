package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/utils/errutil"
)

// Group tracks dispatched handlers so shutdown can wait for them. Once Wait
// has been called the group rejects new handlers.
type Group struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewGroup() *Group {
	return &Group{}
}

var defaultGroup = NewGroup()

// Dispatch runs handler on the process-wide group.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	defaultGroup.Dispatch(ctx, handler)
}

// Wait waits for the process-wide group.
func Wait(ctx context.Context) error {
	return defaultGroup.Wait(ctx)
}

// Dispatch runs handler in a new goroutine. The handler gets a background
// context carrying the caller's logger tagged with an async_id, so cancelling
// ctx does not stop it. Panics and returned errors go to errutil.Handle.
func (g *Group) Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := newBackgroundContext(ctx)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		ctxlog.From(newCtx).Warn("async handler rejected after shutdown started")
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				errutil.Handle(newCtx, "panic in async handler",
					goerr.New("recovered from panic",
						goerr.V("recover", r),
						goerr.V("stack", string(debug.Stack())),
					))
			}
		}()

		if err := handler(newCtx); err != nil {
			errutil.Handle(newCtx, "error in async handler", err)
		}
	}()
}

// Wait stops accepting handlers and blocks until every dispatched handler has
// returned or ctx is done. It is used on shutdown so refreshes in flight can
// finish their cache writes.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}

func newBackgroundContext(ctx context.Context) context.Context {
	logger := ctxlog.From(ctx).With("async_id", uuid.NewString())
	return ctxlog.With(context.Background(), logger)
}

// WithTimeout bounds handler by d
func WithTimeout(d time.Duration, handler func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx)
	}
}
