package swcache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ExtendableEvent is the lifetime-extension handle passed to every handler.
// Work registered with WaitUntil keeps the event alive; the owner calls Wait
// before tearing the event down. Cancelling the event context abandons
// outstanding best-effort work, which is not an error for the handler.
type ExtendableEvent struct {
	ctx context.Context
	g   *errgroup.Group
}

// NewExtendableEvent returns an event whose extended work runs under ctx.
func NewExtendableEvent(ctx context.Context) *ExtendableEvent {
	g, gctx := errgroup.WithContext(ctx)
	return &ExtendableEvent{ctx: gctx, g: g}
}

// Context is cancelled when the parent is, or when extended work fails.
func (ev *ExtendableEvent) Context() context.Context { return ev.ctx }

// WaitUntil extends the event's lifetime until fn returns.
func (ev *ExtendableEvent) WaitUntil(fn func(ctx context.Context) error) {
	ev.g.Go(func() error { return fn(ev.ctx) })
}

// Wait blocks until all extended work has settled and returns the first
// error any of it reported.
func (ev *ExtendableEvent) Wait() error { return ev.g.Wait() }
