package cdp

import (
	"context"
	"time"
)

// CombineContext derives a context from tab (which carries the chromedp
// target) that is also canceled when op is done. Values come from tab only.
func CombineContext(tab, op context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(tab)
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()
	return combinedCtx, cancel
}

// valueOnlyContext keeps the parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context with ctx's values that is never canceled. Teardown
// uses it so a canceled caller context cannot leak a browser process.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
