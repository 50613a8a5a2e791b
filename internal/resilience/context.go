// File: internal/resilience/context.go
package resilience

import (
	"context"
	"time"
)

// valueOnlyContext keeps the parent's values (loggers, chromedp targets)
// but drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is never
// canceled when ctx is. Guarded operations run on a detached context so that
// only the timeout race can cut them short.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
