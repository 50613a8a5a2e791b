// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context derived from primary that is also canceled
// when secondary is done. Values come from primary only, which is where
// chromedp keeps the CDP target.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// awaitRun runs fn on its own goroutine and stops waiting when ctx is done.
// It is used for the first chromedp.Run on a browser or tab context, which
// must not receive a deadline-bearing context: chromedp ties the lifetime of
// the allocated browser or target to that context.
func awaitRun(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
