package processor

import (
	"context"

	"github.com/bmvisioli/routeflow/exchange"
)

// ProcessSync runs an AsyncProcessor to completion and returns the exchange's
// failure, if any. It blocks until the processor's continuation fires or the
// context is cancelled. Cancellation abandons the traversal from the caller's
// point of view; the processor's continuation may still fire later and is
// discarded by the single-shot guard.
func ProcessSync(ctx context.Context, p AsyncProcessor, ex *exchange.Exchange) error {
	done := make(chan struct{})
	callback := NewOnceCallback(AsyncCallbackFunc(func(doneSync bool) {
		close(done)
	}), nil)

	p.Process(ctx, ex, callback)

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return ex.Exception()
}
