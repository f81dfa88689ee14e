package processor

import (
	"log/slog"
	"sync/atomic"
)

// OnceCallback guards an AsyncCallback so completion happens exactly once.
// The first Done wins; later invocations are dropped, logged, and counted so
// a double completion surfaces as a detectable programming error instead of
// silent state corruption.
type OnceCallback struct {
	callback AsyncCallback
	logger   *slog.Logger
	done     atomic.Bool
	dropped  atomic.Int64
}

// NewOnceCallback wraps callback with an exactly-once guard
func NewOnceCallback(callback AsyncCallback, logger *slog.Logger) *OnceCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnceCallback{
		callback: callback,
		logger:   logger,
	}
}

// Done implements AsyncCallback
func (c *OnceCallback) Done(doneSync bool) {
	if !c.done.CompareAndSwap(false, true) {
		c.dropped.Add(1)
		c.logger.Error("completion callback invoked more than once",
			"doneSync", doneSync,
			"dropped", c.dropped.Load(),
		)
		return
	}
	c.callback.Done(doneSync)
}

// Completed reports whether Done has fired
func (c *OnceCallback) Completed() bool {
	return c.done.Load()
}

// Dropped returns how many extra completions were discarded
func (c *OnceCallback) Dropped() int64 {
	return c.dropped.Load()
}
