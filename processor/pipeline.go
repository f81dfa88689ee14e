package processor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/bmvisioli/routeflow/exchange"
)

// Pipeline composes processors into a sequential continuation-passing chain.
// Processing stops early when an exchange carries an active failure, leaving
// it for the enclosing error handler to see.
type Pipeline struct {
	processors []AsyncProcessor
	logger     *slog.Logger
}

// PipelineOption configures a pipeline
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger for the pipeline
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline over the given processors
func NewPipeline(processors []AsyncProcessor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		processors: processors,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process implements AsyncProcessor
func (p *Pipeline) Process(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool {
	// completedSync records the flag the final continuation fired with, so the
	// return value stays false when an early step completed inline but a later
	// step went asynchronous.
	var completedSync atomic.Bool

	entrySync := p.run(ctx, ex, 0, AsyncCallbackFunc(func(doneSync bool) {
		completedSync.Store(doneSync)
		callback.Done(doneSync)
	}))

	return entrySync && completedSync.Load()
}

// run processes the chain from index onward. Synchronous steps continue
// inline on the calling goroutine; once any step completes asynchronously
// the remaining steps run on the continuation's goroutine and the final
// completion flag is forced to false.
func (p *Pipeline) run(ctx context.Context, ex *exchange.Exchange, index int, callback AsyncCallback) bool {
	if index >= len(p.processors) {
		callback.Done(true)
		return true
	}

	if ex.Exception() != nil {
		p.logger.Debug("pipeline stopped on active failure",
			"exchangeId", ex.ID(),
			"stage", index,
			"error", ex.Exception(),
		)
		callback.Done(true)
		return true
	}

	return p.processors[index].Process(ctx, ex, AsyncCallbackFunc(func(doneSync bool) {
		if !doneSync {
			p.run(ctx, ex, index+1, AsyncCallbackFunc(func(bool) {
				callback.Done(false)
			}))
			return
		}
		p.run(ctx, ex, index+1, callback)
	}))
}

// Start implements Service by starting every processor that has a lifecycle
func (p *Pipeline) Start(ctx context.Context) error {
	for _, proc := range p.processors {
		if err := StartService(ctx, proc); err != nil {
			return err
		}
	}
	return nil
}

// Stop implements Service by stopping processors in reverse order
func (p *Pipeline) Stop(ctx context.Context) error {
	var lastErr error
	for i := len(p.processors) - 1; i >= 0; i-- {
		if err := StopService(ctx, p.processors[i]); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
