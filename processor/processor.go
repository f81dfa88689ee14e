package processor

import (
	"context"

	"github.com/bmvisioli/routeflow/exchange"
)

// Processor processes an exchange synchronously
type Processor interface {
	Process(ctx context.Context, ex *exchange.Exchange) error
}

// ProcessorFunc is a function adapter for Processor
type ProcessorFunc func(ctx context.Context, ex *exchange.Exchange) error

// Process implements Processor
func (f ProcessorFunc) Process(ctx context.Context, ex *exchange.Exchange) error {
	return f(ctx, ex)
}

// AsyncCallback receives the completion signal of an AsyncProcessor.
// Done must be invoked exactly once per Process call; doneSync reports whether
// the exchange completed synchronously on the calling goroutine.
type AsyncCallback interface {
	Done(doneSync bool)
}

// AsyncCallbackFunc is a function adapter for AsyncCallback
type AsyncCallbackFunc func(doneSync bool)

// Done implements AsyncCallback
func (f AsyncCallbackFunc) Done(doneSync bool) {
	f(doneSync)
}

// AsyncProcessor processes an exchange with continuation-passing completion.
// Process returns true when the exchange completed synchronously, in which
// case the callback has already fired before Process returned. When it
// returns false the callback fires later, possibly on another goroutine.
// Failures are reported on the exchange's failure field, never as a value
// crossing this boundary.
type AsyncProcessor interface {
	Process(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool
}

// AsyncProcessorFunc is a function adapter for AsyncProcessor
type AsyncProcessorFunc func(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool

// Process implements AsyncProcessor
func (f AsyncProcessorFunc) Process(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool {
	return f(ctx, ex, callback)
}

// Service is implemented by processors with a lifecycle
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StartService starts v if it implements Service
func StartService(ctx context.Context, v interface{}) error {
	if s, ok := v.(Service); ok {
		return s.Start(ctx)
	}
	return nil
}

// StopService stops v if it implements Service
func StopService(ctx context.Context, v interface{}) error {
	if s, ok := v.(Service); ok {
		return s.Stop(ctx)
	}
	return nil
}
