package errorhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bmvisioli/routeflow/exchange"
	"github.com/bmvisioli/routeflow/processor"
)

// DeadLetterChannel redelivers a failed exchange to the output processor per
// its RedeliveryPolicy and, when the budget is exhausted, routes the exchange
// to a dead-letter processor. Dead-lettered failures are marked handled by
// default so the caller sees a completed exchange; configure a different
// handled-predicate to propagate them instead.
type DeadLetterChannel struct {
	output            processor.AsyncProcessor
	deadLetter        processor.AsyncProcessor
	policy            *RedeliveryPolicy
	handled           Predicate
	logger            *slog.Logger
	metrics           MetricsCollector
	supportTransacted bool
}

// DeadLetterOption configures a dead letter channel
type DeadLetterOption func(*DeadLetterChannel)

// WithRedeliveryPolicy sets the redelivery policy
func WithRedeliveryPolicy(policy *RedeliveryPolicy) DeadLetterOption {
	return func(d *DeadLetterChannel) {
		d.policy = policy
	}
}

// WithHandledPredicate sets the predicate deciding whether a dead-lettered
// failure is considered resolved
func WithHandledPredicate(handled Predicate) DeadLetterOption {
	return func(d *DeadLetterChannel) {
		d.handled = handled
	}
}

// WithDeadLetterLogger sets the logger
func WithDeadLetterLogger(logger *slog.Logger) DeadLetterOption {
	return func(d *DeadLetterChannel) {
		d.logger = logger
	}
}

// WithDeadLetterMetrics sets the metrics collector
func WithDeadLetterMetrics(collector MetricsCollector) DeadLetterOption {
	return func(d *DeadLetterChannel) {
		d.metrics = collector
	}
}

// NewDeadLetterChannel creates a dead letter channel around output. Wrap
// synchronous Processors with processor.ToAsyncProcessor first.
func NewDeadLetterChannel(output processor.AsyncProcessor, deadLetter processor.AsyncProcessor, opts ...DeadLetterOption) (*DeadLetterChannel, error) {
	if output == nil {
		return nil, ErrNilOutput
	}
	if deadLetter == nil {
		return nil, ErrNilDeadLetterProcessor
	}

	d := &DeadLetterChannel{
		output:     output,
		deadLetter: deadLetter,
		policy:     NewRedeliveryPolicy(),
		handled:    HandledTrue,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// SupportTransacted reports whether this handler claims transacted exchanges
func (d *DeadLetterChannel) SupportTransacted() bool {
	return d.supportTransacted
}

func (d *DeadLetterChannel) String() string {
	return fmt.Sprintf("DeadLetterChannel[%v -> %v]", d.output, d.deadLetter)
}

// Process implements processor.AsyncProcessor
func (d *DeadLetterChannel) Process(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
	var completedSync atomic.Bool

	guarded := processor.NewOnceCallback(processor.AsyncCallbackFunc(func(doneSync bool) {
		completedSync.Store(doneSync)
		callback.Done(doneSync)
	}), d.logger)

	outputSync := d.output.Process(ctx, ex, processor.AsyncCallbackFunc(func(doneSync bool) {
		d.onDeliveryDone(ctx, ex, guarded, doneSync)
	}))

	return outputSync && completedSync.Load()
}

// onDeliveryDone runs on each completion of the output processor, both the
// initial delivery and every redelivery.
func (d *DeadLetterChannel) onDeliveryDone(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback, doneSync bool) {
	if ex.Transacted() && !d.supportTransacted {
		d.logger.Debug("bypassing dead letter channel for transacted exchange",
			"exchangeId", ex.ID(),
		)
		if d.metrics != nil {
			d.metrics.ExchangeBypassed(ex.RouteID())
		}
		callback.Done(doneSync)
		return
	}

	if ex.Exception() == nil || exchange.IsFailureHandled(ex) {
		callback.Done(doneSync)
		return
	}

	attempts := exchange.RedeliveryCount(ex)
	if d.policy.ShouldRedeliver(attempts) {
		d.redeliver(ctx, ex, callback, doneSync, attempts)
		return
	}

	d.deliverToDeadLetter(ctx, ex, callback, doneSync, attempts)
}

// redeliver clears the failure, waits out the redelivery delay and runs the
// output again. The wait blocks the continuation's goroutine, keeping the
// synchronous completion flag truthful for fully synchronous traversals.
func (d *DeadLetterChannel) redeliver(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback, doneSync bool, attempts int) {
	failure := ex.Exception()

	ex.SetProperty(exchange.PropertyRedeliveryCount, attempts+1)
	prepareForFaultStage(ex, d.logger)

	d.logger.Debug("redelivering exchange",
		"exchangeId", ex.ID(),
		"attempt", attempts+1,
		"maxRedeliveries", d.policy.MaximumRedeliveries,
		"error", failure,
	)
	if d.metrics != nil {
		d.metrics.RedeliveryAttempted(ex.RouteID())
	}

	if delay := d.policy.NextDelay(attempts); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// the traversal was abandoned mid-redelivery; surface the
			// cancellation instead of inventing a synthetic failure
			ex.SetException(ctx.Err())
			callback.Done(doneSync)
			return
		}
	}

	d.output.Process(ctx, ex, processor.AsyncCallbackFunc(func(redeliverySync bool) {
		d.onDeliveryDone(ctx, ex, callback, doneSync && redeliverySync)
	}))
}

// deliverToDeadLetter runs the exhausted exchange through the dead-letter
// processor and finalizes the handled decision.
func (d *DeadLetterChannel) deliverToDeadLetter(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback, doneSync bool, attempts int) {
	failure := ex.Exception()
	ex.SetProperty(exchange.PropertyExceptionCaught, failure)

	d.logger.Debug("redelivery exhausted, routing to dead letter processor",
		"exchangeId", ex.ID(),
		"attempts", attempts,
		"error", failure,
	)
	if d.metrics != nil {
		d.metrics.DeadLettered(ex.RouteID())
	}

	prepareForFaultStage(ex, d.logger)

	deadLetterCallback := processor.NewOnceCallback(processor.AsyncCallbackFunc(func(deadLetterSync bool) {
		finalizeAfterFaultStage(ctx, ex, d.handled, d.logger, d.metrics)
		callback.Done(doneSync && deadLetterSync)
	}), d.logger)

	d.deadLetter.Process(ctx, ex, deadLetterCallback)
}

// Start implements processor.Service
func (d *DeadLetterChannel) Start(ctx context.Context) error {
	if err := processor.StartService(ctx, d.output); err != nil {
		return err
	}
	return processor.StartService(ctx, d.deadLetter)
}

// Stop implements processor.Service
func (d *DeadLetterChannel) Stop(ctx context.Context) error {
	outputErr := processor.StopService(ctx, d.output)
	if err := processor.StopService(ctx, d.deadLetter); err != nil {
		return err
	}
	return outputErr
}
