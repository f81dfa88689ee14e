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

// DefaultErrorHandler wraps an output processor and, when it completes with a
// failure, resolves the applicable exception policy and runs its fault stage.
//
// The handler itself holds no per-exchange state: all mutable state lives on
// the exchange, so one handler instance serves any number of concurrent
// traversals.
type DefaultErrorHandler struct {
	output            processor.AsyncProcessor
	policies          ExceptionPolicyStrategy
	logger            *slog.Logger
	metrics           MetricsCollector
	supportTransacted bool
}

// Option configures an error handler
type Option func(*DefaultErrorHandler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *DefaultErrorHandler) {
		h.logger = logger
	}
}

// WithMetricsCollector sets the metrics collector
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(h *DefaultErrorHandler) {
		h.metrics = collector
	}
}

// WithTransactedSupport makes the handler claim transacted exchanges instead
// of bypassing them. The flag is fixed at construction time.
func WithTransactedSupport(supported bool) Option {
	return func(h *DefaultErrorHandler) {
		h.supportTransacted = supported
	}
}

// NewDefaultErrorHandler creates an error handler around output. Wrap a
// synchronous Processor with processor.ToAsyncProcessor first.
func NewDefaultErrorHandler(output processor.AsyncProcessor, policies ExceptionPolicyStrategy, opts ...Option) (*DefaultErrorHandler, error) {
	if output == nil {
		return nil, ErrNilOutput
	}
	if policies == nil {
		return nil, ErrNilPolicyStrategy
	}

	h := &DefaultErrorHandler{
		output:   output,
		policies: policies,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// SupportTransacted reports whether this handler claims transacted exchanges
func (h *DefaultErrorHandler) SupportTransacted() bool {
	return h.supportTransacted
}

// Output returns the wrapped output processor
func (h *DefaultErrorHandler) Output() processor.AsyncProcessor {
	return h.output
}

func (h *DefaultErrorHandler) String() string {
	return fmt.Sprintf("DefaultErrorHandler[%v]", h.output)
}

// Process implements processor.AsyncProcessor
func (h *DefaultErrorHandler) Process(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
	// completedSync records the flag the caller's callback was invoked with,
	// so the return value stays faithful when the output completed
	// synchronously but the fault stage did not.
	var completedSync atomic.Bool

	guarded := processor.NewOnceCallback(processor.AsyncCallbackFunc(func(doneSync bool) {
		completedSync.Store(doneSync)
		callback.Done(doneSync)
	}), h.logger)

	outputSync := h.output.Process(ctx, ex, processor.AsyncCallbackFunc(func(doneSync bool) {
		h.onOutputDone(ctx, ex, guarded, doneSync)
	}))

	return outputSync && completedSync.Load()
}

// onOutputDone runs on the output's completion continuation
func (h *DefaultErrorHandler) onOutputDone(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback, doneSync bool) {
	if ex.Transacted() && !h.supportTransacted {
		h.logger.Debug("bypassing error handler for transacted exchange",
			"exchangeId", ex.ID(),
			"handler", h.String(),
		)
		if h.metrics != nil {
			h.metrics.ExchangeBypassed(ex.RouteID())
		}
		callback.Done(doneSync)
		return
	}

	if ex.Exception() == nil || exchange.IsFailureHandled(ex) {
		callback.Done(doneSync)
		return
	}

	h.handleException(ctx, ex, callback, doneSync)
}

// handleException runs the failure-handling sequence: capture the failure,
// resolve the policy, prepare the exchange, dispatch the fault stage, and
// finalize the handled decision.
func (h *DefaultErrorHandler) handleException(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback, doneSync bool) {
	failure := ex.Exception()

	// capture before anything clears the live field, so the failure is never
	// lost between clearing and restoration
	ex.SetProperty(exchange.PropertyExceptionCaught, failure)

	policy := h.policies.Resolve(ex, failure)
	if policy == nil {
		h.logger.Debug("no exception policy claims this failure, propagating",
			"exchangeId", ex.ID(),
			"error", failure,
		)
		if h.metrics != nil {
			h.metrics.FailurePropagated(ex.RouteID())
		}
		callback.Done(doneSync)
		return
	}

	prepareForFaultStage(ex, h.logger)

	if policy.Handler == nil {
		h.finalize(ctx, ex, policy)
		callback.Done(doneSync)
		return
	}

	start := time.Now()

	faultCallback := processor.NewOnceCallback(processor.AsyncCallbackFunc(func(faultSync bool) {
		if h.metrics != nil {
			h.metrics.FaultStageDuration(ex.RouteID(), time.Since(start))
		}
		h.finalize(ctx, ex, policy)
		callback.Done(doneSync && faultSync)
	}), h.logger)

	policy.Handler.Process(ctx, ex, faultCallback)
}

func (h *DefaultErrorHandler) finalize(ctx context.Context, ex *exchange.Exchange, policy *ExceptionPolicy) {
	finalizeAfterFaultStage(ctx, ex, policy.Handled, h.logger, h.metrics)
}

// Start implements processor.Service
func (h *DefaultErrorHandler) Start(ctx context.Context) error {
	return processor.StartService(ctx, h.output)
}

// Stop implements processor.Service
func (h *DefaultErrorHandler) Stop(ctx context.Context) error {
	return processor.StopService(ctx, h.output)
}

// prepareForFaultStage clears the live failure, drops the rollback marker and
// rewinds a stream-cached body so the fault stage reads it fresh. Runs
// whenever a policy resolved, even when that policy has no fault processor.
func prepareForFaultStage(ex *exchange.Exchange, logger *slog.Logger) {
	ex.SetException(nil)
	ex.RemoveProperty(exchange.PropertyRollbackOnly)

	if err := ex.In().ResetStreamCache(); err != nil {
		logger.Warn("failed to reset stream cache before fault handling",
			"exchangeId", ex.ID(),
			"error", err,
		)
	}
}

// finalizeAfterFaultStage evaluates the handled-predicate against the final
// exchange state and applies the outcome:
//   - predicate true: handled marker set, live failure cleared
//   - predicate absent or false: the captured failure is restored unless the
//     fault stage set a new one, which wins
//   - predicate failed: not handled; the evaluation failure becomes the new
//     active failure with the original cause attached
func finalizeAfterFaultStage(ctx context.Context, ex *exchange.Exchange, handled Predicate, logger *slog.Logger, metrics MetricsCollector) {
	if handled != nil {
		ok, err := handled(ctx, ex)
		if err != nil {
			evalErr := &PredicateEvaluationError{
				Cause: exchange.CapturedException(ex),
				Err:   err,
			}
			logger.Error("handled predicate evaluation failed",
				"exchangeId", ex.ID(),
				"error", err,
			)
			ex.SetException(evalErr)
			if metrics != nil {
				metrics.FailurePropagated(ex.RouteID())
			}
			return
		}
		if ok {
			logger.Debug("failure handled by exception policy",
				"exchangeId", ex.ID(),
			)
			exchange.SetFailureHandled(ex)
			ex.SetException(nil)
			if metrics != nil {
				metrics.FailureHandled(ex.RouteID())
			}
			return
		}
	}

	// not handled: the original cause is authoritative unless the fault stage
	// set a new failure
	if ex.Exception() == nil {
		ex.SetException(exchange.CapturedException(ex))
	}
	logger.Debug("failure not handled, propagating",
		"exchangeId", ex.ID(),
		"error", ex.Exception(),
	)
	if metrics != nil {
		metrics.FailurePropagated(ex.RouteID())
	}
}
