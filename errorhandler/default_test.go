package errorhandler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bmvisioli/routeflow/exchange"
	"github.com/bmvisioli/routeflow/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type illegalStateError struct {
	msg string
}

func (e *illegalStateError) Error() string {
	return e.msg
}

type runtimeError struct {
	msg string
}

func (e *runtimeError) Error() string {
	return e.msg
}

// recordingStrategy counts resolutions so tests can assert whether a policy
// lookup happened at all.
type recordingStrategy struct {
	policy *ExceptionPolicy
	calls  int
}

func (s *recordingStrategy) Resolve(ex *exchange.Exchange, failure error) *ExceptionPolicy {
	s.calls++
	return s.policy
}

func failingStage(err error) processor.AsyncProcessor {
	return processor.ToAsyncProcessor(processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
		return err
	}))
}

func succeedingStage() processor.AsyncProcessor {
	return processor.ToAsyncProcessor(processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
		return nil
	}))
}

func noopFaultStage() processor.AsyncProcessor {
	return processor.ToAsyncProcessor(processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
		return nil
	}))
}

func runHandler(t *testing.T, h *DefaultErrorHandler, ex *exchange.Exchange) bool {
	t.Helper()
	var doneSync bool
	completed := make(chan struct{})
	sync := h.Process(context.Background(), ex, processor.AsyncCallbackFunc(func(s bool) {
		doneSync = s
		close(completed)
	}))
	<-completed
	assert.Equal(t, sync, doneSync, "Process return value must match the callback flag once completed")
	return sync
}

func TestDefaultErrorHandler(t *testing.T) {
	t.Run("requires an output processor and a policy strategy", func(t *testing.T) {
		_, err := NewDefaultErrorHandler(nil, NewDefaultExceptionPolicyStrategy())
		assert.ErrorIs(t, err, ErrNilOutput)

		_, err = NewDefaultErrorHandler(succeedingStage(), nil)
		assert.ErrorIs(t, err, ErrNilPolicyStrategy)
	})

	t.Run("no active failure is a no-op beyond the output", func(t *testing.T) {
		strategy := &recordingStrategy{}
		h, err := NewDefaultErrorHandler(succeedingStage(), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		sync := runHandler(t, h, ex)

		assert.True(t, sync)
		assert.Nil(t, ex.Exception())
		assert.Zero(t, strategy.calls)
		assert.Nil(t, ex.Property(exchange.PropertyExceptionCaught))
	})

	t.Run("transacted exchange bypasses failure handling entirely", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := &recordingStrategy{policy: &ExceptionPolicy{Handled: HandledTrue}}
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New(exchange.WithTransacted(true))
		runHandler(t, h, ex)

		assert.Same(t, cause, ex.Exception())
		assert.Zero(t, strategy.calls, "bypass must skip the policy lookup")
		assert.False(t, exchange.IsFailureHandled(ex))
		assert.Nil(t, ex.Property(exchange.PropertyExceptionCaught))
	})

	t.Run("transacted support claims transacted exchanges", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := &recordingStrategy{policy: &ExceptionPolicy{Handled: HandledTrue}}
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy,
			WithTransactedSupport(true),
		)
		require.NoError(t, err)

		ex := exchange.New(exchange.WithTransacted(true))
		runHandler(t, h, ex)

		assert.Nil(t, ex.Exception())
		assert.True(t, exchange.IsFailureHandled(ex))
		assert.Equal(t, 1, strategy.calls)
	})

	t.Run("failure already handled upstream is not reprocessed", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := &recordingStrategy{policy: &ExceptionPolicy{Handled: HandledTrue}}
		output := processor.AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
			ex.SetException(cause)
			exchange.SetFailureHandled(ex)
			callback.Done(true)
			return true
		})
		h, err := NewDefaultErrorHandler(output, strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Same(t, cause, ex.Exception())
		assert.Zero(t, strategy.calls)
	})

	t.Run("scenario A: no policy leaves the failure active", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := NewDefaultExceptionPolicyStrategy()
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Same(t, cause, ex.Exception())
		assert.False(t, exchange.IsFailureHandled(ex))
		assert.Same(t, cause, exchange.CapturedException(ex))
	})

	t.Run("scenario B: policy with noop processor and predicate true resolves the failure", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Nil(t, ex.Exception())
		assert.True(t, exchange.IsFailureHandled(ex))
	})

	t.Run("scenario C: new failure from the fault stage is discarded when handled", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		newFailure := &runtimeError{msg: "y"}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: failingStage(newFailure),
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Nil(t, ex.Exception())
		assert.True(t, exchange.IsFailureHandled(ex))
	})

	t.Run("scenario D: new failure from the fault stage wins when not handled", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		newFailure := &runtimeError{msg: "y"}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: failingStage(newFailure),
			Handled: HandledFalse,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Same(t, newFailure, ex.Exception())
		assert.False(t, exchange.IsFailureHandled(ex))
	})

	t.Run("round-trip: predicate false without mutation restores the original failure", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: HandledFalse,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Same(t, cause, ex.Exception(), "restored failure must keep its identity")
	})

	t.Run("policy without processor still prepares and restores", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{})

		output := processor.AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
			ex.SetException(cause)
			ex.SetProperty(exchange.PropertyRollbackOnly, true)
			callback.Done(true)
			return true
		})
		h, err := NewDefaultErrorHandler(output, strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.Same(t, cause, ex.Exception())
		assert.False(t, exchange.IsFailureHandled(ex))
		assert.False(t, exchange.IsRollbackOnly(ex), "rollback marker must be cleared before fault handling")
	})

	t.Run("stream cached body is reset before the fault stage runs", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		body := &resettableBody{}

		var bodyAtFaultTime interface{}
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: processor.ToAsyncProcessor(processor.ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
				bodyAtFaultTime = ex.In().Body()
				return nil
			})),
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New(exchange.WithBody(body))
		runHandler(t, h, ex)

		assert.Equal(t, 1, body.resets)
		assert.Same(t, body, bodyAtFaultTime)
	})

	t.Run("predicate evaluation failure propagates as the new active failure", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		evalFailure := errors.New("predicate blew up")
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: func(ctx context.Context, ex *exchange.Exchange) (bool, error) {
				return false, evalFailure
			},
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		var evalErr *PredicateEvaluationError
		require.ErrorAs(t, ex.Exception(), &evalErr)
		assert.Same(t, cause, evalErr.Cause)
		assert.ErrorIs(t, ex.Exception(), evalFailure)
		assert.False(t, exchange.IsFailureHandled(ex))
	})

	t.Run("scenario E: second handler in a chain observes already handled", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		innerStrategy := NewDefaultExceptionPolicyStrategy()
		innerStrategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: HandledTrue,
		})
		inner, err := NewDefaultErrorHandler(failingStage(cause), innerStrategy)
		require.NoError(t, err)

		outerStrategy := &recordingStrategy{policy: &ExceptionPolicy{Handled: HandledFalse}}
		outer, err := NewDefaultErrorHandler(inner, outerStrategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, outer, ex)

		assert.Nil(t, ex.Exception())
		assert.True(t, exchange.IsFailureHandled(ex))
		assert.Zero(t, outerStrategy.calls, "outer handler must skip its own failure handling")
	})

	t.Run("asynchronous output completion is reported as asynchronous", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		output := processor.AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
			go func() {
				ex.SetException(cause)
				callback.Done(false)
			}()
			return false
		})
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(output, strategy)
		require.NoError(t, err)

		ex := exchange.New()
		sync := runHandler(t, h, ex)

		assert.False(t, sync)
		assert.True(t, exchange.IsFailureHandled(ex))
	})

	t.Run("asynchronous fault stage forces an asynchronous completion flag", func(t *testing.T) {
		cause := &illegalStateError{msg: "x"}
		faultStage := processor.AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback processor.AsyncCallback) bool {
			go callback.Done(false)
			return false
		})
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: faultStage,
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(failingStage(cause), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		done := make(chan bool, 1)
		sync := h.Process(context.Background(), ex, processor.AsyncCallbackFunc(func(s bool) {
			done <- s
		}))
		doneSync := <-done

		assert.False(t, sync)
		assert.False(t, doneSync)
		assert.True(t, exchange.IsFailureHandled(ex))
	})

	t.Run("wrapped failures resolve against inner type policies", func(t *testing.T) {
		inner := &illegalStateError{msg: "x"}
		wrapped := fmt.Errorf("stage failed: %w", inner)
		strategy := NewDefaultExceptionPolicyStrategy()
		strategy.Register(&illegalStateError{}, &ExceptionPolicy{
			Handler: noopFaultStage(),
			Handled: HandledTrue,
		})
		h, err := NewDefaultErrorHandler(failingStage(wrapped), strategy)
		require.NoError(t, err)

		ex := exchange.New()
		runHandler(t, h, ex)

		assert.True(t, exchange.IsFailureHandled(ex))
		assert.Nil(t, ex.Exception())
	})
}

type resettableBody struct {
	resets int
}

func (b *resettableBody) Reset() error {
	b.resets++
	return nil
}
