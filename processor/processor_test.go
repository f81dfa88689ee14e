package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/bmvisioli/routeflow/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAsyncProcessor(t *testing.T) {
	t.Run("bridge records errors on the exchange and completes synchronously", func(t *testing.T) {
		cause := errors.New("boom")
		bridge := ToAsyncProcessor(ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
			return cause
		}))

		ex := exchange.New()
		var doneSync bool
		sync := bridge.Process(context.Background(), ex, AsyncCallbackFunc(func(s bool) {
			doneSync = s
		}))

		assert.True(t, sync)
		assert.True(t, doneSync)
		assert.Same(t, cause, ex.Exception())
	})

	t.Run("bridge leaves the exchange untouched on success", func(t *testing.T) {
		bridge := ToAsyncProcessor(ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
			ex.In().SetBody("modified")
			return nil
		}))

		ex := exchange.New()
		bridge.Process(context.Background(), ex, AsyncCallbackFunc(func(bool) {}))

		assert.Nil(t, ex.Exception())
		assert.Equal(t, "modified", ex.In().Body())
	})

}

func TestProcessSync(t *testing.T) {
	t.Run("returns the exchange failure after completion", func(t *testing.T) {
		cause := errors.New("boom")
		p := ToAsyncProcessor(ProcessorFunc(func(ctx context.Context, ex *exchange.Exchange) error {
			return cause
		}))

		ex := exchange.New()
		err := ProcessSync(context.Background(), p, ex)

		assert.Same(t, cause, err)
	})

	t.Run("waits for asynchronous completion", func(t *testing.T) {
		p := AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool {
			go func() {
				ex.In().SetBody("done")
				callback.Done(false)
			}()
			return false
		})

		ex := exchange.New()
		err := ProcessSync(context.Background(), p, ex)

		require.NoError(t, err)
		assert.Equal(t, "done", ex.In().Body())
	})

	t.Run("returns the context error when cancelled", func(t *testing.T) {
		blocked := make(chan struct{})
		p := AsyncProcessorFunc(func(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool {
			go func() {
				<-blocked
				callback.Done(false)
			}()
			return false
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := ProcessSync(ctx, p, exchange.New())

		assert.ErrorIs(t, err, context.Canceled)
		close(blocked)
	})
}
