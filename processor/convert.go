package processor

import (
	"context"

	"github.com/bmvisioli/routeflow/exchange"
)

// ToAsyncProcessor adapts a synchronous Processor to the AsyncProcessor
// contract. The returned processor records the Processor's error on the
// exchange and always completes synchronously.
func ToAsyncProcessor(p Processor) AsyncProcessor {
	return &processorBridge{processor: p}
}

type processorBridge struct {
	processor Processor
}

func (b *processorBridge) Process(ctx context.Context, ex *exchange.Exchange, callback AsyncCallback) bool {
	if err := b.processor.Process(ctx, ex); err != nil {
		ex.SetException(err)
	}
	callback.Done(true)
	return true
}

// Start implements Service by delegating to the wrapped processor
func (b *processorBridge) Start(ctx context.Context) error {
	return StartService(ctx, b.processor)
}

// Stop implements Service by delegating to the wrapped processor
func (b *processorBridge) Stop(ctx context.Context) error {
	return StopService(ctx, b.processor)
}
