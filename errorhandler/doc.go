// Package errorhandler provides policy-driven error handling for pipeline stages.
//
// An error handler wraps an output processor. When the output completes with a
// failure on the exchange, the handler resolves the applicable exception policy
// for the failure's type, runs the policy's fault-handling processor, and then
// decides through the policy's handled-predicate whether the failure is resolved
// or must propagate to the caller.
//
// Two handlers are provided:
//   - DefaultErrorHandler: resolves policies and dispatches fault stages
//   - DeadLetterChannel: redelivers the output per a RedeliveryPolicy and routes
//     exhausted exchanges to a dead-letter endpoint
//
// Both follow the continuation-passing completion contract of
// processor.AsyncProcessor: the caller's callback fires exactly once, with a
// flag faithfully reporting synchronous or asynchronous completion. Failures
// are data on the exchange, never control-flow signals; every path either
// marks the failure handled or leaves an active failure for the caller to see.
package errorhandler
