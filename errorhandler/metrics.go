package errorhandler

import "time"

// MetricsCollector receives error-handling outcomes for observability.
// Implementations must be safe for concurrent use; the handlers invoke them
// from whichever goroutine the active continuation runs on.
type MetricsCollector interface {
	// ExchangeBypassed records a transacted exchange this handler declined
	ExchangeBypassed(routeID string)
	// FailureHandled records a failure resolved by a policy
	FailureHandled(routeID string)
	// FailurePropagated records a failure left active for the caller
	FailurePropagated(routeID string)
	// RedeliveryAttempted records one redelivery of the output processor
	RedeliveryAttempted(routeID string)
	// DeadLettered records an exchange routed to the dead-letter endpoint
	DeadLettered(routeID string)
	// FaultStageDuration records how long a fault-handling processor ran
	FaultStageDuration(routeID string, duration time.Duration)
}
