package errorhandler

import (
	"errors"
	"fmt"
)

var (
	// ErrNilOutput is returned when a handler is built without an output processor
	ErrNilOutput = errors.New("error handler: output processor is required")

	// ErrNilPolicyStrategy is returned when a handler is built without a policy strategy
	ErrNilPolicyStrategy = errors.New("error handler: exception policy strategy is required")

	// ErrNilDeadLetterProcessor is returned when a dead letter channel is built without an endpoint
	ErrNilDeadLetterProcessor = errors.New("dead letter channel: dead letter processor is required")
)

// PredicateEvaluationError reports a handled-predicate that itself failed.
// The failure is treated as not handled and this error becomes the exchange's
// new active failure, keeping the original cause reachable through Cause.
type PredicateEvaluationError struct {
	// Cause is the failure the predicate was deciding about
	Cause error
	// Err is the predicate's own failure
	Err error
}

func (e *PredicateEvaluationError) Error() string {
	return fmt.Sprintf("handled predicate evaluation failed: %v (original failure: %v)", e.Err, e.Cause)
}

func (e *PredicateEvaluationError) Unwrap() error {
	return e.Err
}
