package exchange

// IsFailureHandled reports whether an earlier error handler in the same
// traversal already resolved this exchange's failure.
func IsFailureHandled(e *Exchange) bool {
	handled, ok := e.Property(PropertyFailureHandled).(bool)
	return ok && handled
}

// SetFailureHandled marks the exchange's failure as resolved
func SetFailureHandled(e *Exchange) {
	e.SetProperty(PropertyFailureHandled, true)
}

// CapturedException returns the failure snapshot captured before fault
// handling, or nil when none was captured.
func CapturedException(e *Exchange) error {
	err, ok := e.Property(PropertyExceptionCaught).(error)
	if !ok {
		return nil
	}
	return err
}

// IsRollbackOnly reports whether the exchange is marked to roll back
func IsRollbackOnly(e *Exchange) bool {
	rollback, ok := e.Property(PropertyRollbackOnly).(bool)
	return ok && rollback
}

// RedeliveryCount returns the number of redelivery attempts made so far
func RedeliveryCount(e *Exchange) int {
	count, ok := e.Property(PropertyRedeliveryCount).(int)
	if !ok {
		return 0
	}
	return count
}
