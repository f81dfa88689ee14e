// Package exchange provides the unit-of-work context carried through a processing pipeline.
//
// An Exchange holds the in-flight message, an optional failure, a transacted flag,
// and an open property map used to stash cross-stage state such as the captured
// failure snapshot and the failure-handled marker.
//
// An Exchange is owned by exactly one stage at a time. Stages take turns mutating
// it as the pipeline's continuations fire, but two outstanding continuations never
// touch the same Exchange concurrently, so no locking is performed here.
package exchange
