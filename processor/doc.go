// Package processor defines the processing contracts for pipeline stages.
//
// A Processor mutates an exchange synchronously and reports failure through its
// error return. An AsyncProcessor uses continuation-passing completion: it may
// return before the exchange has finished processing, invoking the supplied
// callback exactly once when it has, possibly from a different goroutine. The
// boolean returned by Process and passed to the callback reports whether
// completion happened synchronously, which callers use for cooperative
// continuation scheduling.
//
// The package also provides the glue between the two shapes: a bridge that
// adapts a Processor to an AsyncProcessor, a blocking helper that runs an
// AsyncProcessor to completion, a single-shot callback guard, and a Pipeline
// composing processors in sequence.
package processor
