// Package errors provides structured error types for the offload coordinator.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The coordinator taxonomy maps onto four kinds:
//
//	KindInitFault       module failed to load or initialize
//	KindRunFault        module computation raised a fault
//	KindProtocolMisuse  caller misused the controller, detected locally
//	KindContextLost     execution context terminated with work pending
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRun, errors.KindRunFault).
//		Request(id).
//		Detail("trap: unreachable").
//		Build()
//
// Sentinels match on kind regardless of phase:
//
//	if errors.Is(err, errors.ErrProtocolMisuse) { ... }
//
// Message returns the plain caller-visible text, which is what crosses the
// context boundary for faults.
package errors
