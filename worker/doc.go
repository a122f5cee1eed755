// Package worker implements the isolated execution context that owns the
// offloaded module.
//
// A Context runs two goroutines: dispatch, which decodes commands in arrival
// order and handles each on its own goroutine, and delivery, which decodes
// events in emission order and hands them to the host's Handler. Commands and
// events cross the boundary as encoded frames through unbounded mailboxes, so
// posting never blocks and nothing mutable is shared.
//
// The Gate is the single-flight guard around Module.Initialize:
//
//	Uninitialized -> Initializing -> Ready
//	                             \-> Failed -> Initializing (retry)
//
// Faults raised by the module, returned errors and panics alike, are captured
// as a Fault and reported as INIT_FAILED or RUN_FAILED text. The context keeps
// serving commands after a faulted run.
package worker
