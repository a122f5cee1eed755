// Package host implements the caller side of the offload protocol.
//
// A Controller owns one worker.Context. It posts INIT on creation and derives
// a State (initializing, ready or error) from the events it observes:
//
//	INITIALIZED      -> ready
//	INIT_FAILED(r)   -> error(r)
//	RESULT           -> ready, resolves the pending request
//	RUN_FAILED       -> unchanged, fails the pending request
//
// At most one run is pending at a time. A second TriggerRun while one is
// pending fails locally with a protocol misuse and sends nothing.
package host
