// Package protocol defines the fixed vocabulary exchanged across the
// execution context boundary.
//
// Commands flow from the host to the context:
//
//	INIT                trigger initialization, outcome observed via events
//	RUN(id)             trigger computation, initializing first if needed
//
// Events flow from the context to the host:
//
//	INITIALIZED
//	INIT_FAILED(reason)
//	RESULT(id, payload)
//	RUN_FAILED(id, reason)
//
// Command and Event are closed unions: only the types in this package
// implement them, and every switch over them handles each kind.
//
// On the wire each message is a JSON object:
//
//	{"kind": "RESULT", "payload": "Proof verified", "id": "01J..."}
//
// payload is present only for RESULT and the *_FAILED kinds; id is present
// only for RUN, RESULT and RUN_FAILED.
package protocol
