// Package engine runs a WebAssembly prover module on wazero as an
// offload.Module.
//
// Initialize loads the binary, checks that the run export exists, and
// instantiates it in a fresh runtime:
//
//	runtime := wazero.NewRuntimeWithConfig(ctx,
//	    wazero.NewRuntimeConfig().
//	        WithCloseOnContextDone(true).
//	        WithMemoryLimitPages(cfg.MemoryLimitPages))
//
// The guest may import env.log(ptr, len i32) to write UTF-8 text from its
// memory into the engine logger. After instantiation the optional init export
// is called; a trap there is an initialization fault.
//
// Run calls the run export. An i32 result other than zero is reported as a
// failed verification; otherwise Run returns the configured result message.
// Cancelling the call context interrupts the guest, including a guest stuck
// in an infinite loop.
package engine
