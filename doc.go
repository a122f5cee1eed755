// Package offload runs one expensive, stateful WebAssembly module in an
// isolated execution context so a responsive caller never blocks on it.
//
// # Architecture Overview
//
//	offload/             Root package with the Module boundary
//	├── protocol/        Closed command/event vocabulary and JSON wire frames
//	├── worker/          Execution context and single-flight initialization gate
//	├── host/            Controller owning the context, caller-facing states
//	├── engine/          wazero-backed Module running a prover export
//	├── wasm/            Minimal core-module encoder for fixtures
//	├── history/         SQLite log of completed runs
//	├── httpapi/         HTTP facade over a controller
//	├── config/          YAML/env configuration and logger construction
//	├── errors/          Structured error taxonomy
//	└── cmd/offload/     CLI: run, serve, tui, inspect, version
//
// # Quick Start
//
//	mod := engine.New(engine.Config{Path: "prover.wasm"})
//	ctrl := host.New(mod)
//	defer ctrl.Dispose(ctx)
//
//	req, err := ctrl.TriggerRun()
//	if err != nil {
//	    log.Fatal(err) // protocol misuse or context lost
//	}
//	msg, err := req.Wait(ctx)
//	fmt.Println(msg) // "Proof verified"
//
// # Lifecycle
//
// The controller creates the execution context once and posts INIT. The
// context initializes the module at most once: concurrent INIT and RUN
// commands attach to the same in-flight attempt. A failed initialization can be
// retried; a successful one is permanent for the context's lifetime.
//
// # Thread Safety
//
// Controller methods are safe for concurrent use. A Module is only ever called
// from the execution context, one call at a time.
package offload
