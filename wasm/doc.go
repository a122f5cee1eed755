// Package wasm builds and inspects WebAssembly binary modules.
//
// The builder covers the subset of the binary format that offloaded
// modules need: function types, function and memory imports, functions,
// memories, exports, code and active data segments.
//
//	m := &wasm.Module{}
//	run := m.AddFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
//		wasm.Body(wasm.I32Const(0)))
//	m.ExportFunc("runProveAndVerify", run)
//	bin := m.Encode()
//
// Inspect reads back the imports, exports and memories of any module
// without compiling it:
//
//	summary, err := wasm.Inspect(bin)
//	if !summary.HasFunc("runProveAndVerify") { ... }
package wasm
